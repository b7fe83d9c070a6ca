package translator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oukeidos/subflow/internal/codec"
)

// fakeBackend answers requests with a scripted function. Calls are counted
// per first index of the request.
type fakeBackend struct {
	mu        sync.Mutex
	calls     map[int]int
	translate func(ctx context.Context, first, call int, content string) (string, error)
	stream    func(ctx context.Context, first, call int, content string) (io.ReadCloser, error)
}

func (f *fakeBackend) record(content string) (int, int) {
	first := firstIndex(content)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[int]int)
	}
	f.calls[first]++
	return first, f.calls[first]
}

func (f *fakeBackend) Translate(ctx context.Context, systemPrompt, content string) (string, error) {
	first, call := f.record(content)
	if f.translate == nil {
		return echo(content), nil
	}
	return f.translate(ctx, first, call, content)
}

func (f *fakeBackend) Stream(ctx context.Context, systemPrompt, content string) (io.ReadCloser, error) {
	first, call := f.record(content)
	if f.stream == nil {
		return sseBody(echo(content)), nil
	}
	return f.stream(ctx, first, call, content)
}

func (f *fakeBackend) callsFor(first int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[first]
}

func (f *fakeBackend) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func firstIndex(content string) int {
	line, _, _ := strings.Cut(content, "\n")
	e, ok := codec.ParseLine(line)
	if !ok {
		return -1
	}
	return e.Index
}

// echo answers every request line with a "T:" prefixed copy.
func echo(content string) string {
	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		e, ok := codec.ParseLine(line)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%d|T:%s\n", e.Index, e.Text)
	}
	return b.String()
}

// sseBody splits text into small OpenAI-style delta frames.
func sseBody(text string) io.ReadCloser {
	var b strings.Builder
	for len(text) > 0 {
		n := 7
		if n >= len(text) {
			n = len(text)
		} else {
			for n > 1 && !utf8.RuneStart(text[n]) {
				n--
			}
		}
		chunk := strings.ReplaceAll(strings.ReplaceAll(text[:n], `\`, `\\`), "\n", `\n`)
		chunk = strings.ReplaceAll(chunk, `"`, `\"`)
		fmt.Fprintf(&b, "data: {\"choices\":[{\"delta\":{\"content\":\"%s\"}}]}\n\n", chunk)
		text = text[n:]
	}
	b.WriteString("data: [DONE]\n\n")
	return io.NopCloser(strings.NewReader(b.String()))
}

func makeEntries(n int) []codec.Entry {
	entries := make([]codec.Entry, n)
	for i := range entries {
		entries[i] = codec.Entry{Index: i + 1, Text: fmt.Sprintf("line %d", i+1)}
	}
	return entries
}

func newTestTranslator(t interface{ Fatalf(string, ...any) }, backend Backend) *Translator {
	tr, err := New(backend,
		WithBackoff(func(int, error) time.Duration { return 0 }),
		WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return tr
}

// drain collects events until the channel is closed.
func drain(events <-chan Event) <-chan []Event {
	out := make(chan []Event, 1)
	go func() {
		var all []Event
		for ev := range events {
			all = append(all, ev)
		}
		out <- all
	}()
	return out
}

var errUpstream = errors.New("upstream unavailable")
