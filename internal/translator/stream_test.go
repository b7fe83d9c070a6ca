package translator

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/oukeidos/subflow/internal/apperrors"
	"github.com/oukeidos/subflow/internal/codec"
)

func TestTranslateStream_EmitsEntries(t *testing.T) {
	backend := &fakeBackend{
		stream: func(ctx context.Context, first, call int, content string) (io.ReadCloser, error) {
			return sseBody("<think>1|draft</think>\n```\n2|dois\n1|um<<NEWLINE>>linha\n99|extra\n2|again\n3|três"), nil
		},
	}
	tr := newTestTranslator(t, backend)
	events := make(chan Event, 16)
	out, err := tr.TranslateStream(context.Background(), "p", makeEntries(3), TagPolicyDefault, events)
	close(events)
	if err != nil {
		t.Fatalf("TranslateStream failed: %v", err)
	}

	var emitted []codec.Entry
	for ev := range events {
		if e, ok := ev.(EntryEvent); ok {
			emitted = append(emitted, e.Entry)
		}
	}
	if len(emitted) != 3 || emitted[0].Index != 2 || emitted[1].Index != 1 || emitted[2].Index != 3 {
		t.Fatalf("entries should be emitted in arrival order: %#v", emitted)
	}
	if emitted[0].Text != "dois" {
		t.Fatalf("repeated index must keep the first occurrence, got %q", emitted[0].Text)
	}
	if len(out) != 3 || out[0].Index != 1 || out[0].Text != "um\nlinha" || out[2].Text != "três" {
		t.Fatalf("unexpected sorted result %#v", out)
	}
}

func TestTranslateStream_TagPolicies(t *testing.T) {
	entries := []codec.Entry{{Index: 1, Text: `{\i1}Hi`}, {Index: 2, Text: "Bye"}}
	body := "1|Oi\n2|Tchau\n"
	backend := &fakeBackend{
		stream: func(ctx context.Context, first, call int, content string) (io.ReadCloser, error) {
			return sseBody(body), nil
		},
	}
	tr := newTestTranslator(t, backend)

	events := make(chan Event, 16)
	out, err := tr.TranslateStream(context.Background(), "p", entries, TagPolicyDefault, events)
	close(events)
	if err != nil {
		t.Fatalf("default policy should drop, got %v", err)
	}
	if len(out) != 1 || out[0].Index != 2 {
		t.Fatalf("unexpected output %#v", out)
	}
	var dropped []DroppedEvent
	for ev := range events {
		if d, ok := ev.(DroppedEvent); ok {
			dropped = append(dropped, d)
		}
	}
	if len(dropped) != 1 || dropped[0].Mismatch.Index != 1 || dropped[0].Mismatch.Translated != "Oi" {
		t.Fatalf("expected one dropped event for index 1, got %#v", dropped)
	}

	_, err = tr.TranslateStream(context.Background(), "p", entries, TagPolicyStrict, nil)
	if !errors.Is(err, ErrTagMismatch) {
		t.Fatalf("strict policy should fail the batch, got %v", err)
	}
}

func TestTranslateStream_AnthropicFrames(t *testing.T) {
	body := "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{}}\n\n" +
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"1|Ol\"}}\n\n" +
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"a\\n2|Adeus\"}}\n\n" +
		"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"
	backend := &fakeBackend{
		stream: func(ctx context.Context, first, call int, content string) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
	out, err := newTestTranslator(t, backend).TranslateStream(context.Background(), "p", makeEntries(2), TagPolicyDefault, nil)
	if err != nil {
		t.Fatalf("TranslateStream failed: %v", err)
	}
	if len(out) != 2 || out[0].Text != "Ola" || out[1].Text != "Adeus" {
		t.Fatalf("unexpected output %#v", out)
	}
}

func TestTranslateStream_Empty(t *testing.T) {
	backend := &fakeBackend{
		stream: func(ctx context.Context, first, call int, content string) (io.ReadCloser, error) {
			return sseBody("I refuse."), nil
		},
	}
	_, err := newTestTranslator(t, backend).TranslateStream(context.Background(), "p", makeEntries(1), TagPolicyDefault, nil)
	if !errors.Is(err, ErrEmptyStream) {
		t.Fatalf("expected empty stream error, got %v", err)
	}
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindDecode {
		t.Fatalf("expected decode kind, got %s", kind)
	}
}

func TestTranslateStream_InBandError(t *testing.T) {
	body := "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n"
	backend := &fakeBackend{
		stream: func(ctx context.Context, first, call int, content string) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
	_, err := newTestTranslator(t, backend).TranslateStream(context.Background(), "p", makeEntries(1), TagPolicyDefault, nil)
	if err == nil || !strings.Contains(err.Error(), "Overloaded") {
		t.Fatalf("expected in-band stream error, got %v", err)
	}
	if !apperrors.IsRetryable(err) {
		t.Fatalf("stream errors should be retryable")
	}
}

func TestTranslateAll_Streaming(t *testing.T) {
	backend := &fakeBackend{}
	tr := newTestTranslator(t, backend)
	settings := DefaultSettings()
	settings.BatchSize = 4
	settings.ParallelRequests = 2
	settings.Streaming = true

	events := make(chan Event)
	collected := drain(events)
	report, err := tr.TranslateAll(context.Background(), "p", makeEntries(10), settings, events)
	close(events)
	if err != nil {
		t.Fatalf("TranslateAll failed: %v", err)
	}
	if report.Progress.TranslatedEntries != 10 || report.Progress.IsPartial {
		t.Fatalf("unexpected progress %#v", report.Progress)
	}
	entryEvents := 0
	for _, ev := range <-collected {
		if _, ok := ev.(EntryEvent); ok {
			entryEvents++
		}
	}
	if entryEvents != 10 {
		t.Fatalf("expected 10 entry events, got %d", entryEvents)
	}
}
