package translator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/oukeidos/subflow/internal/apperrors"
	"github.com/oukeidos/subflow/internal/codec"
)

func TestNew_NilBackend(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil backend")
	}
}

func TestTranslateEntries_RequestShape(t *testing.T) {
	var gotPrompt, gotContent string
	backend := &fakeBackend{}
	backend.translate = func(ctx context.Context, first, call int, content string) (string, error) {
		gotContent = content
		return "<think>planning 1|nope</think>\n1|Olá<<NEWLINE>>mundo\n2|Tchau", nil
	}
	tr := newTestTranslator(t, promptRecorder{backend, &gotPrompt})

	entries := []codec.Entry{{Index: 1, Text: "Hello\nworld"}, {Index: 2, Text: "Bye"}}
	out, err := tr.TranslateEntries(context.Background(), "Translate to Portuguese.", entries, TagPolicyDefault)
	if err != nil {
		t.Fatalf("TranslateEntries failed: %v", err)
	}
	if !strings.HasPrefix(gotPrompt, "Translate to Portuguese.") || !strings.Contains(gotPrompt, codec.NewlinePlaceholder) {
		t.Fatalf("instruction missing prompt or format rules: %q", gotPrompt)
	}
	if gotContent != "1|Hello<<NEWLINE>>world\n2|Bye" {
		t.Fatalf("unexpected encoded content %q", gotContent)
	}
	if len(out) != 2 || out[0].Text != "Olá\nmundo" || out[1].Text != "Tchau" {
		t.Fatalf("unexpected output %#v", out)
	}
}

// promptRecorder captures the instruction passed to the backend.
type promptRecorder struct {
	*fakeBackend
	prompt *string
}

func (p promptRecorder) Translate(ctx context.Context, systemPrompt, content string) (string, error) {
	*p.prompt = systemPrompt
	return p.fakeBackend.Translate(ctx, systemPrompt, content)
}

func TestTranslateEntries_DuplicateIndex(t *testing.T) {
	backend := &fakeBackend{
		translate: func(ctx context.Context, first, call int, content string) (string, error) {
			return "1|a\n1|b\n2|c", nil
		},
	}
	_, err := newTestTranslator(t, backend).TranslateEntries(context.Background(), "p", makeEntries(2), TagPolicyDefault)
	if !errors.Is(err, ErrDuplicateIndex) {
		t.Fatalf("expected duplicate index error, got %v", err)
	}
	if !apperrors.IsRetryable(err) {
		t.Fatalf("duplicate index should be retryable")
	}
}

func TestTranslateEntries_UnknownOnlyIsDecodeError(t *testing.T) {
	backend := &fakeBackend{
		translate: func(ctx context.Context, first, call int, content string) (string, error) {
			return "42|invented", nil
		},
	}
	_, err := newTestTranslator(t, backend).TranslateEntries(context.Background(), "p", makeEntries(2), TagPolicyDefault)
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestTranslateEntries_EmptyResponse(t *testing.T) {
	backend := &fakeBackend{
		translate: func(ctx context.Context, first, call int, content string) (string, error) {
			return "Sorry, I cannot help with that.", nil
		},
	}
	_, err := newTestTranslator(t, backend).TranslateEntries(context.Background(), "p", makeEntries(1), TagPolicyDefault)
	if !errors.Is(err, codec.ErrEmptyResponse) {
		t.Fatalf("expected empty response error, got %v", err)
	}
}

func TestTranslateEntries_TagPolicy(t *testing.T) {
	entries := []codec.Entry{
		{Index: 1, Text: `{\i1}Hello{\i0}`},
		{Index: 2, Text: `{\an8}Top`},
		{Index: 3, Text: "plain"},
	}
	backend := &fakeBackend{
		translate: func(ctx context.Context, first, call int, content string) (string, error) {
			return "1|{\\i1}Olá{\\i0}\n2|Topo\n3|simples", nil
		},
	}
	tr := newTestTranslator(t, backend)

	_, err := tr.TranslateEntries(context.Background(), "p", entries, TagPolicyDefault)
	if !errors.Is(err, ErrTagMismatch) {
		t.Fatalf("expected tag mismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "#2\nORIGINAL: {\\an8}Top\nTRANSLATED: Topo") {
		t.Fatalf("expected mismatch sample in message, got %q", err.Error())
	}
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindValidation {
		t.Fatalf("expected validation kind, got %s", kind)
	}

	out, err := tr.TranslateEntries(context.Background(), "p", entries, TagPolicyDrop)
	if err != nil {
		t.Fatalf("drop policy failed: %v", err)
	}
	if len(out) != 2 || out[0].Index != 1 || out[1].Index != 3 {
		t.Fatalf("unexpected kept entries %#v", out)
	}
}

func TestTranslateEntries_CanceledBeforeDispatch(t *testing.T) {
	backend := &fakeBackend{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestTranslator(t, backend).TranslateEntries(ctx, "p", makeEntries(1), TagPolicyDefault)
	if !errors.Is(err, context.Canceled) || !apperrors.IsCanceled(err) {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if backend.totalCalls() != 0 {
		t.Fatalf("no request should be sent after cancellation")
	}
}

func TestTranslateBatch(t *testing.T) {
	entries := []codec.Entry{{Index: 2, Text: "a"}, {Index: 4, Text: "b"}, {Index: 6, Text: "c"}, {Index: 8, Text: "d"}}
	tr := newTestTranslator(t, &fakeBackend{})

	res, err := tr.TranslateBatch(context.Background(), "p", entries, 3, 2)
	if err != nil {
		t.Fatalf("TranslateBatch failed: %v", err)
	}
	if len(res.Translations) != 2 || res.Translations[0].Index != 4 || res.Translations[1].Index != 6 {
		t.Fatalf("unexpected translations %#v", res.Translations)
	}
	want := Progress{TotalEntries: 4, TranslatedEntries: 3, LastTranslatedIndex: 6, IsPartial: true, CanContinue: true}
	if res.Progress != want {
		t.Fatalf("progress = %#v, want %#v", res.Progress, want)
	}

	res, err = tr.TranslateBatch(context.Background(), "p", entries, 7, 10)
	if err != nil {
		t.Fatalf("TranslateBatch failed: %v", err)
	}
	if res.Progress.IsPartial || res.Progress.CanContinue || res.Progress.TranslatedEntries != 4 {
		t.Fatalf("unexpected final progress %#v", res.Progress)
	}
}

func TestTranslateBatch_NothingLeft(t *testing.T) {
	backend := &fakeBackend{}
	res, err := newTestTranslator(t, backend).TranslateBatch(context.Background(), "p", makeEntries(3), 10, 0)
	if err != nil {
		t.Fatalf("TranslateBatch failed: %v", err)
	}
	want := Progress{TotalEntries: 3, TranslatedEntries: 3, LastTranslatedIndex: 9}
	if res.Progress != want || len(res.Translations) != 0 {
		t.Fatalf("unexpected result %#v", res)
	}
	if backend.totalCalls() != 0 {
		t.Fatalf("empty batch must not send a request")
	}
}

func TestTranslateBatch_PropagatesError(t *testing.T) {
	backend := &fakeBackend{
		translate: func(ctx context.Context, first, call int, content string) (string, error) {
			return "", apperrors.Transient(errUpstream)
		},
	}
	_, err := newTestTranslator(t, backend).TranslateBatch(context.Background(), "p", makeEntries(3), 1, 2)
	if !errors.Is(err, errUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if backend.totalCalls() != 1 {
		t.Fatalf("TranslateBatch must not retry, got %d calls", backend.totalCalls())
	}
}
