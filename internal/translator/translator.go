package translator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/oukeidos/subflow/internal/apperrors"
	"github.com/oukeidos/subflow/internal/codec"
	"github.com/oukeidos/subflow/internal/logger"
	"github.com/oukeidos/subflow/internal/tags"
)

// mismatchSampleSize caps the mismatches quoted in a tag validation error.
const mismatchSampleSize = 3

var (
	// ErrCanceled is returned when the caller's context is canceled.
	ErrCanceled = apperrors.Canceled(context.Canceled)
	// ErrTagMismatch is the cause of a whole-batch tag validation failure.
	ErrTagMismatch = errors.New("translated lines contain incompatible override tags")
	// ErrDuplicateIndex is the cause of a response that repeats an index.
	ErrDuplicateIndex = errors.New("duplicate index in model output")
)

// Backend issues one round trip in the configured dialect. *llm.Client
// implements it.
type Backend interface {
	Translate(ctx context.Context, systemPrompt, content string) (string, error)
	Stream(ctx context.Context, systemPrompt, content string) (io.ReadCloser, error)
}

// Translator turns entries into translated entries through a Backend.
type Translator struct {
	backend Backend
	backoff func(attempt int, err error) time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

type Option func(*Translator)

// WithBackoff replaces the delay computed before each retry.
func WithBackoff(fn func(attempt int, err error) time.Duration) Option {
	return func(t *Translator) {
		if fn != nil {
			t.backoff = fn
		}
	}
}

// WithSleep replaces the context-aware wait used between retries.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(t *Translator) {
		if fn != nil {
			t.sleep = fn
		}
	}
}

// New creates a Translator. A nil backend is a configuration error.
func New(backend Backend, opts ...Option) (*Translator, error) {
	if backend == nil {
		return nil, apperrors.Config(errors.New("translator backend is nil"))
	}
	t := &Translator{
		backend: backend,
		backoff: retryBackoff,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// TranslateEntries sends entries as one non-streaming request and returns
// the decoded translations sorted by index. Indices the request did not
// carry are dropped; a repeated index fails the call. Tag mismatches fail
// the whole call unless policy drops them.
func (t *Translator) TranslateEntries(ctx context.Context, systemPrompt string, entries []codec.Entry, policy TagPolicy) ([]codec.Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}

	raw, err := t.backend.Translate(ctx, codec.Instruction(systemPrompt), codec.Encode(entries))
	if err != nil {
		return nil, err
	}
	decoded, err := codec.Decode(raw)
	if err != nil {
		return nil, err
	}

	originals := indexTexts(entries)
	seen := make(map[int]struct{}, len(decoded))
	accepted := make([]codec.Entry, 0, len(decoded))
	unknown := 0
	for _, e := range decoded {
		if _, ok := originals[e.Index]; !ok {
			unknown++
			continue
		}
		if _, dup := seen[e.Index]; dup {
			return nil, apperrors.New(apperrors.KindValidation,
				fmt.Sprintf("Model returned index %d more than once.", e.Index),
				fmt.Errorf("%w: %d", ErrDuplicateIndex, e.Index))
		}
		seen[e.Index] = struct{}{}
		accepted = append(accepted, e)
	}
	if unknown > 0 {
		logger.Warn("Dropped entries with unknown indices", "count", unknown)
	}

	kept, mismatches := tags.Check(originals, accepted)
	if len(mismatches) > 0 {
		if policy.strict(false) {
			return nil, tagError(mismatches)
		}
		logger.Warn("Dropped entries with incompatible override tags", "count", len(mismatches))
		accepted = kept
	}
	if len(accepted) == 0 {
		return nil, apperrors.Decode(codec.ErrEmptyResponse)
	}

	sortEntries(accepted)
	return accepted, nil
}

// TranslateBatch translates the first batchSize entries whose index is at
// least startIndex. It does not retry. Progress counts every entry below
// startIndex as already translated.
func (t *Translator) TranslateBatch(ctx context.Context, systemPrompt string, entries []codec.Entry, startIndex, batchSize int) (BatchResult, error) {
	if batchSize < 1 {
		batchSize = 1
	}
	total := len(entries)
	before := 0
	batch := make([]codec.Entry, 0, batchSize)
	for _, e := range entries {
		if e.Index < startIndex {
			before++
			continue
		}
		if len(batch) < batchSize {
			batch = append(batch, e)
		}
	}

	if len(batch) == 0 {
		last := startIndex - 1
		if last < 0 {
			last = 0
		}
		return BatchResult{
			Progress: Progress{
				TotalEntries:        total,
				TranslatedEntries:   before,
				LastTranslatedIndex: last,
			},
		}, nil
	}

	translations, err := t.TranslateEntries(ctx, systemPrompt, batch, TagPolicyDefault)
	if err != nil {
		return BatchResult{}, err
	}

	translated := before + len(translations)
	partial := translated < total
	return BatchResult{
		Translations: translations,
		Progress: Progress{
			TotalEntries:        total,
			TranslatedEntries:   translated,
			LastTranslatedIndex: translations[len(translations)-1].Index,
			IsPartial:           partial,
			CanContinue:         partial && len(translations) > 0,
		},
	}, nil
}

func indexTexts(entries []codec.Entry) map[int]string {
	m := make(map[int]string, len(entries))
	for _, e := range entries {
		m[e.Index] = e.Text
	}
	return m
}

func tagError(mismatches []tags.Mismatch) error {
	return apperrors.New(apperrors.KindValidation,
		"Translated lines contain incompatible override tags. Sample:\n"+tags.FormatSample(mismatches, mismatchSampleSize),
		ErrTagMismatch)
}

func canceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return ErrCanceled
	}
	return apperrors.Canceled(err)
}

const (
	baseBackoff = 1 * time.Second
	maxBackoff  = 20 * time.Second
	jitterMax   = 1 * time.Second
)

// retryBackoff doubles from one second per attempt, doubles again for rate
// limits, caps at maxBackoff and adds up to a second of jitter.
func retryBackoff(attempt int, err error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := maxBackoff
	if attempt <= 6 {
		backoff = baseBackoff << (attempt - 1)
	}
	if apperrors.IsRateLimit(err) {
		backoff = backoff * 2
	}
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(jitterMax)))
	return backoff + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
