package translator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/oukeidos/subflow/internal/apperrors"
	"github.com/oukeidos/subflow/internal/codec"
	"github.com/oukeidos/subflow/internal/llm"
	"github.com/oukeidos/subflow/internal/sse"
	"github.com/oukeidos/subflow/internal/tags"
)

// ErrEmptyStream is the cause when a stream yields no usable entry.
var ErrEmptyStream = errors.New("failed to parse streaming translation response")

// TranslateStream sends entries as one streaming request and emits an
// EntryEvent for every accepted line as soon as it is complete. Unknown and
// repeated indices are skipped. With a dropping tag policy an incompatible
// entry is withheld and reported as a DroppedEvent; with a strict policy the
// call fails at end of stream. Entries already emitted stay emitted when the
// call fails.
func (t *Translator) TranslateStream(ctx context.Context, systemPrompt string, entries []codec.Entry, policy TagPolicy, events chan<- Event) ([]codec.Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}

	body, err := t.backend.Stream(ctx, codec.Instruction(systemPrompt), codec.Encode(entries))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	s := &streamState{
		originals: indexTexts(entries),
		seen:      make(map[int]struct{}, len(entries)),
		strict:    policy.strict(true),
		events:    events,
	}
	var dec codec.LineDecoder
	reader := sse.NewReader(body)
	for {
		if err := ctx.Err(); err != nil {
			return nil, canceled(err)
		}
		frame, err := reader.Next()
		if errors.Is(err, sse.ErrDone) || errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, canceled(ctxErr)
			}
			return nil, apperrors.New(apperrors.KindTransient,
				fmt.Sprintf("Stream error: %v", err),
				fmt.Errorf("stream read failed: %w", err))
		}
		data := []byte(frame.Data)
		if err := llm.FrameError(data); err != nil {
			return nil, err
		}
		if text, ok := llm.DeltaText(data); ok {
			s.accept(ctx, dec.Write(text))
		}
	}
	s.accept(ctx, dec.Flush())

	if len(s.mismatches) > 0 {
		return nil, tagError(s.mismatches)
	}
	if len(s.out) == 0 {
		return nil, apperrors.Decode(ErrEmptyStream)
	}
	sortEntries(s.out)
	return s.out, nil
}

type streamState struct {
	originals  map[int]string
	seen       map[int]struct{}
	strict     bool
	events     chan<- Event
	out        []codec.Entry
	mismatches []tags.Mismatch
}

func (s *streamState) accept(ctx context.Context, decoded []codec.Entry) {
	for _, e := range decoded {
		orig, ok := s.originals[e.Index]
		if !ok {
			continue
		}
		if _, dup := s.seen[e.Index]; dup {
			continue
		}
		s.seen[e.Index] = struct{}{}
		if !tags.Compatible(orig, e.Text) {
			m := tags.Mismatch{Index: e.Index, Original: orig, Translated: e.Text}
			if s.strict {
				s.mismatches = append(s.mismatches, m)
				continue
			}
			emit(ctx, s.events, DroppedEvent{Mismatch: m})
			continue
		}
		s.out = append(s.out, e)
		emit(ctx, s.events, EntryEvent{Entry: e})
	}
}
