package translator

import (
	"context"

	"github.com/oukeidos/subflow/internal/codec"
	"github.com/oukeidos/subflow/internal/tags"
)

// Event is delivered on the caller's channel while a run is in progress.
type Event interface {
	isEvent()
}

// ProgressEvent follows every completed dispatch group.
type ProgressEvent struct {
	Progress Progress
}

// RetryEvent precedes each resubmission of a failed batch.
type RetryEvent struct {
	Batch        int
	Attempt      int
	MaxRetries   int
	ErrorMessage string
	Progress     Progress
}

// ErrorEvent reports a batch that exhausted its retries.
type ErrorEvent struct {
	Batch        int
	ErrorMessage string
	Progress     Progress
}

// EntryEvent carries one entry as soon as a streamed line is decoded.
// A retried batch may deliver the same index again.
type EntryEvent struct {
	Entry codec.Entry
}

// DroppedEvent reports a streamed entry withheld for a tag mismatch.
type DroppedEvent struct {
	Mismatch tags.Mismatch
}

func (ProgressEvent) isEvent() {}
func (RetryEvent) isEvent()    {}
func (ErrorEvent) isEvent()    {}
func (EntryEvent) isEvent()    {}
func (DroppedEvent) isEvent()  {}

// emit blocks until the event is received or ctx is done. A nil channel
// discards events.
func emit(ctx context.Context, events chan<- Event, ev Event) {
	if events == nil {
		return
	}
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}
