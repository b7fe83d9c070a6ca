package translator

import (
	"sort"

	"github.com/oukeidos/subflow/internal/codec"
)

// Progress is derived from the set of known results; it is never updated
// field by field.
type Progress struct {
	TotalEntries        int  `json:"total_entries"`
	TranslatedEntries   int  `json:"translated_entries"`
	LastTranslatedIndex int  `json:"last_translated_index"`
	IsPartial           bool `json:"is_partial"`
	CanContinue         bool `json:"can_continue"`
}

// Report is the terminal result of TranslateAll. A non-empty ErrorMessage
// means the run stopped before completion.
type Report struct {
	Translations []codec.Entry `json:"translations"`
	Progress     Progress      `json:"progress"`
	ErrorMessage string        `json:"error_message,omitempty"`
	// ResumeIndex is the first input index, in input order, without a
	// translation. It is LastTranslatedIndex+1 when nothing is missing.
	ResumeIndex int `json:"resume_index"`
	// FailedBatches lists batches that exhausted their retries.
	FailedBatches []int `json:"failed_batches,omitempty"`
}

// BatchResult is the result of TranslateBatch.
type BatchResult struct {
	Translations []codec.Entry `json:"translations"`
	Progress     Progress      `json:"progress"`
}

func buildProgress(total int, translations []codec.Entry) Progress {
	last := 0
	for _, e := range translations {
		if e.Index > last {
			last = e.Index
		}
	}
	partial := len(translations) < total
	return Progress{
		TotalEntries:        total,
		TranslatedEntries:   len(translations),
		LastTranslatedIndex: last,
		IsPartial:           partial,
		CanContinue:         partial,
	}
}

// flatten collects arena slots in batch order and sorts by index.
func flatten(slots [][]codec.Entry) []codec.Entry {
	n := 0
	for _, s := range slots {
		n += len(s)
	}
	out := make([]codec.Entry, 0, n)
	for _, s := range slots {
		out = append(out, s...)
	}
	sortEntries(out)
	return out
}

func sortEntries(entries []codec.Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
}

func resumeIndex(entries, translations []codec.Entry, progress Progress) int {
	done := make(map[int]struct{}, len(translations))
	for _, e := range translations {
		done[e.Index] = struct{}{}
	}
	for _, e := range entries {
		if _, ok := done[e.Index]; !ok {
			return e.Index
		}
	}
	return progress.LastTranslatedIndex + 1
}
