package main

import (
	"io"
	"os"

	"github.com/oukeidos/subflow/internal/logger"
	"github.com/oukeidos/subflow/internal/translator"
	"github.com/schollz/progressbar/v3"
)

// progressReporter turns orchestration events into a terminal progress bar
// and log lines. Without a terminal only the log lines are written.
type progressReporter struct {
	w       io.Writer
	visible bool
	verbose bool
	bar     *progressbar.ProgressBar
	max     int
}

func newProgressReporter(w io.Writer, visible, verbose bool) *progressReporter {
	return &progressReporter{w: w, visible: visible, verbose: verbose}
}

// stderrReporter shows a bar only when stderr is a terminal.
func stderrReporter(verbose bool) *progressReporter {
	return newProgressReporter(os.Stderr, isTerminal(int(os.Stderr.Fd())), verbose)
}

// update creates the bar on the first progress report. A continuation run
// reports a smaller total, which resizes the bar.
func (p *progressReporter) update(pr translator.Progress) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions(pr.TotalEntries,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription("Translating"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetVisibility(p.visible),
		)
		p.max = pr.TotalEntries
	} else if pr.TotalEntries != p.max {
		p.bar.ChangeMax(pr.TotalEntries)
		p.max = pr.TotalEntries
	}
	_ = p.bar.Set(pr.TranslatedEntries)
}

// Handle is passed to pipeline.Config.OnEvent. Events arrive in order from a
// single goroutine.
func (p *progressReporter) Handle(ev translator.Event) {
	switch e := ev.(type) {
	case translator.ProgressEvent:
		p.update(e.Progress)
		logger.Debug("Progress", "translated", e.Progress.TranslatedEntries, "total", e.Progress.TotalEntries)
	case translator.RetryEvent:
		logger.Warn("Batch retry", "batch", e.Batch, "attempt", e.Attempt, "max_retries", e.MaxRetries, "error", e.ErrorMessage)
	case translator.ErrorEvent:
		logger.Error("Batch failed", "batch", e.Batch, "error", e.ErrorMessage)
	case translator.DroppedEvent:
		logger.Warn("Dropped entry with mismatched tags", "index", e.Mismatch.Index)
	case translator.EntryEvent:
		if p.verbose {
			logger.Debug("Entry translated", "index", e.Entry.Index)
		}
	}
}

// Finish clears the bar.
func (p *progressReporter) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
