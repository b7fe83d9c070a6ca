package translator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oukeidos/subflow/internal/apperrors"
	"github.com/oukeidos/subflow/internal/chunker"
	"github.com/oukeidos/subflow/internal/codec"
	"github.com/oukeidos/subflow/internal/logger"
	"golang.org/x/sync/errgroup"
)

type batchOutcome struct {
	entries []codec.Entry
	err     error
}

// run holds the working state of one TranslateAll call.
type run struct {
	t            *Translator
	id           string
	systemPrompt string
	entries      []codec.Entry
	settings     Settings
	events       chan<- Event
	chunks       []chunker.Chunk
	// results is indexed by batch; a nil slot has no translation yet.
	results [][]codec.Entry
	failed  []int
}

// TranslateAll translates every entry in fixed-size batches. Batches run in
// groups of ParallelRequests; a group is joined before its results are
// folded in and a ProgressEvent is sent. Failed batches are then retried one
// after another with backoff, each preceded by a RetryEvent. A batch that
// exhausts MaxRetries sends an ErrorEvent and either ends the run (the
// returned Report carries ErrorMessage and a nil error) or, with
// ContinueOnError, is left out. With AutoContinue disabled the run stops
// after the first group that leaves work undone.
//
// Cancellation is observed between requests, around each group join and
// retry sleep, and inside the stream loop; a request already in flight
// finishes or fails on its own. A canceled run returns the partial Report
// with ErrCanceled. Configuration errors are returned as they are.
func (t *Translator) TranslateAll(ctx context.Context, systemPrompt string, entries []codec.Entry, settings Settings, events chan<- Event) (Report, error) {
	settings = settings.Normalize()
	chunks := chunker.SplitIntoChunks(entries, settings.BatchSize)
	r := &run{
		t:            t,
		id:           uuid.NewString(),
		systemPrompt: systemPrompt,
		entries:      entries,
		settings:     settings,
		events:       events,
		chunks:       chunks,
		results:      make([][]codec.Entry, len(chunks)),
	}
	logger.Info("Translation started",
		"run_id", r.id,
		"entries", len(entries),
		"batches", len(chunks),
		"parallel", settings.ParallelRequests,
		"streaming", settings.Streaming,
	)
	report, err := r.execute(ctx)
	logger.Info("Translation finished",
		"run_id", r.id,
		"translated", report.Progress.TranslatedEntries,
		"total", report.Progress.TotalEntries,
		"partial", report.Progress.IsPartial,
		"failed_batches", len(report.FailedBatches),
	)
	return report, err
}

func (r *run) execute(ctx context.Context) (Report, error) {
	for _, group := range chunker.Groups(r.chunks, r.settings.ParallelRequests) {
		if err := ctx.Err(); err != nil {
			return r.canceled(err)
		}

		outcomes := r.dispatch(ctx, group)

		var retry []int
		for i, c := range group {
			o := outcomes[i]
			if o.err == nil {
				r.results[c.Index] = o.entries
				continue
			}
			if kind, _ := apperrors.KindOf(o.err); kind == apperrors.KindConfig {
				return r.report(o.err.Error()), o.err
			}
			retry = append(retry, i)
		}
		if err := ctx.Err(); err != nil {
			return r.canceled(err)
		}

		for _, i := range retry {
			report, stop, err := r.retry(ctx, group[i], outcomes[i].err)
			if stop {
				return report, err
			}
		}

		progress := buildProgress(len(r.entries), r.translations())
		emit(ctx, r.events, ProgressEvent{Progress: progress})
		if !r.settings.AutoContinue && progress.IsPartial {
			logger.Info("Stopping after one group", "run_id", r.id, "translated", progress.TranslatedEntries)
			break
		}
	}
	return r.report(""), nil
}

// dispatch runs every batch of a group concurrently and waits for all of
// them. Outcomes are written to distinct slots and read after Wait.
func (r *run) dispatch(ctx context.Context, group []chunker.Chunk) []batchOutcome {
	outcomes := make([]batchOutcome, len(group))
	var g errgroup.Group
	for i, c := range group {
		g.Go(func() error {
			start := time.Now()
			entries, err := r.translate(ctx, c)
			outcomes[i] = batchOutcome{entries: entries, err: err}
			if err != nil {
				logger.Warn("Batch failed", "run_id", r.id, "batch", c.Index, "error", err)
				return nil
			}
			logger.Debug("Batch translated", "run_id", r.id, "batch", c.Index, "entries", len(entries), "elapsed", time.Since(start))
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// retry resubmits one failed batch until it succeeds or exhausts its
// retries. stop reports that the run must end with the returned values.
func (r *run) retry(ctx context.Context, c chunker.Chunk, lastErr error) (Report, bool, error) {
	for attempt := 1; ; attempt++ {
		if apperrors.IsCanceled(lastErr) && ctx.Err() != nil {
			report, err := r.canceled(ctx.Err())
			return report, true, err
		}
		progress := buildProgress(len(r.entries), r.translations())

		if attempt > r.settings.MaxRetries {
			msg := fmt.Sprintf("Translation failed after %d retries: %s", r.settings.MaxRetries, lastErr.Error())
			progress.CanContinue = r.settings.ContinueOnError && progress.IsPartial
			emit(ctx, r.events, ErrorEvent{Batch: c.Index, ErrorMessage: msg, Progress: progress})
			r.failed = append(r.failed, c.Index)
			logger.Error("Batch failed after maximum retries", "run_id", r.id, "batch", c.Index, "retries", r.settings.MaxRetries, "error", lastErr)
			if r.settings.ContinueOnError {
				return Report{}, false, nil
			}
			report := r.report(msg)
			report.Progress = progress
			return report, true, nil
		}

		emit(ctx, r.events, RetryEvent{
			Batch:        c.Index,
			Attempt:      attempt,
			MaxRetries:   r.settings.MaxRetries,
			ErrorMessage: lastErr.Error(),
			Progress:     progress,
		})
		delay := r.t.backoff(attempt, lastErr)
		logger.Info("Retrying batch", "run_id", r.id, "batch", c.Index, "attempt", attempt, "backoff", delay)
		if err := r.t.sleep(ctx, delay); err != nil || ctx.Err() != nil {
			report, err := r.canceled(contextErr(ctx, err))
			return report, true, err
		}

		entries, err := r.translate(ctx, c)
		if err == nil {
			r.results[c.Index] = entries
			return Report{}, false, nil
		}
		if kind, _ := apperrors.KindOf(err); kind == apperrors.KindConfig {
			return r.report(err.Error()), true, err
		}
		lastErr = err
	}
}

func (r *run) translate(ctx context.Context, c chunker.Chunk) ([]codec.Entry, error) {
	if r.settings.Streaming {
		return r.t.TranslateStream(ctx, r.systemPrompt, c.Entries, r.settings.TagPolicy, r.events)
	}
	return r.t.TranslateEntries(ctx, r.systemPrompt, c.Entries, r.settings.TagPolicy)
}

func (r *run) translations() []codec.Entry {
	return flatten(r.results)
}

func (r *run) report(errorMessage string) Report {
	translations := r.translations()
	progress := buildProgress(len(r.entries), translations)
	return Report{
		Translations:  translations,
		Progress:      progress,
		ErrorMessage:  errorMessage,
		ResumeIndex:   resumeIndex(r.entries, translations, progress),
		FailedBatches: append([]int(nil), r.failed...),
	}
}

func (r *run) canceled(cause error) (Report, error) {
	err := canceled(cause)
	logger.Warn("Translation canceled", "run_id", r.id)
	return r.report(err.Error()), err
}

func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return err
	}
	return context.Canceled
}
