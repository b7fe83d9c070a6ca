package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/oukeidos/subflow/internal/apperrors"
	"github.com/oukeidos/subflow/internal/codec"
	"github.com/oukeidos/subflow/internal/llm"
	"github.com/oukeidos/subflow/internal/logger"
	"github.com/oukeidos/subflow/internal/recovery"
	"github.com/oukeidos/subflow/internal/translator"
)

const eventBuffer = 64

// outcome merges the reports of one or more TranslateAll calls.
type outcome struct {
	translations  []codec.Entry
	failedBatches int
	errorMessage  string
	canceled      bool
	reason        string
}

var newTranslator = func(cfg llm.Config) (*translator.Translator, error) {
	client, err := llm.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return translator.New(client)
}

// translate runs the orchestrator over entries. With AutoContinue off it
// asks OnConfirmContinue after each pause and continues with the entries
// still pending, leaving out batches that already exhausted their retries.
func translate(ctx context.Context, tr *translator.Translator, cfg Config, prompt string, settings translator.Settings, entries []codec.Entry) (outcome, error) {
	var out outcome
	pending := entries
	settings = settings.Normalize()
	for {
		report, err := runOnce(ctx, tr, cfg, prompt, settings, pending)
		out.translations = append(out.translations, report.Translations...)
		out.failedBatches += len(report.FailedBatches)
		if err != nil {
			if errors.Is(err, translator.ErrCanceled) {
				out.canceled = true
				out.reason = recovery.ReasonCanceled
				out.errorMessage = apperrors.PublicMessage(err)
				return out, nil
			}
			return out, err
		}
		if report.ErrorMessage != "" {
			out.errorMessage = report.ErrorMessage
			out.reason = recovery.ReasonFailed
			return out, nil
		}
		if len(report.FailedBatches) > 0 {
			out.reason = recovery.ReasonFailed
		}
		if !report.Progress.IsPartial || settings.AutoContinue {
			return out, nil
		}

		next := remaining(pending, report, settings.BatchSize)
		if len(next) == 0 {
			return out, nil
		}
		if cfg.OnConfirmContinue == nil || !cfg.OnConfirmContinue(report.Progress) {
			logger.Info("Stopped before completion", "translated", len(out.translations), "pending", len(next))
			out.reason = recovery.ReasonStopped
			return out, nil
		}
		pending = next
	}
}

func runOnce(ctx context.Context, tr *translator.Translator, cfg Config, prompt string, settings translator.Settings, entries []codec.Entry) (translator.Report, error) {
	if cfg.OnEvent == nil {
		return tr.TranslateAll(ctx, prompt, entries, settings, nil)
	}
	events := make(chan translator.Event, eventBuffer)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			cfg.OnEvent(ev)
		}
	}()
	report, err := tr.TranslateAll(ctx, prompt, entries, settings, events)
	close(events)
	wg.Wait()
	return report, err
}

// remaining returns the entries of pending that have no translation and do
// not belong to a batch that exhausted its retries.
func remaining(pending []codec.Entry, report translator.Report, batchSize int) []codec.Entry {
	done := make(map[int]struct{}, len(report.Translations))
	for _, e := range report.Translations {
		done[e.Index] = struct{}{}
	}
	failed := make(map[int]struct{}, len(report.FailedBatches))
	for _, b := range report.FailedBatches {
		failed[b] = struct{}{}
	}
	var next []codec.Entry
	for i, e := range pending {
		if _, ok := done[e.Index]; ok {
			continue
		}
		if _, ok := failed[i/batchSize]; ok {
			continue
		}
		next = append(next, e)
	}
	return next
}

func indices(entries []codec.Entry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Index
	}
	return out
}
