package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/oukeidos/subflow/internal/codec"
	"github.com/oukeidos/subflow/internal/files"
	"github.com/oukeidos/subflow/internal/language"
	"github.com/oukeidos/subflow/internal/logger"
	"github.com/oukeidos/subflow/internal/recovery"
	"github.com/oukeidos/subflow/internal/subtitle"
)

// RunTranslation loads the input, translates every cue and writes the
// output. Untranslated cues keep their source text; when any remain, a
// session log is written beside the output for RunResume.
func RunTranslation(ctx context.Context, cfg Config) (Result, error) {
	start := time.Now()
	if err := cfg.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid configuration: %w", err)
	}
	lang, err := language.Resolve(cfg.TargetLanguage)
	if err != nil {
		return Result{}, err
	}

	absIn, err := filepath.Abs(cfg.InputPath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve input path: %w", err)
	}
	absOut, err := filepath.Abs(cfg.OutputPath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve output path: %w", err)
	}
	if err := checkDistinct(absIn, absOut); err != nil {
		return Result{}, err
	}
	if err := files.RejectSymlinkPath(absOut); err != nil {
		return Result{}, err
	}

	overwrite := cfg.Overwrite
	if _, err := os.Stat(absOut); err == nil && !overwrite {
		if cfg.OnConfirmOverwrite == nil || !cfg.OnConfirmOverwrite(absOut) {
			logger.Info("Output file exists. Aborted by user.", "path", absOut)
			return Result{Status: StatusSkipped}, nil
		}
		overwrite = true
	}

	doc, err := subtitle.Load(absIn)
	if err != nil {
		return Result{}, err
	}
	if err := doc.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid subtitle file: %w", err)
	}
	entries := doc.Entries()
	logger.Info("Loaded subtitles", "count", len(entries), "path", absIn)

	unlock, err := files.Lock(absOut)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := unlock(); err != nil {
			logger.Warn("Failed to release output lock", "error", err)
		}
	}()

	tr, err := newTranslator(cfg.LLM)
	if err != nil {
		return Result{}, err
	}

	logger.Info("Starting translation", "model", cfg.LLM.Model, "target", lang.Code)
	out, err := translate(ctx, tr, cfg, cfg.SystemPrompt, cfg.Settings, entries)
	if err != nil {
		return Result{}, fmt.Errorf("fatal translation error: %w", err)
	}

	missing := recovery.Missing(indices(entries), indices(out.translations))
	status := Status(recovery.CalculateStatus(len(missing), len(entries)))
	result := Result{
		Status:        status,
		Model:         cfg.LLM.Model,
		Translated:    len(entries) - len(missing),
		Total:         len(entries),
		FailedBatches: out.failedBatches,
		ErrorMessage:  out.errorMessage,
		Canceled:      out.canceled,
	}
	logger.Info("Translation finished", "status", status, "translated", result.Translated, "total", result.Total)

	effectiveOut := absOut
	if !overwrite {
		safePath, changed, err := files.SafePath(absOut)
		if err != nil {
			return result, fmt.Errorf("failed to resolve output path: %w", err)
		}
		if changed {
			logger.Warn("Output path adjusted to avoid overwrite", "original", absOut, "effective", safePath)
			effectiveOut = safePath
		}
	}
	if status != StatusFailure {
		doc.Apply(out.translations)
		if err := doc.Save(effectiveOut); err != nil {
			return result, fmt.Errorf("failed to save output file: %w", err)
		}
		result.OutputPath = effectiveOut
		logger.Info("Saved results", "path", effectiveOut)
	}

	if len(missing) > 0 {
		session, err := newSession(absIn, effectiveOut, entries, missing, status, out, cfg)
		if err != nil {
			return result, err
		}
		path, err := recovery.SaveNew(recovery.SessionPath(effectiveOut), session)
		if err != nil {
			logger.Error("Failed to save session log", "error", err)
		} else {
			result.SessionPath = path
			logger.Warn("Translation incomplete - session log saved", "path", path, "missing", len(missing))
		}
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

func newSession(absIn, absOut string, entries []codec.Entry, missing []int, status Status, out outcome, cfg Config) (*recovery.SessionLog, error) {
	logPath := recovery.SessionPath(absOut)
	inputHash, err := recovery.HashFileHex(absIn)
	if err != nil {
		return nil, fmt.Errorf("failed to compute input hash for session log: %w", err)
	}
	relIn, err := recovery.ToRelativeInputPath(logPath, absIn)
	if err != nil {
		return nil, fmt.Errorf("failed to convert input path to relative: %w", err)
	}
	relOut, err := recovery.ToRelativeOutputPath(logPath, absOut)
	if err != nil {
		return nil, fmt.Errorf("failed to convert output path to relative: %w", err)
	}
	settings := cfg.Settings.Normalize()
	lang, _ := language.Resolve(cfg.TargetLanguage)
	return &recovery.SessionLog{
		LogVersion:       recovery.CurrentLogVersion,
		RunID:            uuid.NewString(),
		InputPath:        relIn,
		OutputPath:       relOut,
		InputHash:        inputHash,
		EntriesChecksum:  subtitle.Checksum(entries),
		Endpoint:         cfg.LLM.Endpoint,
		APIFormat:        string(cfg.LLM.Format),
		Model:            cfg.LLM.Model,
		TargetLanguage:   lang.Code,
		Prompt:           cfg.SystemPrompt,
		BatchSize:        settings.BatchSize,
		ParallelRequests: settings.ParallelRequests,
		MaxRetries:       settings.MaxRetries,
		Streaming:        settings.Streaming,
		TagPolicy:        string(settings.TagPolicy),
		TotalEntries:     len(entries),
		MissingIndices:   missing,
		ResumeIndex:      missing[0],
		Status:           string(status),
		StatusReason:     out.reason,
		ErrorMessage:     out.errorMessage,
	}, nil
}

func checkDistinct(absIn, absOut string) error {
	if absIn == absOut {
		return fmt.Errorf("input and output files are the same (%s)", absIn)
	}
	inInfo, err := os.Stat(absIn)
	if err != nil {
		return fmt.Errorf("failed to stat input path: %w", err)
	}
	outInfo, err := os.Stat(absOut)
	if err == nil && os.SameFile(inInfo, outInfo) {
		return fmt.Errorf("input and output files are the same (%s)", absIn)
	}
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat output path: %w", err)
	}
	return nil
}
