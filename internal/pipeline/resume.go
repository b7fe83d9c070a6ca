package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/oukeidos/subflow/internal/codec"
	"github.com/oukeidos/subflow/internal/endpoint"
	"github.com/oukeidos/subflow/internal/files"
	"github.com/oukeidos/subflow/internal/logger"
	"github.com/oukeidos/subflow/internal/recovery"
	"github.com/oukeidos/subflow/internal/subtitle"
)

// RunResume continues a session from its log. Only the entries the log
// lists as missing are sent; finished cues are taken from the partial
// output. The log is removed once nothing is missing and updated otherwise.
func RunResume(ctx context.Context, cfg Config) (Result, error) {
	start := time.Now()
	if err := cfg.ValidateResumeRuntime(); err != nil {
		return Result{}, fmt.Errorf("invalid configuration: %w", err)
	}
	logPath := cfg.SessionPath
	session, origHash, err := recovery.Load(logPath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load session log: %w", err)
	}
	if err := session.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid session log: %w", err)
	}

	inputPath := recovery.ResolvePath(logPath, session.InputPath)
	outputPath := recovery.ResolvePath(logPath, session.OutputPath)
	if _, err := os.Stat(inputPath); err != nil {
		return Result{}, fmt.Errorf("invalid session log: input file not found: %s", session.InputPath)
	}
	if err := files.RejectSymlinkPath(outputPath); err != nil {
		return Result{}, err
	}
	if err := files.RejectSymlinkPath(logPath); err != nil {
		return Result{}, err
	}

	inputHash, err := recovery.HashFileHex(inputPath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to compute input hash: %w", err)
	}
	if inputHash != session.InputHash {
		return Result{}, fmt.Errorf("input file content mismatch: expected %s, got %s", session.InputHash, inputHash)
	}
	doc, err := subtitle.Load(inputPath)
	if err != nil {
		return Result{}, err
	}
	entries := doc.Entries()
	if sum := subtitle.Checksum(entries); sum != session.EntriesChecksum {
		return Result{}, fmt.Errorf("entries checksum mismatch: expected %s, got %s", session.EntriesChecksum, sum)
	}

	target, missing, err := resumeTarget(doc, outputPath, session, cfg.ForceResume)
	if err != nil {
		return Result{}, err
	}
	pending := pick(entries, missing)

	unlock, err := files.Lock(outputPath)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := unlock(); err != nil {
			logger.Warn("Failed to release output lock", "error", err)
		}
	}()

	llmCfg := cfg.LLM
	llmCfg.Endpoint = session.Endpoint
	llmCfg.Format = endpoint.Format(session.APIFormat)
	llmCfg.Model = session.Model
	tr, err := newTranslator(llmCfg)
	if err != nil {
		return Result{}, err
	}

	logger.Info("Resuming session", "model", session.Model, "pending", len(pending), "total", session.TotalEntries)
	out, err := translate(ctx, tr, cfg, session.Prompt, session.Settings(cfg.Settings.ContinueOnError), pending)
	if err != nil {
		return Result{}, fmt.Errorf("resume failed: %w", err)
	}

	stillMissing := recovery.Missing(missing, indices(out.translations))
	status := Status(recovery.CalculateStatus(len(stillMissing), len(entries)))
	result := Result{
		Status:        status,
		Model:         session.Model,
		Translated:    len(entries) - len(stillMissing),
		Total:         len(entries),
		FailedBatches: out.failedBatches,
		ErrorMessage:  out.errorMessage,
		Canceled:      out.canceled,
		SessionPath:   logPath,
	}
	logger.Info("Resume finished", "status", status, "translated", result.Translated, "total", result.Total)

	if len(out.translations) > 0 || status == StatusSuccess {
		target.Apply(out.translations)
		if err := target.Save(outputPath); err != nil {
			return result, fmt.Errorf("failed to save output file: %w", err)
		}
		result.OutputPath = outputPath
		logger.Info("Saved results", "path", outputPath)
	}

	if len(stillMissing) == 0 {
		result.SessionPath = ""
		removeSession(logPath, origHash)
	} else {
		session.MissingIndices = stillMissing
		session.ResumeIndex = stillMissing[0]
		session.Status = string(status)
		session.StatusReason = out.reason
		session.ErrorMessage = out.errorMessage
		if err := recovery.Update(logPath, session); err != nil {
			logger.Error("Failed to update session log", "error", err)
		} else {
			logger.Warn("Resume incomplete - session log updated", "path", logPath, "missing", len(stillMissing))
		}
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// resumeTarget picks the document translations are applied to. The partial
// output is reused when it has the input's shape. Otherwise the input is
// used, which is only sound when every entry is pending or when forced.
func resumeTarget(input *subtitle.Document, outputPath string, session *recovery.SessionLog, force bool) (*subtitle.Document, []int, error) {
	missing := session.MissingIndices
	reason := ""
	output, err := subtitle.Load(outputPath)
	switch {
	case err != nil && len(missing) == session.TotalEntries:
		return input, missing, nil
	case err != nil:
		reason = fmt.Sprintf("output parse failed: %v", err)
	case output.Len() != input.Len():
		reason = fmt.Sprintf("cue count mismatch: expected %d, got %d", input.Len(), output.Len())
	default:
		return output, missing, nil
	}
	if !force {
		return nil, nil, fmt.Errorf("existing output could not be reused (%s). Use --force to ignore it and translate everything again", reason)
	}
	logger.Warn("Ignoring unusable output; translating every entry", "reason", reason)
	all := make([]int, 0, input.Len())
	for i := 1; i <= input.Len(); i++ {
		all = append(all, i)
	}
	return input, all, nil
}

func pick(entries []codec.Entry, wanted []int) []codec.Entry {
	set := make(map[int]struct{}, len(wanted))
	for _, idx := range wanted {
		set[idx] = struct{}{}
	}
	out := make([]codec.Entry, 0, len(wanted))
	for _, e := range entries {
		if _, ok := set[e.Index]; ok {
			out = append(out, e)
		}
	}
	return out
}

// removeSession deletes the log unless it changed while the session ran.
func removeSession(path string, origHash [32]byte) {
	currentHash, err := recovery.HashFile(path)
	switch {
	case err != nil:
		logger.Warn("Failed to read session log for verification", "path", path, "error", err)
	case currentHash != origHash:
		logger.Warn("Session log content changed; skipping delete", "path", path)
	default:
		if err := os.Remove(path); err != nil {
			logger.Warn("Failed to remove session log after success", "path", path, "error", err)
		}
	}
}
