// Package recovery persists the state of an unfinished run so that it can be
// resumed later without re-translating finished entries.
package recovery

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/oukeidos/subflow/internal/endpoint"
	"github.com/oukeidos/subflow/internal/files"
	"github.com/oukeidos/subflow/internal/language"
	"github.com/oukeidos/subflow/internal/translator"
)

// Session statuses.
const (
	StatusSuccess        = "Success"
	StatusPartialSuccess = "Partial Success"
	StatusFailure        = "Failure"
)

const (
	CurrentLogVersion = 1
	ReasonCanceled    = "canceled"
	ReasonStopped     = "stopped"
	ReasonFailed      = "failed"
)

// SessionLog stores what is needed to resume a run. Paths are relative to
// the log file.
type SessionLog struct {
	LogVersion      int    `json:"log_version"`
	RunID           string `json:"run_id"`
	InputPath       string `json:"input_path"`
	OutputPath      string `json:"output_path"`
	InputHash       string `json:"input_hash"`
	EntriesChecksum string `json:"entries_checksum"`

	Endpoint       string `json:"endpoint"`
	APIFormat      string `json:"api_format"`
	Model          string `json:"model"`
	TargetLanguage string `json:"target_language"`
	Prompt         string `json:"prompt"`

	BatchSize        int    `json:"batch_size"`
	ParallelRequests int    `json:"parallel_requests"`
	MaxRetries       int    `json:"max_retries"`
	Streaming        bool   `json:"streaming"`
	TagPolicy        string `json:"tag_policy"`

	TotalEntries int `json:"total_entries"`
	// MissingIndices lists every entry index without a translation.
	MissingIndices []int `json:"missing_indices"`
	ResumeIndex    int   `json:"resume_index"`
	FailedBatches  []int `json:"failed_batches,omitempty"`

	Status       string `json:"status"`
	StatusReason string `json:"status_reason,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Validate checks that the log is consistent and safe to resume.
func (log *SessionLog) Validate() error {
	if log.LogVersion != CurrentLogVersion {
		return fmt.Errorf("unsupported log_version: %d", log.LogVersion)
	}
	if err := validateRelative("input_path", log.InputPath, false); err != nil {
		return err
	}
	if err := validateRelative("output_path", log.OutputPath, true); err != nil {
		return err
	}
	if !strings.HasPrefix(log.InputHash, "sha256:") {
		return fmt.Errorf("invalid input_hash: %q", log.InputHash)
	}
	if !strings.HasPrefix(log.EntriesChecksum, "sha256:") {
		return fmt.Errorf("invalid entries_checksum: %q", log.EntriesChecksum)
	}
	if strings.TrimSpace(log.Endpoint) == "" {
		return fmt.Errorf("endpoint is empty")
	}
	if _, err := endpoint.ParseFormat(log.APIFormat); err != nil {
		return err
	}
	if strings.TrimSpace(log.Model) == "" {
		return fmt.Errorf("model name is empty")
	}
	if _, err := language.Resolve(log.TargetLanguage); err != nil {
		return err
	}
	if _, err := translator.ParseTagPolicy(log.TagPolicy); err != nil {
		return err
	}
	if log.BatchSize <= 0 {
		return fmt.Errorf("invalid batch_size: %d", log.BatchSize)
	}
	if log.ParallelRequests <= 0 {
		return fmt.Errorf("invalid parallel_requests: %d", log.ParallelRequests)
	}
	if log.MaxRetries < 0 {
		return fmt.Errorf("invalid max_retries: %d", log.MaxRetries)
	}
	if log.TotalEntries <= 0 {
		return fmt.Errorf("invalid total_entries: %d", log.TotalEntries)
	}
	if len(log.MissingIndices) == 0 {
		return fmt.Errorf("missing_indices is empty")
	}
	for _, idx := range log.MissingIndices {
		if idx < 1 || idx > log.TotalEntries {
			return fmt.Errorf("missing index out of range: %d", idx)
		}
	}
	switch log.Status {
	case StatusPartialSuccess, StatusFailure:
	default:
		return fmt.Errorf("invalid status: %q", log.Status)
	}
	switch log.StatusReason {
	case "", ReasonCanceled, ReasonStopped, ReasonFailed:
	default:
		return fmt.Errorf("invalid status_reason: %q", log.StatusReason)
	}
	return nil
}

func validateRelative(field, path string, noTraversal bool) error {
	if path == "" {
		return fmt.Errorf("%s is empty", field)
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("%s must be relative, not absolute: %s", field, path)
	}
	if noTraversal && strings.HasPrefix(filepath.Clean(path), "..") {
		return fmt.Errorf("%s cannot traverse parent directories: %s", field, path)
	}
	return nil
}

// Settings returns the orchestration settings the run used. AutoContinue is
// always on when resuming.
func (log *SessionLog) Settings(continueOnError bool) translator.Settings {
	policy, _ := translator.ParseTagPolicy(log.TagPolicy)
	return translator.Settings{
		BatchSize:        log.BatchSize,
		ParallelRequests: log.ParallelRequests,
		MaxRetries:       log.MaxRetries,
		AutoContinue:     true,
		ContinueOnError:  continueOnError,
		Streaming:        log.Streaming,
		TagPolicy:        policy,
	}
}

// Missing returns the sorted indices in all that are not in translated.
func Missing(all []int, translated []int) []int {
	done := make(map[int]struct{}, len(translated))
	for _, idx := range translated {
		done[idx] = struct{}{}
	}
	var missing []int
	for _, idx := range all {
		if _, ok := done[idx]; !ok {
			missing = append(missing, idx)
		}
	}
	slices.Sort(missing)
	return missing
}

// SaveNew writes a new session log next to path without replacing an
// existing one, and returns the path written.
func SaveNew(path string, log *SessionLog) (string, error) {
	data, err := marshal(log)
	if err != nil {
		return "", err
	}
	return files.AtomicWriteExclusive(path, data, 0o600)
}

// Update replaces the session log at path.
func Update(path string, log *SessionLog) error {
	data, err := marshal(log)
	if err != nil {
		return err
	}
	return files.AtomicWrite(path, data, 0o600)
}

func marshal(log *SessionLog) ([]byte, error) {
	if log.LogVersion == 0 {
		log.LogVersion = CurrentLogVersion
	}
	return json.MarshalIndent(log, "", "  ")
}

// SessionPath returns "<output base>_session.json" beside the output.
func SessionPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath))
	return filepath.Join(dir, base+"_session.json")
}

// Load reads a session log and returns it with the hash of its bytes.
func Load(path string) (*SessionLog, [32]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, [32]byte{}, err
	}
	var log SessionLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, [32]byte{}, fmt.Errorf("parse session log: %w", err)
	}
	return &log, sha256.Sum256(data), nil
}

// HashFile returns a SHA-256 hash of the file contents.
func HashFile(path string) ([32]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return [32]byte{}, err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return [32]byte{}, err
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// HashFileHex returns a sha256-prefixed hex string of the file contents.
func HashFileHex(path string) (string, error) {
	sum, err := HashFile(path)
	if err != nil {
		return "", err
	}
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// CalculateStatus derives the session status from missing and total entries.
func CalculateStatus(missing, total int) string {
	if missing == 0 {
		return StatusSuccess
	}
	if missing < total {
		return StatusPartialSuccess
	}
	return StatusFailure
}

// ResolvePath resolves a log-relative path against the log location.
func ResolvePath(logPath, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(logPath), path)
}

// ToRelativeOutputPath converts an output path to one relative to the log.
// The output must live under the log directory.
func ToRelativeOutputPath(logPath, outputPath string) (string, error) {
	rel, err := toRelativePath(logPath, outputPath)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("output path is not within log directory")
	}
	return rel, nil
}

// ToRelativeInputPath converts an input path to one relative to the log.
func ToRelativeInputPath(logPath, inputPath string) (string, error) {
	return toRelativePath(logPath, inputPath)
}

func toRelativePath(logPath, targetPath string) (string, error) {
	absLogDir, err := filepath.Abs(filepath.Dir(logPath))
	if err != nil {
		return "", err
	}
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return "", err
	}
	return filepath.Rel(absLogDir, absTarget)
}
