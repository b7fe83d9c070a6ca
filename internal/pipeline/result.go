package pipeline

import (
	"time"

	"github.com/oukeidos/subflow/internal/recovery"
)

// Status is the terminal state of a session.
type Status string

const (
	StatusSuccess        Status = Status(recovery.StatusSuccess)
	StatusPartialSuccess Status = Status(recovery.StatusPartialSuccess)
	StatusFailure        Status = Status(recovery.StatusFailure)
	StatusSkipped        Status = "Skipped"
)

// Result summarizes a translate or resume session.
type Result struct {
	Status        Status
	OutputPath    string
	SessionPath   string
	Model         string
	Translated    int
	Total         int
	FailedBatches int
	ErrorMessage  string
	Canceled      bool
	Elapsed       time.Duration
}
