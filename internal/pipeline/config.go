package pipeline

import (
	"fmt"

	"github.com/oukeidos/subflow/internal/llm"
	"github.com/oukeidos/subflow/internal/translator"
)

// Config holds everything a translate or resume session needs.
type Config struct {
	InputPath  string
	OutputPath string
	// SessionPath names the session log to resume.
	SessionPath string

	LLM            llm.Config
	Settings       translator.Settings
	SystemPrompt   string
	TargetLanguage string

	// Overwrite replaces an existing output file without asking.
	Overwrite bool
	// ForceResume discards an unusable partial output and translates the
	// whole input again.
	ForceResume bool

	// OnEvent receives every orchestration event, in order.
	OnEvent func(translator.Event)
	// OnConfirmOverwrite is asked when the output exists and Overwrite is
	// false. Nil means skip the run.
	OnConfirmOverwrite func(path string) bool
	// OnConfirmContinue is asked when a run pauses with AutoContinue off.
	// Nil means stop.
	OnConfirmContinue func(translator.Progress) bool
}

// Validate checks the settings a fresh translation needs.
func (c Config) Validate() error {
	if c.InputPath == "" {
		return fmt.Errorf("input path is required")
	}
	if c.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}
	if c.SystemPrompt == "" {
		return fmt.Errorf("system prompt is empty")
	}
	return nil
}

// ValidateResumeRuntime checks only what resume takes from the caller. The
// rest comes from the session log.
func (c Config) ValidateResumeRuntime() error {
	if c.SessionPath == "" {
		return fmt.Errorf("session log path is required for resume")
	}
	return nil
}
