package config

import (
	"fmt"

	"github.com/oukeidos/subflow/internal/endpoint"
	"github.com/oukeidos/subflow/internal/language"
	"github.com/oukeidos/subflow/internal/translator"
)

// Validate reports the first setting that cannot be used. Endpoint and model
// presence is checked by ValidateLLM so that commands that never call the
// API still work with an incomplete file.
func (c *Config) Validate() error {
	if _, err := endpoint.ParseFormat(c.LLM.APIFormat); err != nil {
		return fmt.Errorf("llm.api_format: %w", err)
	}
	if _, err := translator.ParseTagPolicy(c.Translation.TagPolicy); err != nil {
		return fmt.Errorf("translation.tag_policy: %w", err)
	}
	if _, err := language.Resolve(c.Translation.TargetLanguage); err != nil {
		return fmt.Errorf("translation.target_language: %w", err)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}

// ValidateLLM checks the settings required before any request is sent.
func (c *Config) ValidateLLM() error {
	if c.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint is required. Set %s or edit the config file (create with 'subflow config init')", envEndpoint)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required. Set %s, pass --model or edit the config file", envModel)
	}
	return nil
}
