package config

import (
	"fmt"
	"os"
	"strings"
)

// ApplyEnv overrides the endpoint and model from SUBFLOW_ENDPOINT and
// SUBFLOW_MODEL when they are set.
func (c *Config) ApplyEnv() {
	if value, ok := os.LookupEnv(envEndpoint); ok && strings.TrimSpace(value) != "" {
		c.LLM.Endpoint = value
	}
	if value, ok := os.LookupEnv(envModel); ok && strings.TrimSpace(value) != "" {
		c.LLM.Model = value
	}
}

// Normalize trims values and clamps numeric settings into range. It returns
// a note for every adjustment and may be called again after flag overrides.
func (c *Config) Normalize() []string {
	var notes []string
	notes = append(notes, c.normalizeLLM()...)
	notes = append(notes, c.normalizeTranslation()...)
	c.normalizeLogging()
	return notes
}

func (c *Config) normalizeLLM() []string {
	var notes []string
	c.LLM.Endpoint = strings.TrimSpace(c.LLM.Endpoint)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.APIFormat = strings.ToLower(strings.TrimSpace(c.LLM.APIFormat))
	if c.LLM.APIFormat == "" {
		c.LLM.APIFormat = defaultAPIFormat
	}
	headers := c.LLM.Headers[:0]
	for _, h := range c.LLM.Headers {
		h.Name = strings.TrimSpace(h.Name)
		if h.Name == "" {
			notes = append(notes, "llm.headers: entry without a name ignored")
			continue
		}
		headers = append(headers, h)
	}
	c.LLM.Headers = headers
	if c.LLM.TimeoutSeconds < 0 {
		notes = append(notes, fmt.Sprintf("llm.timeout_seconds %d reset to %d", c.LLM.TimeoutSeconds, defaultTimeoutSeconds))
		c.LLM.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.LLM.RequestsPerSecond < 0 {
		notes = append(notes, "llm.requests_per_second below 0 disables pacing")
		c.LLM.RequestsPerSecond = 0
	}
	return notes
}

func (c *Config) normalizeTranslation() []string {
	var notes []string
	t := &c.Translation
	if t.BatchSize < 1 {
		notes = append(notes, fmt.Sprintf("translation.batch_size clamped from %d to 1", t.BatchSize))
		t.BatchSize = 1
	}
	if t.BatchSize > MaxBatchSize {
		notes = append(notes, fmt.Sprintf("translation.batch_size clamped from %d to %d (max %d)", t.BatchSize, MaxBatchSize, MaxBatchSize))
		t.BatchSize = MaxBatchSize
	}
	if t.ParallelRequests < 1 {
		notes = append(notes, fmt.Sprintf("translation.parallel_requests clamped from %d to 1", t.ParallelRequests))
		t.ParallelRequests = 1
	}
	if t.ParallelRequests > MaxParallelRequests {
		notes = append(notes, fmt.Sprintf("translation.parallel_requests clamped from %d to %d (max %d)", t.ParallelRequests, MaxParallelRequests, MaxParallelRequests))
		t.ParallelRequests = MaxParallelRequests
	}
	if t.MaxRetries < 0 {
		notes = append(notes, fmt.Sprintf("translation.max_retries clamped from %d to 0", t.MaxRetries))
		t.MaxRetries = 0
	}
	if t.MaxRetries > MaxRetries {
		notes = append(notes, fmt.Sprintf("translation.max_retries clamped from %d to %d (max %d)", t.MaxRetries, MaxRetries, MaxRetries))
		t.MaxRetries = MaxRetries
	}
	t.TagPolicy = strings.ToLower(strings.TrimSpace(t.TagPolicy))
	t.TargetLanguage = strings.TrimSpace(t.TargetLanguage)
	return notes
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.File = strings.TrimSpace(c.Logging.File)
}
