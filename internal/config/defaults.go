package config

import "github.com/oukeidos/subflow/internal/translator"

const (
	defaultConfigPath = "~/.config/subflow/config.toml"
	envConfigPath     = "SUBFLOW_CONFIG"
	envEndpoint       = "SUBFLOW_ENDPOINT"
	envModel          = "SUBFLOW_MODEL"

	defaultAPIFormat      = "auto"
	defaultTimeoutSeconds = 600
	defaultLogLevel       = "info"

	MaxParallelRequests = 20
	MaxBatchSize        = 500
	MaxRetries          = 10
)

// Default returns the configuration used when no file is present.
func Default() Config {
	s := translator.DefaultSettings()
	return Config{
		LLM: LLM{
			APIFormat:      defaultAPIFormat,
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		Translation: Translation{
			BatchSize:        s.BatchSize,
			ParallelRequests: s.ParallelRequests,
			MaxRetries:       s.MaxRetries,
			AutoContinue:     s.AutoContinue,
			ContinueOnError:  s.ContinueOnError,
			Streaming:        s.Streaming,
			TagPolicy:        string(s.TagPolicy),
		},
		Logging: Logging{
			Level: defaultLogLevel,
		},
	}
}
