package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oukeidos/subflow/internal/endpoint"
	"github.com/oukeidos/subflow/internal/language"
	"github.com/oukeidos/subflow/internal/llm"
	"github.com/oukeidos/subflow/internal/translator"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// LLM contains endpoint connection settings.
type LLM struct {
	Endpoint          string   `toml:"endpoint"`
	APIKey            string   `toml:"api_key"`
	Model             string   `toml:"model"`
	APIFormat         string   `toml:"api_format"`
	Headers           []llm.Header `toml:"headers"`
	MaxTokens         int      `toml:"max_tokens"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	TimeoutSeconds    int      `toml:"timeout_seconds"`
}

// Translation contains orchestration settings.
type Translation struct {
	BatchSize        int    `toml:"batch_size"`
	ParallelRequests int    `toml:"parallel_requests"`
	MaxRetries       int    `toml:"max_retries"`
	AutoContinue     bool   `toml:"auto_continue"`
	ContinueOnError  bool   `toml:"continue_on_error"`
	Streaming        bool   `toml:"streaming"`
	TagPolicy        string `toml:"tag_policy"`
	TargetLanguage   string `toml:"target_language"`
	// Prompt overrides the generated default prompt.
	Prompt string `toml:"prompt"`
}

// Logging contains log output settings.
type Logging struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Config is the file-backed configuration. The program only reads it.
type Config struct {
	LLM         LLM         `toml:"llm"`
	Translation Translation `toml:"translation"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path of the default configuration file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load parses the file at path (or the default location when path is empty)
// over the defaults, normalizes it and validates it. A missing file is not an
// error. Environment overrides apply before normalization. It returns the config, normalization notes, the resolved path and
// whether the file existed.
func Load(path string) (*Config, []string, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ApplyEnv()
	notes := cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, nil, "", false, err
	}
	return &cfg, notes, resolvedPath, exists, nil
}

// Path resolves the file Load would read: path, then SUBFLOW_CONFIG, then
// the default location.
func Path(path string) (string, error) {
	resolved, _, err := resolveConfigPath(path)
	return resolved, err
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		if env := strings.TrimSpace(os.Getenv(envConfigPath)); env != "" {
			path = env
		} else {
			path = defaultConfigPath
		}
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

// CreateSample writes the commented sample configuration to path. An
// existing file is left untouched unless overwrite is set.
func CreateSample(path string, overwrite bool) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(expanded); err == nil {
			return fmt.Errorf("config file already exists: %s", expanded)
		}
	}
	if dir := filepath.Dir(expanded); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig converts the [llm] section for the client. apiKey overrides the
// file value when not empty.
func (c *Config) LLMConfig(apiKey string) (llm.Config, error) {
	format, err := endpoint.ParseFormat(c.LLM.APIFormat)
	if err != nil {
		return llm.Config{}, err
	}
	if strings.TrimSpace(apiKey) == "" {
		apiKey = c.LLM.APIKey
	}
	return llm.Config{
		Endpoint:          c.LLM.Endpoint,
		APIKey:            apiKey,
		Model:             c.LLM.Model,
		Format:            format,
		Headers:           c.LLM.Headers,
		MaxTokens:         c.LLM.MaxTokens,
		RequestsPerSecond: c.LLM.RequestsPerSecond,
		Timeout:           time.Duration(c.LLM.TimeoutSeconds) * time.Second,
	}, nil
}

// Settings converts the [translation] section for the orchestrator.
func (c *Config) Settings() (translator.Settings, error) {
	policy, err := translator.ParseTagPolicy(c.Translation.TagPolicy)
	if err != nil {
		return translator.Settings{}, err
	}
	return translator.Settings{
		BatchSize:        c.Translation.BatchSize,
		ParallelRequests: c.Translation.ParallelRequests,
		MaxRetries:       c.Translation.MaxRetries,
		AutoContinue:     c.Translation.AutoContinue,
		ContinueOnError:  c.Translation.ContinueOnError,
		Streaming:        c.Translation.Streaming,
		TagPolicy:        policy,
	}.Normalize(), nil
}

// SystemPrompt returns the configured prompt, or the default prompt for the
// target language.
func (c *Config) SystemPrompt() (string, error) {
	if p := strings.TrimSpace(c.Translation.Prompt); p != "" {
		return p, nil
	}
	lang, err := language.Resolve(c.Translation.TargetLanguage)
	if err != nil {
		return "", err
	}
	return DefaultPrompt(lang.Name), nil
}

// DefaultPrompt is the translation prompt used when none is configured.
func DefaultPrompt(targetName string) string {
	return fmt.Sprintf("Translate the following subtitle lines to %s. Keep the same tone and style. "+
		"Return only the translations, one per line, in the same order.", targetName)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
