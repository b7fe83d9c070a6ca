package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/oukeidos/subflow/internal/endpoint"
	"github.com/oukeidos/subflow/internal/translator"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(envConfigPath, "")
	t.Setenv(envEndpoint, "")
	t.Setenv(envModel, "")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, notes, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false")
	}
	if resolved != path {
		t.Fatalf("resolved = %q, want %q", resolved, path)
	}
	if len(notes) != 0 {
		t.Fatalf("unexpected notes %v", notes)
	}
	settings, err := cfg.Settings()
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if settings != translator.DefaultSettings() {
		t.Fatalf("Settings() = %#v, want defaults", settings)
	}
	if err := cfg.ValidateLLM(); err == nil {
		t.Fatal("expected ValidateLLM to require an endpoint")
	}
}

func TestLoad_ParsesSections(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[llm]
endpoint = " https://api.anthropic.com/v1 "
api_key = "file-key"
model = "claude-x"
api_format = "Anthropic"
requests_per_second = 2.5
timeout_seconds = 30

[[llm.headers]]
name = "X-Title"
value = "subflow"

[translation]
batch_size = 20
parallel_requests = 4
max_retries = 1
continue_on_error = true
streaming = true
tag_policy = "DROP"
target_language = "ko"

[logging]
level = "Debug"
`)
	cfg, _, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if err := cfg.ValidateLLM(); err != nil {
		t.Fatalf("ValidateLLM failed: %v", err)
	}

	llmCfg, err := cfg.LLMConfig("")
	if err != nil {
		t.Fatalf("LLMConfig failed: %v", err)
	}
	if llmCfg.Endpoint != "https://api.anthropic.com/v1" || llmCfg.Format != endpoint.FormatAnthropic {
		t.Fatalf("unexpected endpoint %q / %q", llmCfg.Endpoint, llmCfg.Format)
	}
	if llmCfg.APIKey != "file-key" || llmCfg.Timeout != 30*time.Second || llmCfg.RequestsPerSecond != 2.5 {
		t.Fatalf("unexpected llm config %#v", llmCfg)
	}
	if len(llmCfg.Headers) != 1 || llmCfg.Headers[0].Name != "X-Title" {
		t.Fatalf("unexpected headers %#v", llmCfg.Headers)
	}
	override, _ := cfg.LLMConfig("flag-key")
	if override.APIKey != "flag-key" {
		t.Fatalf("explicit key should win, got %q", override.APIKey)
	}

	settings, err := cfg.Settings()
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	want := translator.Settings{
		BatchSize:        20,
		ParallelRequests: 4,
		MaxRetries:       1,
		AutoContinue:     true,
		ContinueOnError:  true,
		Streaming:        true,
		TagPolicy:        translator.TagPolicyDrop,
	}
	if settings != want {
		t.Fatalf("Settings() = %#v, want %#v", settings, want)
	}

	prompt, err := cfg.SystemPrompt()
	if err != nil {
		t.Fatalf("SystemPrompt failed: %v", err)
	}
	if !strings.Contains(prompt, "to Korean.") {
		t.Fatalf("unexpected prompt %q", prompt)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "[translation]\nbatchsize = 10\n")
	if _, _, _, _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		body string
		want string
	}{
		{"format", "[llm]\napi_format = \"gemini\"\n", "llm.api_format"},
		{"policy", "[translation]\ntag_policy = \"lenient\"\n", "translation.tag_policy"},
		{"language", "[translation]\ntarget_language = \"not a language\"\n", "translation.target_language"},
		{"level", "[logging]\nlevel = \"loud\"\n", "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, _, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %s error, got %v", tt.want, err)
			}
		})
	}
}

func TestNormalize_ClampsAndNotes(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Translation.BatchSize = 0
	cfg.Translation.ParallelRequests = 99
	cfg.Translation.MaxRetries = -2
	cfg.LLM.TimeoutSeconds = -1

	notes := cfg.Normalize()
	if cfg.Translation.BatchSize != 1 || cfg.Translation.ParallelRequests != MaxParallelRequests || cfg.Translation.MaxRetries != 0 {
		t.Fatalf("unexpected translation %#v", cfg.Translation)
	}
	if cfg.LLM.TimeoutSeconds != defaultTimeoutSeconds {
		t.Fatalf("timeout = %d", cfg.LLM.TimeoutSeconds)
	}
	if len(notes) != 4 {
		t.Fatalf("expected 4 notes, got %v", notes)
	}
}

func TestApplyEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(envEndpoint, "http://localhost:11434/v1")
	t.Setenv(envModel, "llama3")
	cfg := Default()
	cfg.ApplyEnv()
	if cfg.LLM.Endpoint != "http://localhost:11434/v1" || cfg.LLM.Model != "llama3" {
		t.Fatalf("env overrides not applied: %#v", cfg.LLM)
	}
}

func TestApplyEnv_EmptyKeepsFileValues(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.LLM.Endpoint = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.ApplyEnv()
	if cfg.LLM.Endpoint != "https://api.openai.com/v1" || cfg.LLM.Model != "gpt-4o-mini" {
		t.Fatalf("empty env changed values: %#v", cfg.LLM)
	}
}

func TestLoad_EnvConfigPath(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "[llm]\nmodel = \"from-env-path\"\n")
	t.Setenv(envConfigPath, path)
	cfg, _, resolved, exists, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path || cfg.LLM.Model != "from-env-path" {
		t.Fatalf("unexpected result exists=%v resolved=%q model=%q", exists, resolved, cfg.LLM.Model)
	}
}

func TestSystemPrompt(t *testing.T) {
	cfg := Default()
	prompt, err := cfg.SystemPrompt()
	if err != nil {
		t.Fatalf("SystemPrompt failed: %v", err)
	}
	if prompt != DefaultPrompt("Brazilian Portuguese") {
		t.Fatalf("unexpected default prompt %q", prompt)
	}
	cfg.Translation.Prompt = "  Custom prompt.  "
	prompt, _ = cfg.SystemPrompt()
	if prompt != "Custom prompt." {
		t.Fatalf("override not used: %q", prompt)
	}
}

func TestCreateSample(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path, false); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	if err := CreateSample(path, false); err == nil {
		t.Fatal("expected error when file exists")
	}
	if err := CreateSample(path, true); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	cfg, _, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("sample does not load: %v", err)
	}
	if !exists || cfg.LLM.Model != "gpt-4o-mini" || cfg.Translation.BatchSize != 50 {
		t.Fatalf("unexpected sample values %#v", cfg)
	}
}

func TestPath_PrefersArgumentOverEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, "env.toml")
	argPath := filepath.Join(dir, "arg.toml")
	t.Setenv(envConfigPath, envPath)

	got, err := Path("")
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if got != envPath {
		t.Fatalf("Path(\"\") = %q, want %q", got, envPath)
	}
	got, err = Path(argPath)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if got != argPath {
		t.Fatalf("Path(arg) = %q, want %q", got, argPath)
	}
}
