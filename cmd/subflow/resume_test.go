package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oukeidos/subflow/internal/endpoint"
	"github.com/oukeidos/subflow/internal/pipeline"
	"github.com/oukeidos/subflow/internal/recovery"
)

func writeSession(t *testing.T, apiFormat, url string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "episode_ko_session.json")
	log := &recovery.SessionLog{
		Endpoint:  url,
		APIFormat: apiFormat,
		Model:     "m",
	}
	if err := recovery.Update(path, log); err != nil {
		t.Fatalf("write session: %v", err)
	}
	return path
}

func stubResume(t *testing.T, result pipeline.Result) *pipeline.Config {
	t.Helper()
	captured := &pipeline.Config{}
	prev := runResumePipeline
	runResumePipeline = func(_ context.Context, cfg pipeline.Config) (pipeline.Result, error) {
		*captured = cfg
		return result, nil
	}
	t.Cleanup(func() { runResumePipeline = prev })
	return captured
}

func TestResumeCommand_KeyFollowsSessionFormat(t *testing.T) {
	isolateConfig(t)
	stubs := withKeyStubs(t, false, "", "sk-ant", "")
	captured := stubResume(t, pipeline.Result{Status: pipeline.StatusSuccess, Translated: 3, Total: 3})
	session := writeSession(t, "auto", "https://api.anthropic.com/v1")

	out, err := executeCommand(t, "resume", session, "--force", "--continue-on-error")
	if err != nil {
		t.Fatalf("command failed: %v\n%s", err, out)
	}
	if len(stubs.formats) != 1 || stubs.formats[0] != endpoint.FormatAnthropic {
		t.Fatalf("expected anthropic key lookup, got %v", stubs.formats)
	}
	if captured.SessionPath != session || !captured.ForceResume || captured.LLM.APIKey != "sk-ant" {
		t.Fatalf("unexpected config: %#v", captured)
	}
	if !captured.Settings.ContinueOnError {
		t.Fatalf("expected continue-on-error to reach settings")
	}
	if !strings.Contains(out, "3 / 3") {
		t.Fatalf("expected summary, got %q", out)
	}
}

func TestResumeCommand_MissingLog(t *testing.T) {
	isolateConfig(t)
	withKeyStubs(t, false, "", "", "")
	stubResume(t, pipeline.Result{})

	_, err := executeCommand(t, "resume", filepath.Join(t.TempDir(), "nope.json"))
	if err == nil || !strings.Contains(err.Error(), "failed to load session log") {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestResumeCommand_RequiresArgument(t *testing.T) {
	_, err := executeCommand(t, "resume")
	if err == nil || !strings.Contains(err.Error(), "session log is required") {
		t.Fatalf("expected argument error, got %v", err)
	}
}
