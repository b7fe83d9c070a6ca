package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/oukeidos/subflow/internal/auth"
	"github.com/oukeidos/subflow/internal/cleanup"
	"github.com/oukeidos/subflow/internal/config"
	"github.com/oukeidos/subflow/internal/endpoint"
	"github.com/oukeidos/subflow/internal/files"
	"github.com/oukeidos/subflow/internal/logger"
	"golang.org/x/term"
)

const sourceConfigFile = "Config File"

var (
	isTerminal   = term.IsTerminal
	getKey       = auth.GetKey
	getEnvKey    = auth.GetEnvKey
	getStatus    = auth.GetStatus
	promptForKey = auth.PromptForAPIKey
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFile    string
	debug      bool
}

// loadConfig reads the configuration file and starts the logger. Flag values
// win over the [logging] section.
func loadConfig(g *globalOptions) (*config.Config, error) {
	cfg, notes, path, exists, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if g.logLevel != "" {
		level = g.logLevel
	}
	if g.debug {
		level = "debug"
	}
	logFile := cfg.Logging.File
	if g.logFile != "" {
		logFile = g.logFile
	}
	if logFile != "" {
		if err := files.RejectSymlinkPath(logFile); err != nil {
			return nil, err
		}
	}
	closeLog, err := logger.Setup(level, logFile)
	if err != nil {
		return nil, err
	}
	cleanup.Register(closeLog)

	if exists {
		logger.Debug("Loaded configuration", "path", path)
	} else {
		logger.Debug("No configuration file, using defaults", "path", path)
	}
	for _, note := range notes {
		logger.Warn("Configuration adjusted", "note", note)
	}
	return cfg, nil
}

// resolveAPIKey finds the key for a dialect. The keychain wins, then the
// environment, then the config file. A terminal user is asked last. Local
// endpoints often need no key, so running without one is only a warning.
func resolveAPIKey(format endpoint.Format, fileKey string, envOnly bool) (string, string, error) {
	if envOnly {
		if key, ok := getEnvKey(format); ok {
			return key, auth.SourceEnv, nil
		}
		return "", "", fmt.Errorf("env-only set but neither SUBFLOW_API_KEY nor the %s variable is set", vendorName(format))
	}

	if key, source := getKey(format, true); key != "" {
		return key, source, nil
	}
	if key := strings.TrimSpace(fileKey); key != "" {
		return key, sourceConfigFile, nil
	}

	if isTerminal(int(os.Stdin.Fd())) {
		key, err := promptForKey(fmt.Sprintf("%s API Key (press Enter to skip): ", vendorName(format)))
		if err != nil {
			return "", "", fmt.Errorf("error reading API key: %w", err)
		}
		if strings.TrimSpace(key) != "" {
			return strings.TrimSpace(key), "Terminal Prompt", nil
		}
	}

	logger.Warn("No API key found; sending requests without credentials")
	return "", "", nil
}

func vendorName(format endpoint.Format) string {
	if format == endpoint.FormatAnthropic {
		return "Anthropic"
	}
	return "OpenAI"
}

func signalContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("Cancellation requested")
			cancel()
		case <-ctx.Done():
		}
	}()
	stop := func() {
		signal.Stop(sigCh)
		cancel()
	}
	return ctx, stop
}
