package main

import (
	"fmt"

	"github.com/oukeidos/subflow/internal/endpoint"
	"github.com/oukeidos/subflow/internal/logger"
	"github.com/oukeidos/subflow/internal/pipeline"
	"github.com/oukeidos/subflow/internal/prompt"
	"github.com/oukeidos/subflow/internal/recovery"
	"github.com/oukeidos/subflow/internal/translator"
	"github.com/spf13/cobra"
)

var runResumePipeline = pipeline.RunResume

type resumeOptions struct {
	force           bool
	continueOnError bool
	envOnly         bool
}

func newResumeCmd(g *globalOptions) *cobra.Command {
	opts := resumeOptions{}
	cmd := &cobra.Command{
		Use:   "resume <session.json>",
		Short: "Translate the entries an earlier run left untranslated",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				_ = cmd.Usage()
				return fmt.Errorf("session log is required")
			}
			return runResume(cmd, args, g, &opts)
		},
		SilenceUsage: true,
	}

	cmd.SetUsageTemplate(subcommandUsageTemplate)
	cmd.Flags().BoolVar(&opts.force, "force", false, "Ignore an unusable output file and translate every entry again")
	cmd.Flags().BoolVar(&opts.continueOnError, "continue-on-error", false, "Keep going when a batch exhausts its retries")
	cmd.Flags().BoolVar(&opts.envOnly, "env-only", false, "Use only environment variables for API keys")
	return cmd
}

func runResume(cmd *cobra.Command, args []string, g *globalOptions, opts *resumeOptions) error {
	sessionPath := args[0]

	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}

	// The endpoint, format and model come from the log; only the key is
	// resolved here.
	session, _, err := recovery.Load(sessionPath)
	if err != nil {
		return fmt.Errorf("failed to load session log: %w", err)
	}
	format := endpoint.Detect(session.Endpoint, endpoint.Format(session.APIFormat))
	key, source, err := resolveAPIKey(format, cfg.LLM.APIKey, opts.envOnly)
	if err != nil {
		return err
	}
	if source != "" {
		logger.Info("Using API Key", "source", source)
	}
	llmCfg, err := cfg.LLMConfig(key)
	if err != nil {
		return err
	}

	settings, err := cfg.Settings()
	if err != nil {
		return err
	}
	settings.ContinueOnError = opts.continueOnError || settings.ContinueOnError

	reporter := stderrReporter(g.debug)
	confirmer := prompt.DefaultConfirmer()
	pcfg := pipeline.Config{
		SessionPath: sessionPath,
		LLM:         llmCfg,
		Settings:    settings,
		ForceResume: opts.force,
		OnEvent:     reporter.Handle,
		OnConfirmContinue: func(p translator.Progress) bool {
			ok, err := confirmer.ConfirmContinue(p.TranslatedEntries, p.TotalEntries)
			if err != nil {
				logger.Error("Continue confirmation failed", "error", err)
				return false
			}
			return ok
		},
	}

	ctx, stop := signalContext()
	defer stop()
	result, err := runResumePipeline(ctx, pcfg)
	reporter.Finish()
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), result)
	if result.Canceled {
		logger.Warn("Resume canceled")
	}
	return translationStatusError(result)
}
