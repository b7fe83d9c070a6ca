package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oukeidos/subflow/internal/config"
	"github.com/oukeidos/subflow/internal/endpoint"
	"github.com/oukeidos/subflow/internal/language"
	"github.com/oukeidos/subflow/internal/logger"
	"github.com/oukeidos/subflow/internal/pipeline"
	"github.com/oukeidos/subflow/internal/prompt"
	"github.com/oukeidos/subflow/internal/subtitle"
	"github.com/oukeidos/subflow/internal/translator"
	"github.com/spf13/cobra"
)

var runTranslationPipeline = pipeline.RunTranslation

type translateOptions struct {
	model           string
	endpoint        string
	format          string
	target          string
	batchSize       int
	parallel        int
	retries         int
	streaming       bool
	continueOnError bool
	noAutoContinue  bool
	tagPolicy       string
	promptText      string
	promptFile      string
	yes             bool
	envOnly         bool
}

func newTranslateCmd(g *globalOptions) *cobra.Command {
	opts := translateOptions{}
	cmd := &cobra.Command{
		Use:   "translate <input> [output]",
		Short: "Translate a subtitle file through the configured LLM endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				_ = cmd.Usage()
				return fmt.Errorf("input file is required")
			}
			return runTranslate(cmd, args, g, &opts)
		},
		SilenceUsage: true,
	}

	cmd.SetUsageTemplate(subcommandUsageTemplate)
	addTranslateFlags(cmd, &opts)
	return cmd
}

func addTranslateFlags(cmd *cobra.Command, opts *translateOptions) {
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name (overrides llm.model)")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "Endpoint URL (overrides llm.endpoint)")
	cmd.Flags().StringVar(&opts.format, "format", "", "API format: openai, anthropic or auto")
	cmd.Flags().StringVar(&opts.target, "target", "", "Target language code, e.g. pt-BR or ko")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, fmt.Sprintf("Entries per request (1-%d)", config.MaxBatchSize))
	cmd.Flags().IntVar(&opts.parallel, "parallel", 0, fmt.Sprintf("Concurrent requests per group (1-%d)", config.MaxParallelRequests))
	cmd.Flags().IntVar(&opts.retries, "retries", 0, fmt.Sprintf("Retries per failed batch (0-%d)", config.MaxRetries))
	cmd.Flags().BoolVar(&opts.streaming, "streaming", false, "Stream responses and decode entries as they arrive")
	cmd.Flags().BoolVar(&opts.continueOnError, "continue-on-error", false, "Keep going when a batch exhausts its retries")
	cmd.Flags().BoolVar(&opts.noAutoContinue, "no-auto-continue", false, "Pause after every batch group and ask before continuing")
	cmd.Flags().StringVar(&opts.tagPolicy, "tag-policy", "", "Override tag policy: default, strict or drop")
	cmd.Flags().StringVar(&opts.promptText, "prompt", "", "System prompt (overrides translation.prompt)")
	cmd.Flags().StringVar(&opts.promptFile, "prompt-file", "", "Read the system prompt from a file")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Overwrite output file without asking")
	cmd.Flags().BoolVar(&opts.envOnly, "env-only", false, "Use only environment variables for API keys")
}

func runTranslate(cmd *cobra.Command, args []string, g *globalOptions, opts *translateOptions) error {
	if len(args) > 2 {
		fmt.Fprintf(os.Stderr, "Warning: expected at most 2 arguments but got %d. Did you forget quotes around file paths?\n", len(args))
	}
	inputPath := args[0]
	outputPath := ""
	if len(args) > 1 {
		outputPath = args[1]
	}
	if err := validateSubtitleExtension("input", inputPath); err != nil {
		return err
	}
	if outputPath != "" {
		if err := validateSubtitleExtension("output", outputPath); err != nil {
			return err
		}
	}

	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	if err := applyTranslateFlags(cmd, cfg, opts); err != nil {
		return err
	}
	if err := cfg.ValidateLLM(); err != nil {
		return err
	}

	lang, err := language.Resolve(cfg.Translation.TargetLanguage)
	if err != nil {
		return err
	}
	if outputPath == "" {
		outputPath, err = subtitle.OutputPath(inputPath, lang.Code)
		if err != nil {
			return err
		}
	}

	settings, err := cfg.Settings()
	if err != nil {
		return err
	}
	systemPrompt, err := cfg.SystemPrompt()
	if err != nil {
		return err
	}

	format, err := endpoint.ParseFormat(cfg.LLM.APIFormat)
	if err != nil {
		return err
	}
	key, source, err := resolveAPIKey(endpoint.Detect(cfg.LLM.Endpoint, format), cfg.LLM.APIKey, opts.envOnly)
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

	reporter := stderrReporter(g.debug)
	confirmer := prompt.DefaultConfirmer()
	pcfg := pipeline.Config{
		InputPath:      inputPath,
		OutputPath:     outputPath,
		LLM:            llmCfg,
		Settings:       settings,
		SystemPrompt:   systemPrompt,
		TargetLanguage: lang.Code,
		Overwrite:      opts.yes,
		OnEvent:        reporter.Handle,
		OnConfirmOverwrite: func(path string) bool {
			confirmed, err := confirmer.ConfirmOverwrite(path, opts.yes)
			if err != nil {
				logger.Error("Overwrite confirmation failed", "error", err)
				return false
			}
			return confirmed
		},
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
	result, err := runTranslationPipeline(ctx, pcfg)
	reporter.Finish()
	if err != nil {
		return err
	}
	if result.Status != pipeline.StatusSkipped {
		printSummary(cmd.OutOrStdout(), result)
	}
	if result.Canceled {
		logger.Warn("Translation canceled")
	}
	return translationStatusError(result)
}

// applyTranslateFlags copies the flags the user set over the loaded file
// values and normalizes the result again.
func applyTranslateFlags(cmd *cobra.Command, cfg *config.Config, opts *translateOptions) error {
	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.LLM.Model = opts.model
	}
	if flags.Changed("endpoint") {
		cfg.LLM.Endpoint = opts.endpoint
	}
	if flags.Changed("format") {
		cfg.LLM.APIFormat = opts.format
	}
	if flags.Changed("target") {
		cfg.Translation.TargetLanguage = opts.target
	}
	if flags.Changed("batch-size") {
		cfg.Translation.BatchSize = opts.batchSize
	}
	if flags.Changed("parallel") {
		cfg.Translation.ParallelRequests = opts.parallel
	}
	if flags.Changed("retries") {
		cfg.Translation.MaxRetries = opts.retries
	}
	if flags.Changed("streaming") {
		cfg.Translation.Streaming = opts.streaming
	}
	if flags.Changed("continue-on-error") {
		cfg.Translation.ContinueOnError = opts.continueOnError
	}
	if flags.Changed("no-auto-continue") {
		cfg.Translation.AutoContinue = !opts.noAutoContinue
	}
	if flags.Changed("tag-policy") {
		cfg.Translation.TagPolicy = opts.tagPolicy
	}
	if opts.promptText != "" && opts.promptFile != "" {
		return errors.New("--prompt and --prompt-file cannot be used together")
	}
	if opts.promptText != "" {
		cfg.Translation.Prompt = opts.promptText
	}
	if opts.promptFile != "" {
		data, err := os.ReadFile(opts.promptFile)
		if err != nil {
			return fmt.Errorf("failed to read prompt file: %w", err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return fmt.Errorf("prompt file %s is empty", opts.promptFile)
		}
		cfg.Translation.Prompt = string(data)
	}

	for _, note := range cfg.Normalize() {
		logger.Warn("Setting adjusted", "note", note)
	}
	return cfg.Validate()
}

func translationStatusError(result pipeline.Result) error {
	switch result.Status {
	case pipeline.StatusSuccess, pipeline.StatusSkipped:
		return nil
	case pipeline.StatusPartialSuccess, pipeline.StatusFailure:
		if result.SessionPath != "" {
			return fmt.Errorf("translation finished with status: %s (resume with: subflow resume %s)", result.Status, result.SessionPath)
		}
		return fmt.Errorf("translation finished with status: %s", result.Status)
	default:
		return fmt.Errorf("translation finished with unknown status: %q", result.Status)
	}
}

var supportedSubtitleExtensions = map[string]struct{}{
	".srt":  {},
	".vtt":  {},
	".ssa":  {},
	".ass":  {},
	".ttml": {},
	".stl":  {},
}

const supportedSubtitleExtensionsLabel = ".srt, .vtt, .ssa, .ass, .ttml, .stl"

func validateSubtitleExtension(kind, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := supportedSubtitleExtensions[ext]; ok {
		return nil
	}
	if ext == "" {
		ext = "(none)"
	}
	return fmt.Errorf("unsupported %s extension %q (supported: %s)", kind, ext, supportedSubtitleExtensionsLabel)
}
