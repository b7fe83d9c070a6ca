package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/oukeidos/subflow/internal/endpoint"
	"github.com/oukeidos/subflow/internal/llm"
	"github.com/oukeidos/subflow/internal/logger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// listModels is replaced in tests.
var listModels = func(ctx context.Context, cfg llm.Config) ([]llm.Model, error) {
	client, err := llm.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return client.ListModels(ctx)
}

type modelsOptions struct {
	endpoint string
	format   string
	output   string
	envOnly  bool
}

func newModelsCmd(g *globalOptions) *cobra.Command {
	opts := modelsOptions{}
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the configured endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(cmd, g, &opts)
		},
		SilenceUsage: true,
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "Endpoint URL (overrides llm.endpoint)")
	cmd.Flags().StringVar(&opts.format, "format", "", "API format: openai, anthropic or auto")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "Output format: table, json or yaml")
	cmd.Flags().BoolVar(&opts.envOnly, "env-only", false, "Use only environment variables for API keys")
	return cmd
}

func runModels(cmd *cobra.Command, g *globalOptions, opts *modelsOptions) error {
	output := strings.ToLower(strings.TrimSpace(opts.output))
	switch output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("invalid output format %q (expected table, json or yaml)", opts.output)
	}

	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	if opts.endpoint != "" {
		cfg.LLM.Endpoint = strings.TrimSpace(opts.endpoint)
	}
	if opts.format != "" {
		cfg.LLM.APIFormat = strings.ToLower(strings.TrimSpace(opts.format))
	}
	if cfg.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint is required. Pass --endpoint or edit the config file")
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
		logger.Debug("Using API Key", "source", source)
	}
	llmCfg, err := cfg.LLMConfig(key)
	if err != nil {
		return err
	}
	// NewClient insists on a model; the listing request never sends it.
	if llmCfg.Model == "" {
		llmCfg.Model = "-"
	}

	ctx, stop := signalContext()
	defer stop()
	models, err := listModels(ctx, llmCfg)
	if err != nil {
		return err
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return writeModels(cmd.OutOrStdout(), models, output)
}

func writeModels(w io.Writer, models []llm.Model, output string) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(models)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(models); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(models) == 0 {
		fmt.Fprintln(w, "No models reported by the endpoint.")
		return nil
	}
	rows := make([][]string, 0, len(models))
	for _, m := range models {
		ctxLen := ""
		if m.ContextLength > 0 {
			ctxLen = strconv.FormatUint(m.ContextLength, 10)
		}
		rows = append(rows, []string{m.ID, m.Name, m.OwnedBy, ctxLen})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"ID", "Name", "Owner", "Context"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	))
	return nil
}
