package main

import (
	"fmt"
	"os"

	"github.com/oukeidos/subflow/internal/cleanup"
	"github.com/oukeidos/subflow/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func execute() {
	cmd := newRootCmd()
	err := cmd.Execute()
	if cleanupErr := cleanup.RunAll(); cleanupErr != nil {
		fmt.Fprintln(os.Stderr, cleanupErr)
		if err == nil {
			err = cleanupErr
		}
	}
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	translateOpts := translateOptions{}

	cmd := &cobra.Command{
		Use:   "subflow",
		Short: "Batch subtitle translation through LLM endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if hasAnyLocalFlagSet(cmd) {
					_ = cmd.Usage()
					return fmt.Errorf("input file is required")
				}
				return cmd.Help()
			}
			if isSubcommand(cmd, args[0]) {
				_ = cmd.Usage()
				return fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())
			}
			return runTranslate(cmd, args, g, &translateOpts)
		},
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
	}

	cmd.Version = version.Info()
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.SetUsageTemplate(rootUsageTemplate)

	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to config file (default ~/.config/subflow/config.toml or $SUBFLOW_CONFIG)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&g.logFile, "log-file", "", "Path to save machine-readable JSONL logs")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")
	addTranslateFlags(cmd, &translateOpts)

	cmd.AddCommand(
		newAboutCmd(),
		newTranslateCmd(g),
		newResumeCmd(g),
		newModelsCmd(g),
		newListCmd(),
		newEnvCmd(),
		newConfigCmd(g),
	)

	cmd.InitDefaultCompletionCmd()
	for _, sub := range cmd.Commands() {
		if sub.Name() == "completion" {
			sub.SetUsageTemplate(subcommandUsageTemplate)
			break
		}
	}

	return cmd
}

// hasAnyLocalFlagSet ignores the persistent flags so that
// "subflow --config x" alone still prints help.
func hasAnyLocalFlagSet(cmd *cobra.Command) bool {
	changed := false
	cmd.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changed = true
		}
	})
	return changed
}

func isSubcommand(cmd *cobra.Command, name string) bool {
	for _, c := range cmd.Commands() {
		if c.Name() == name {
			return true
		}
	}
	return false
}
