package main

import (
	"fmt"
	"strings"

	"github.com/oukeidos/subflow/internal/auth"
	"github.com/oukeidos/subflow/internal/endpoint"
	"github.com/spf13/cobra"
)

var (
	saveKey   = auth.SaveKey
	deleteKey = auth.DeleteKey
)

type envOptions struct {
	service string
}

func newEnvCmd() *cobra.Command {
	opts := envOptions{}
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage API keys in OS Keychain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnvStatus(cmd, &opts)
		},
	}

	cmd.SetUsageTemplate(envUsageTemplate)
	cmd.PersistentFlags().StringVar(&opts.service, "service", "openai", "Key slot to manage (openai or anthropic)")

	cmd.AddCommand(
		newEnvSetupCmd(&opts),
		newEnvDeleteCmd(&opts),
		newEnvStatusCmd(&opts),
	)
	return cmd
}

func newEnvSetupCmd(opts *envOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Save API key to keychain (prompt only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnvSetup(cmd, opts)
		},
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	return cmd
}

func newEnvDeleteCmd(opts *envOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete key from keychain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnvDelete(cmd, opts)
		},
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	return cmd
}

func newEnvStatusCmd(opts *envOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show key status (default if no action given)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnvStatus(cmd, opts)
		},
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	return cmd
}

// serviceFormat maps the --service value to a keychain slot.
func serviceFormat(service string) (endpoint.Format, error) {
	switch strings.ToLower(strings.TrimSpace(service)) {
	case "openai":
		return endpoint.FormatOpenAI, nil
	case "anthropic":
		return endpoint.FormatAnthropic, nil
	default:
		return "", fmt.Errorf("invalid service %q. Must be 'openai' or 'anthropic'", service)
	}
}

func runEnvSetup(cmd *cobra.Command, opts *envOptions) error {
	format, err := serviceFormat(opts.service)
	if err != nil {
		return err
	}
	promptKey, err := promptForKey(fmt.Sprintf("%s API Key: ", vendorName(format)))
	if err != nil {
		return fmt.Errorf("error reading key: %w", err)
	}
	key := strings.TrimSpace(promptKey)
	if key == "" {
		return fmt.Errorf("API key is required for setup")
	}
	if err := saveKey(format, key); err != nil {
		return fmt.Errorf("error saving key: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s API key to keychain.\n", format)
	return nil
}

func runEnvDelete(cmd *cobra.Command, opts *envOptions) error {
	format, err := serviceFormat(opts.service)
	if err != nil {
		return err
	}
	if err := deleteKey(format); err != nil {
		return fmt.Errorf("error deleting key: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s API key from keychain.\n", format)
	return nil
}

func runEnvStatus(cmd *cobra.Command, opts *envOptions) error {
	format, err := serviceFormat(opts.service)
	if err != nil {
		return err
	}

	if getStatus(format) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s API Key: Found (source=Keychain)\n", format)
		return nil
	}
	if envKey, ok := getEnvKey(format); ok && envKey != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s API Key: Found (source=Environment Variable)\n", format)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s API Key: Not Found (keychain empty, env not set)\n", format)
	return nil
}
