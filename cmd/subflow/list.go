package main

import (
	"fmt"

	"github.com/oukeidos/subflow/internal/language"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "languages",
		Short: "List common target languages (any BCP 47 tag works)",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Common target languages:")
			for _, l := range language.Common() {
				fmt.Fprintf(out, "  %-30s [%s]\n", l.Name, l.Code)
			}
		},
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	return cmd
}
