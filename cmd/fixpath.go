package cmd

import (
	"github.com/spf13/cobra"

	"larkgate/internal/formatting"
	"larkgate/internal/pathfix"
)

func newFixPathCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "fix-path PATH...",
		Short: "Show how the gateway rewrites API paths",
		Long: `Applies the same path normalization and correction the /openapi proxy
uses: a missing leading slash or /open-apis prefix is added, repeated
slashes collapse, and known aliases such as /contact/v3/users/me or a
guessed service version are rewritten to the canonical upstream path.`,
		Example: `  larkgate fix-path im/v1/chats /v1/wiki/spaces /authen/users/me`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := formatting.ParseOutputFormat(output)
			if err != nil {
				return err
			}

			fixes := make([]formatting.PathFix, 0, len(args))
			for _, p := range args {
				fixes = append(fixes, formatting.PathFix{Input: p, Output: pathfix.Fix(p)})
			}
			if format != formatting.FormatTable {
				return formatting.Structured(cmd.OutOrStdout(), format, fixes)
			}
			formatting.PathFixTable(cmd.OutOrStdout(), fixes)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	return cmd
}
