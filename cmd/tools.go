package cmd

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"larkgate/internal/formatting"
	"larkgate/internal/tools"
)

type toolsOptions struct {
	output string
	view   string
	query  string
	limit  int
	cursor string
}

func newToolsCmd() *cobra.Command {
	opts := &toolsOptions{}
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the built-in tool catalog",
		Long: `Lists the tools the gateway serves on /tools, /call and MCP without
contacting a running server. Filtering and paging follow GET /tools:
--query matches names and descriptions case-insensitively, --limit is
clamped to 1..200 and --cursor continues after the named tool.

Table output marks required arguments with an asterisk. JSON and YAML
output print the same page document /tools returns.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTools(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "Output format: table, json or yaml")
	cmd.Flags().StringVar(&opts.view, "view", "brief", "Listing view for json/yaml output: brief or full")
	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "Only list tools whose name or description contains this text")
	cmd.Flags().IntVar(&opts.limit, "limit", tools.DefaultLimit, "Maximum number of tools to list")
	cmd.Flags().StringVar(&opts.cursor, "cursor", "", "List tools after this name")
	return cmd
}

func runTools(cmd *cobra.Command, opts *toolsOptions) error {
	format, err := formatting.ParseOutputFormat(opts.output)
	if err != nil {
		return err
	}

	registry := tools.NewDefaultRegistry()
	page := registry.List(tools.ParseListOptions(url.Values{
		"view":   {opts.view},
		"q":      {opts.query},
		"limit":  {strconv.Itoa(opts.limit)},
		"cursor": {opts.cursor},
	}))

	if format != formatting.FormatTable {
		return formatting.Structured(cmd.OutOrStdout(), format, page)
	}

	listed := make([]tools.Tool, 0, len(page.Tools))
	for _, entry := range page.Tools {
		if tool, ok := registry.Lookup(entryName(entry)); ok {
			listed = append(listed, tool)
		}
	}
	formatting.ToolsTable(cmd.OutOrStdout(), listed)
	return nil
}

func entryName(entry any) string {
	switch e := entry.(type) {
	case tools.BriefEntry:
		return e.Name
	case tools.FullEntry:
		return e.Name
	default:
		return ""
	}
}
