// Package formatting renders command line output: go-pretty tables for
// people, JSON or YAML for scripts.
package formatting

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"larkgate/internal/bridge"
	"larkgate/internal/tools"
	pkgstrings "larkgate/pkg/strings"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (supported: table, json, yaml)", s)
	}
}

// descriptionWidth caps the description column of the tools table.
const descriptionWidth = 72

// createTable creates a new table with standard styling
func createTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func header(names ...string) table.Row {
	row := make(table.Row, len(names))
	for i, n := range names {
		row[i] = text.FgHiCyan.Sprint(n)
	}
	return row
}

// Structured writes v as indented JSON or as YAML.
func Structured(w io.Writer, format OutputFormat, v any) error {
	if format == FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(toYAMLValue(v)); err != nil {
			return err
		}
		return enc.Close()
	}
	_, err := fmt.Fprintln(w, PrettyJSON(v))
	return err
}

// ToolsTable renders tools with their arguments. Required arguments are
// marked with an asterisk.
func ToolsTable(w io.Writer, list []tools.Tool) {
	if len(list) == 0 {
		fmt.Fprintf(w, "%s\n", text.FgYellow.Sprint("No tools found"))
		return
	}

	t := createTable(w)
	t.AppendHeader(header("NAME", "ARGUMENTS", "DESCRIPTION"))

	for _, tool := range list {
		args := make([]string, 0, len(tool.Args))
		for _, a := range tool.Args {
			name := a.Name
			if a.Required {
				name += "*"
			}
			args = append(args, name)
		}
		t.AppendRow(table.Row{
			text.FgHiWhite.Sprint(tool.Name),
			strings.Join(args, ", "),
			pkgstrings.Ellipsize(tool.Description, descriptionWidth),
		})
	}

	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d tools", len(list))})
	t.Render()
}

// PathFix is one row of fix-path output.
type PathFix struct {
	Input  string `json:"input" yaml:"input"`
	Output string `json:"output" yaml:"output"`
}

// PathFixTable renders corrected paths, highlighting the changed ones.
func PathFixTable(w io.Writer, fixes []PathFix) {
	t := createTable(w)
	t.AppendHeader(header("INPUT", "CORRECTED", "CHANGED"))

	for _, f := range fixes {
		changed := text.FgHiBlack.Sprint("no")
		output := f.Output
		if f.Output != f.Input {
			changed = text.FgGreen.Sprint("yes")
			output = text.FgGreen.Sprint(f.Output)
		}
		t.AppendRow(table.Row{f.Input, output, changed})
	}
	t.Render()
}

// StatusTable renders an /auth/status answer.
func StatusTable(w io.Writer, st *bridge.Status) {
	if !st.Authorized {
		fmt.Fprintf(w, "%s %s\n", text.FgYellow.Sprint("Not linked:"), st.Message)
		return
	}

	t := createTable(w)
	t.AppendHeader(header("KEY", "VALUE"))
	rows := map[string]string{"authorized": "yes"}
	if st.User != nil {
		rows["user id"] = st.User.UserID
		rows["name"] = st.User.Name
		rows["email"] = st.User.Email
	}
	if st.Token != nil {
		rows["expires in"] = st.Token.ExpiresIn
		rows["expired"] = fmt.Sprintf("%t", st.Token.Expired)
		rows["auto refresh"] = fmt.Sprintf("%t", st.Token.WillAutoRefresh)
	}

	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if rows[k] == "" {
			continue
		}
		t.AppendRow(table.Row{text.FgHiCyan.Sprint(k), rows[k]})
	}
	t.Render()
}
