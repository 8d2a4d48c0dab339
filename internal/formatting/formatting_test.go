package formatting

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"larkgate/internal/bridge"
	"larkgate/internal/tools"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{in: "", want: FormatTable},
		{in: "table", want: FormatTable},
		{in: " JSON ", want: FormatJSON},
		{in: "yaml", want: FormatYAML},
		{in: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStructured(t *testing.T) {
	fixes := []PathFix{{Input: "im/v1/chats", Output: "/im/v1/chats"}}

	var js bytes.Buffer
	require.NoError(t, Structured(&js, FormatJSON, fixes))
	assert.Contains(t, js.String(), `"output": "/im/v1/chats"`)

	var ym bytes.Buffer
	require.NoError(t, Structured(&ym, FormatYAML, fixes))
	assert.Contains(t, ym.String(), "- input: im/v1/chats")
	assert.Contains(t, ym.String(), "  output: /im/v1/chats")
}

func TestToolsTable(t *testing.T) {
	var buf bytes.Buffer
	ToolsTable(&buf, []tools.Tool{{
		Name:        "list_messages",
		Description: "List messages in a chat",
		Args: []tools.Arg{
			{Name: "container_id", Required: true},
			{Name: "page_size"},
		},
	}})

	out := buf.String()
	assert.Contains(t, out, "list_messages")
	assert.Contains(t, out, "container_id*, page_size")
	assert.Contains(t, out, "1 tools")
}

func TestToolsTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	ToolsTable(&buf, nil)
	assert.Contains(t, buf.String(), "No tools found")
}

func TestPathFixTable(t *testing.T) {
	var buf bytes.Buffer
	PathFixTable(&buf, []PathFix{
		{Input: "/im/v1/chats", Output: "/im/v1/chats"},
		{Input: "/open-apis/im/v1/chats", Output: "/im/v1/chats"},
	})

	out := buf.String()
	assert.Contains(t, out, "/open-apis/im/v1/chats")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "no")
}

func TestStatusTable(t *testing.T) {
	var buf bytes.Buffer
	StatusTable(&buf, &bridge.Status{
		OK:         true,
		Authorized: true,
		User:       &bridge.StatusUser{UserID: "ou_1", Name: "Ada"},
		Token:      &bridge.StatusToken{ExpiresIn: "1h0m0s", WillAutoRefresh: true},
	})

	out := buf.String()
	assert.Contains(t, out, "ou_1")
	assert.Contains(t, out, "Ada")
	assert.Contains(t, out, "1h0m0s")
	assert.NotContains(t, out, "email")
}

func TestStatusTable_NotLinked(t *testing.T) {
	var buf bytes.Buffer
	StatusTable(&buf, &bridge.Status{OK: true, Message: "visit /auth"})
	assert.Contains(t, buf.String(), "visit /auth")
}

func TestToolsTable_LongDescriptionIsOneLine(t *testing.T) {
	long := "first line\nsecond line " + string(bytes.Repeat([]byte("x"), 200))
	var buf bytes.Buffer
	ToolsTable(&buf, []tools.Tool{{Name: "t", Description: long}})

	out := buf.String()
	assert.Contains(t, out, "first line second line")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, string(bytes.Repeat([]byte("x"), 100)))
}
