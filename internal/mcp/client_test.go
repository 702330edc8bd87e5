package mcp

import (
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "my_server", sanitizeName("my-server"))
	assert.Equal(t, "fetch_page", sanitizeName("fetch.page"))
	assert.Equal(t, "plain", sanitizeName("plain"))
}

func TestToolsArePrefixedWithServerName(t *testing.T) {
	c := NewClient(zerolog.Nop())
	c.servers["files"] = &serverConn{
		name:   "files",
		status: StatusConnected,
		tools: []Tool{
			{Name: "read", Description: "reads a file"},
			{Name: "list-dir", Description: "lists a directory"},
		},
	}
	c.servers["down"] = &serverConn{
		name:   "down",
		status: StatusFailed,
		tools:  []Tool{{Name: "never"}},
	}

	tools := c.Tools()
	require.Len(t, tools, 2)

	names := []string{tools[0].Name, tools[1].Name}
	assert.Contains(t, names, "files_read")
	assert.Contains(t, names, "files_list_dir")
}

func TestFindToolResolvesPrefixedName(t *testing.T) {
	c := NewClient(zerolog.Nop())
	c.servers["files"] = &serverConn{
		name:    "files",
		status:  StatusConnected,
		session: &sdkmcp.ClientSession{},
		tools:   []Tool{{Name: "list-dir"}},
	}

	conn, original := c.findTool("files_list_dir")
	require.NotNil(t, conn)
	assert.Equal(t, "list-dir", original)

	conn, _ = c.findTool("other_list_dir")
	assert.Nil(t, conn)
}

func TestFromSDKTool(t *testing.T) {
	converted := fromSDKTool(&sdkmcp.Tool{
		Name:        "sum",
		Description: "adds numbers",
		InputSchema: &jsonschema.Schema{Type: "object"},
	})

	assert.Equal(t, "sum", converted.Name)
	assert.JSONEq(t, `{"type":"object"}`, string(converted.InputSchema))

	// A tool without a schema still yields a valid empty object schema.
	converted = fromSDKTool(&sdkmcp.Tool{Name: "bare"})
	assert.JSONEq(t, `{"type":"object"}`, string(converted.InputSchema))
}

func TestServerToolParametersDefault(t *testing.T) {
	st := &serverTool{meta: Tool{Name: "files_read"}}
	assert.JSONEq(t, `{"type":"object"}`, string(st.Parameters()))
}
