package commands

import (
	"github.com/spf13/cobra"

	"github.com/conduit-ai/conduit/internal/tool"
	"github.com/conduit-ai/conduit/pkg/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the built-in tools over MCP on stdio",
	Long: `Expose conduit's built-in tools (web_fetch, time, calculator) as a
Model Context Protocol server on stdin/stdout, so other MCP clients can
call them.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	s := mcpserver.New(tool.DefaultRegistry(), Version)
	return mcpserver.ServeStdio(s)
}
