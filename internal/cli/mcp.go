package cli

import (
	"os/signal"
	"syscall"

	winchmcp "github.com/halcyard/winch/internal/mcp"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve winch tools over the Model Context Protocol on stdio",
	Long: `Expose winch_run, winch_query, and winch_history as MCP tools on
stdio, for use from an MCP-capable client. Connection settings and the
inventory come from the usual config sources.`,
	RunE: runMCPServer,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exec, err := newExecutor(cfg)
	if err != nil {
		return err
	}

	store := openHistory()
	if store != nil {
		defer store.Close()
	}

	server := winchmcp.NewServer(exec, store)
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}
