// Package mcp provides the winch MCP server, exposing remote command
// execution, WQL queries, and run history as tools over stdio.
package mcp

import (
	"context"
	_ "embed"

	"github.com/halcyard/winch"
	"github.com/halcyard/winch/internal/history"
	"github.com/halcyard/winch/internal/winrm"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed instructions.md
var Instructions string

// Executor runs commands and queries against remote hosts. The CLI wires in
// an inventory-aware implementation; tests substitute fakes.
type Executor interface {
	Run(ctx context.Context, host, command string, args []string, powershell bool) (*winrm.Output, error)
	Query(ctx context.Context, host, wql string) ([]map[string]string, error)
}

// handler holds shared dependencies for all tool handlers.
type handler struct {
	executor Executor
	store    *history.Store // nil disables run recording and winch_history
}

// NewServer creates an MCP server with all winch tools registered.
func NewServer(executor Executor, store *history.Store) *mcp.Server {
	h := &handler{executor: executor, store: store}

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "winch", Version: winch.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "winch_run",
		Description: `Execute a command on a remote Windows host over WinRM and return its output and exit code.

The host is an inventory name or an address reachable with the configured
credentials. Set powershell=true to run the command as an encoded PowerShell
script instead of a cmd.exe command line.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "winch_query",
		Description: `Run a WQL query (e.g. "SELECT Name, State FROM Win32_Service") against a host's WMI provider.

Returns the matching objects as one property list per result.`,
	}, h.queryHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "winch_history",
		Description: `List recent winch command runs recorded on this machine, newest first.

Optionally filter by host and cap the number of rows returned.`,
	}, h.historyHandler)

	return s
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
