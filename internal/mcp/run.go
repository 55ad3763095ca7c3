package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/halcyard/winch/internal/history"
	"github.com/halcyard/winch/internal/logger"
	"github.com/halcyard/winch/internal/winrm"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type runParams struct {
	Host       string   `json:"host" jsonschema:"inventory name or address of the host to run on"`
	Command    string   `json:"command" jsonschema:"command line to execute, or the PowerShell script when powershell is true"`
	Args       []string `json:"args,omitempty" jsonschema:"additional arguments appended to the command. Ignored when powershell is true."`
	Powershell bool     `json:"powershell,omitempty" jsonschema:"run the command as an encoded PowerShell script. Default: false."`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	if params.Host == "" {
		return errorResult("host is required")
	}
	if strings.TrimSpace(params.Command) == "" {
		return errorResult("command is required")
	}

	started := time.Now()
	out, err := h.executor.Run(ctx, params.Host, params.Command, params.Args, params.Powershell)
	h.recordRun(params, out, err, started)

	if err != nil {
		return errorResult(fmt.Sprintf("run failed on %s: %v", params.Host, err))
	}
	return textResult(formatRunOutput(params.Host, out))
}

// recordRun appends the run to history. Recording is best effort: a storage
// failure must not mask the command result.
func (h *handler) recordRun(params runParams, out *winrm.Output, err error, started time.Time) {
	if h.store == nil {
		return
	}

	run := &history.Run{
		Host:      params.Host,
		Command:   commandLine(params),
		Source:    history.SourceMCP,
		Status:    history.StatusFor(exitCode(out), err),
		ExitCode:  exitCode(out),
		StartedAt: started,
		Duration:  time.Since(started),
	}
	if err != nil {
		run.Error = err.Error()
	}
	if out != nil {
		run.Stdout = out.Stdout()
		run.Stderr = out.Stderr()
	}

	if _, rerr := h.store.Record(run); rerr != nil {
		logger.Slog().Warn("recording run", "host", params.Host, "error", rerr)
	}
}

func commandLine(params runParams) string {
	if params.Powershell || len(params.Args) == 0 {
		return params.Command
	}
	return params.Command + " " + strings.Join(params.Args, " ")
}

func exitCode(out *winrm.Output) int {
	if out == nil {
		return 0
	}
	return out.ExitCode
}

func formatRunOutput(host string, out *winrm.Output) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Host: %s\n", host)
	fmt.Fprintf(&b, "Exit code: %d\n", out.ExitCode)

	if stdout := out.Stdout(); stdout != "" {
		fmt.Fprintf(&b, "\nstdout:\n%s", stdout)
		if !strings.HasSuffix(stdout, "\n") {
			fmt.Fprintln(&b)
		}
	}
	if stderr := out.Stderr(); stderr != "" {
		fmt.Fprintf(&b, "\nstderr:\n%s", stderr)
		if !strings.HasSuffix(stderr, "\n") {
			fmt.Fprintln(&b)
		}
	}
	if out.Stdout() == "" && out.Stderr() == "" {
		fmt.Fprintln(&b, "\n(no output)")
	}

	return b.String()
}
