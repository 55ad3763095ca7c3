package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/halcyard/winch/internal/history"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultHistoryLimit = 20

type historyParams struct {
	Host  string `json:"host,omitempty" jsonschema:"only list runs against this host. Defaults to all hosts."`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of runs to return. Default: 20."`
}

func (h *handler) historyHandler(ctx context.Context, req *mcp.CallToolRequest, params historyParams) (*mcp.CallToolResult, any, error) {
	if h.store == nil {
		return errorResult("run history is not enabled on this server")
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	runs, err := h.store.List(params.Host, "", limit)
	if err != nil {
		return errorResult(fmt.Sprintf("listing history: %v", err))
	}
	if len(runs) == 0 {
		return textResult("No recorded runs.")
	}

	return textResult(formatRuns(runs))
}

func formatRuns(runs []*history.Run) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%d run(s), newest first:\n\n", len(runs))
	for _, r := range runs {
		fmt.Fprintf(&b, "#%d  %s  [%s] %s: %s (exit %d, %s)",
			r.ID,
			r.StartedAt.Format(time.RFC3339),
			r.Status,
			r.Host,
			r.Command,
			r.ExitCode,
			r.Duration.Round(time.Millisecond),
		)
		if r.Error != "" {
			fmt.Fprintf(&b, ": %s", r.Error)
		}
		fmt.Fprintln(&b)
	}

	return b.String()
}
