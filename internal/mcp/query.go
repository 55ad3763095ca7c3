package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type queryParams struct {
	Host string `json:"host" jsonschema:"inventory name or address of the host to query"`
	WQL  string `json:"wql" jsonschema:"WQL query text, e.g. SELECT Name, State FROM Win32_Service"`
}

func (h *handler) queryHandler(ctx context.Context, req *mcp.CallToolRequest, params queryParams) (*mcp.CallToolResult, any, error) {
	if params.Host == "" {
		return errorResult("host is required")
	}
	if strings.TrimSpace(params.WQL) == "" {
		return errorResult("wql is required")
	}

	items, err := h.executor.Query(ctx, params.Host, params.WQL)
	if err != nil {
		return errorResult(fmt.Sprintf("query failed on %s: %v", params.Host, err))
	}

	return textResult(formatQueryItems(params.Host, items))
}

func formatQueryItems(host string, items []map[string]string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Host: %s\n", host)
	fmt.Fprintf(&b, "%d result(s)\n", len(items))

	for i, item := range items {
		fmt.Fprintf(&b, "\n[%d]\n", i+1)

		keys := make([]string, 0, len(item))
		for k := range item {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, item[k])
		}
	}

	return b.String()
}
