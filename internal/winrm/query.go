package winrm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Query runs a WQL query against the endpoint's WMI service and returns one
// property map per result object, following the enumeration context until
// the endpoint reports the end of the sequence.
func (c *Client) Query(ctx context.Context, wql string) ([]map[string]string, error) {
	if strings.TrimSpace(wql) == "" {
		return nil, errors.New("empty query")
	}

	doc, err := c.send(ctx, c.session.Enumerate(wql))
	if err != nil {
		return nil, fmt.Errorf("enumerating: %w", err)
	}

	items := doc.Items()
	for !doc.EndOfSequence() {
		enumCtx, ok := doc.EnumerationContext()
		if !ok {
			break
		}
		doc, err = c.send(ctx, c.session.Pull(enumCtx))
		if err != nil {
			return nil, fmt.Errorf("pulling enumeration: %w", err)
		}
		items = append(items, doc.Items()...)
	}

	c.log.Debug("query finished", "items", len(items))
	return items, nil
}
