package cli

import (
	"context"
	"fmt"

	"github.com/halcyard/winch/internal/config"
	"github.com/halcyard/winch/internal/inventory"
	"github.com/halcyard/winch/internal/transport"
	"github.com/halcyard/winch/internal/winrm"
	"github.com/halcyard/winch/internal/wsman"
)

// executor turns host references into WinRM clients and runs work on them.
// It satisfies the MCP server's Executor interface, so the same wiring
// backs the CLI commands, the watch scheduler, and the MCP tools.
type executor struct {
	cfg *config.Config
	inv *inventory.Inventory
}

func newExecutor(cfg *config.Config) (*executor, error) {
	inv, err := inventory.Load(cfg.Inventory)
	if err != nil {
		return nil, fmt.Errorf("loading inventory: %w", err)
	}
	return &executor{cfg: cfg, inv: inv}, nil
}

// hostFor resolves a host reference to an inventory entry. A name the
// inventory does not know is treated as a literal address using the
// configured connection defaults.
func (e *executor) hostFor(name string) inventory.Host {
	if h, ok := e.inv.Hosts[name]; ok {
		return h
	}
	return inventory.Host{Name: name}
}

// targets expands an inventory pattern (host, group, glob, or "all") into
// concrete hosts. Unlike hostFor, an unknown pattern is an error: a fan-out
// against a typoed group should fail loudly, not run against a bogus address.
func (e *executor) targets(pattern string) ([]inventory.Host, error) {
	return e.inv.SelectMany([]string{pattern})
}

// connection merges a host's inventory overrides onto the configured
// connection defaults.
func (e *executor) connection(h inventory.Host) config.Connection {
	conn := e.cfg.Connection
	conn.Host = h.Address()
	if h.Port != 0 {
		conn.Port = h.Port
	}
	if h.User != "" {
		conn.User = h.User
	}
	if h.Password != "" {
		conn.Password = h.Password
	}
	if h.HTTPS {
		conn.HTTPS = true
	}
	if h.Insecure {
		conn.Insecure = true
	}
	return conn
}

func (e *executor) clientFor(h inventory.Host) (*winrm.Client, error) {
	conn := e.connection(h)

	tr, err := transport.New(transport.Config{
		Endpoint: conn.EndpointURL(conn.Host),
		Username: conn.User,
		Password: conn.Password,
		Auth:     conn.Auth,
		Insecure: conn.Insecure,
		CACert:   conn.CACert,
		Timeout:  conn.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", h.Name, err)
	}

	session := wsman.NewSession(tr.Endpoint())
	if conn.OperationTimeout > 0 {
		session.OperationTimeout = conn.OperationTimeout
	}
	if conn.Locale != "" {
		session.Locale = conn.Locale
	}

	var opts []winrm.ClientOption
	if conn.PollRate > 0 {
		opts = append(opts, winrm.WithPollRate(conn.PollRate))
	}
	return winrm.NewClient(session, tr, opts...), nil
}

// runOn executes one command on one host, streaming decoded chunks through
// onChunk when it is non-nil.
func (e *executor) runOn(ctx context.Context, h inventory.Host, command string, args []string, powershell bool, onChunk winrm.ChunkFunc) (*winrm.Output, error) {
	client, err := e.clientFor(h)
	if err != nil {
		return nil, err
	}
	if powershell {
		return client.RunPowershell(ctx, command, onChunk)
	}
	return client.Run(ctx, command, args, onChunk)
}

// Run executes a command on a single host. Part of the MCP Executor
// contract; output is accumulated, not streamed.
func (e *executor) Run(ctx context.Context, host, command string, args []string, powershell bool) (*winrm.Output, error) {
	return e.runOn(ctx, e.hostFor(host), command, args, powershell, nil)
}

// Query runs a WQL query on a single host. Part of the MCP Executor contract.
func (e *executor) Query(ctx context.Context, host, wql string) ([]map[string]string, error) {
	client, err := e.clientFor(e.hostFor(host))
	if err != nil {
		return nil, err
	}
	return client.Query(ctx, wql)
}
