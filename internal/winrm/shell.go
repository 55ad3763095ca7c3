package winrm

import (
	"context"
	"fmt"
	"time"

	"github.com/halcyard/winch/internal/metrics"
	"github.com/halcyard/winch/internal/wsman"
)

// Shell is an open remote cmd shell.
type Shell struct {
	client *Client
	id     string
}

// ID returns the endpoint-assigned shell identifier.
func (s *Shell) ID() string {
	return s.id
}

// Start launches a command in the shell without waiting for output.
func (s *Shell) Start(ctx context.Context, command string, args ...string) (*Command, error) {
	doc, err := s.client.send(ctx, s.client.session.Command(s.id, command, args))
	if err != nil {
		return nil, fmt.Errorf("starting command: %w", err)
	}
	id, err := doc.CommandID()
	if err != nil {
		return nil, err
	}
	s.client.log.Debug("command started", "shell_id", s.id, "command_id", id)
	return &Command{shell: s, id: id}, nil
}

// Run starts a command and reads it to completion, relaying chunks to
// onChunk as they arrive. The command is terminated afterwards so the
// endpoint releases its bookkeeping, output or no output.
func (s *Shell) Run(ctx context.Context, command string, args []string, onChunk ChunkFunc) (*Output, error) {
	started := time.Now()
	cmd, err := s.Start(ctx, command, args...)
	if err != nil {
		metrics.RecordCommand("error", time.Since(started).Seconds())
		return nil, err
	}

	out, err := cmd.Output(ctx, onChunk)
	cmd.cleanup(ctx)
	if err != nil {
		metrics.RecordCommand("error", time.Since(started).Seconds())
		return nil, err
	}

	status := "ok"
	if out.ExitCode != 0 {
		status = "failed"
	}
	metrics.RecordCommand(status, time.Since(started).Seconds())
	return out, nil
}

// Close deletes the shell on the endpoint.
func (s *Shell) Close(ctx context.Context) error {
	_, err := s.client.send(ctx, s.client.session.DeleteShell(s.id))
	metrics.RecordShellClose()
	if err != nil {
		return fmt.Errorf("closing shell: %w", err)
	}
	s.client.log.Debug("shell closed", "shell_id", s.id)
	return nil
}

// Command is a command running inside a shell.
type Command struct {
	shell *Shell
	id    string
}

// ID returns the endpoint-assigned command identifier.
func (c *Command) ID() string {
	return c.id
}

// SendInput writes data to the command's stdin; end closes the stream.
func (c *Command) SendInput(ctx context.Context, data []byte, end bool) error {
	_, err := c.shell.client.send(ctx, c.shell.client.session.Send(c.shell.id, c.id, data, end))
	if err != nil {
		return fmt.Errorf("sending input: %w", err)
	}
	return nil
}

// Output reads the command to completion.
func (c *Command) Output(ctx context.Context, onChunk ChunkFunc) (*Output, error) {
	return c.shell.client.receiver.ReadOutput(ctx, c.shell.id, c.id, onChunk)
}

// Poll performs one receive exchange without waiting for completion.
func (c *Command) Poll(ctx context.Context, onChunk ChunkFunc) (*Output, error) {
	return c.shell.client.receiver.CommandOutput(ctx, c.shell.id, c.id, onChunk)
}

// Signal delivers a signal code to the command.
func (c *Command) Signal(ctx context.Context, code string) error {
	_, err := c.shell.client.send(ctx, c.shell.client.session.Signal(c.shell.id, c.id, code))
	if err != nil {
		return fmt.Errorf("signalling command: %w", err)
	}
	return nil
}

// cleanup terminates the command so the endpoint frees its slot. Failures
// are logged, not returned: the output is already in hand, and the shell's
// deletion will reap the command anyway.
func (c *Command) cleanup(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := c.Signal(ctx, wsman.SignalTerminate); err != nil {
		c.shell.client.log.Debug("command cleanup failed", "command_id", c.id, "error", err)
	}
}
