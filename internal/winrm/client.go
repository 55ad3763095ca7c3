package winrm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/halcyard/winch/internal/logger"
	"github.com/halcyard/winch/internal/metrics"
	"github.com/halcyard/winch/internal/wsman"
	"golang.org/x/time/rate"
)

const (
	defaultCreateRetries = 1
	defaultRetryDelay    = 10 * time.Second
	cleanupTimeout       = 10 * time.Second
)

// DocumentTransport is the client's view of the transport. Lifecycle
// operations read identifiers and enumeration state out of the full
// document, not just the receive subset the Receiver uses.
type DocumentTransport interface {
	Send(ctx context.Context, payload []byte) (*wsman.Document, error)
}

// documentTransport narrows a DocumentTransport to the Receiver's Transport.
type documentTransport struct {
	dt DocumentTransport
}

func (t documentTransport) Send(ctx context.Context, payload []byte) (Response, error) {
	doc, err := t.dt.Send(ctx, payload)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// sessionBuilder adapts a *wsman.Session to the Receiver's MessageBuilder.
type sessionBuilder struct {
	session *wsman.Session
}

func (b sessionBuilder) Receive(shellID, commandID string, opts wsman.ReceiveOptions) Message {
	return b.session.Receive(shellID, commandID, opts)
}

// Client executes commands against one endpoint. It owns the session
// parameters, the transport, and a Receiver for output retrieval.
type Client struct {
	session   *wsman.Session
	transport DocumentTransport
	receiver  *Receiver
	log       *slog.Logger

	createRetries int
	retryDelay    time.Duration
	pollRate      float64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCreateShellRetries sets how often shell creation is retried on
// transport errors, and the pause between attempts. Faults returned by the
// endpoint are never retried.
func WithCreateShellRetries(retries int, delay time.Duration) ClientOption {
	return func(c *Client) {
		c.createRetries = retries
		c.retryDelay = delay
	}
}

// WithPollRate paces the output poll loop at rps requests per second.
func WithPollRate(rps float64) ClientOption {
	return func(c *Client) { c.pollRate = rps }
}

// WithClientLogger replaces the process-wide logger.
func WithClientLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient returns a Client speaking session's dialect over transport.
func NewClient(session *wsman.Session, transport DocumentTransport, opts ...ClientOption) *Client {
	c := &Client{
		session:       session,
		transport:     transport,
		log:           logger.Slog(),
		createRetries: defaultCreateRetries,
		retryDelay:    defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}

	receiverOpts := []ReceiverOption{WithLogger(c.log)}
	if c.pollRate > 0 {
		receiverOpts = append(receiverOpts, WithPollLimiter(rate.NewLimiter(rate.Limit(c.pollRate), 1)))
	}
	c.receiver = NewReceiver(documentTransport{transport}, sessionBuilder{session}, receiverOpts...)
	return c
}

// Receiver exposes the client's output retrieval engine.
func (c *Client) Receiver() *Receiver {
	return c.receiver
}

func (c *Client) send(ctx context.Context, msg *wsman.Message) (*wsman.Document, error) {
	payload, err := msg.Build()
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	return c.transport.Send(ctx, payload)
}

// CreateShell opens a cmd shell on the endpoint, retrying transient
// transport failures. A fault means the endpoint answered; those are final.
func (c *Client) CreateShell(ctx context.Context, opts wsman.ShellOptions) (*Shell, error) {
	msg := c.session.CreateShell(opts)

	var doc *wsman.Document
	var err error
	attempts := c.createRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		doc, err = c.send(ctx, msg)
		if err == nil {
			break
		}
		var fault *wsman.Fault
		if errors.As(err, &fault) || attempt == attempts {
			return nil, fmt.Errorf("creating shell: %w", err)
		}
		c.log.Warn("create shell failed, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}

	id, err := doc.ShellID()
	if err != nil {
		return nil, err
	}
	metrics.RecordShellOpen()
	c.log.Debug("shell created", "shell_id", id)
	return &Shell{client: c, id: id}, nil
}

// Run opens a shell, runs one command to completion and closes the shell
// again. onChunk, when non-nil, sees output as it arrives.
func (c *Client) Run(ctx context.Context, command string, args []string, onChunk ChunkFunc) (*Output, error) {
	shell, err := c.CreateShell(ctx, wsman.ShellOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if err := shell.Close(closeCtx); err != nil {
			c.log.Warn("failed to close shell", "shell_id", shell.ID(), "error", err)
		}
	}()
	return shell.Run(ctx, command, args, onChunk)
}

// RunPowershell runs a script through powershell's encoded command path,
// sidestepping cmd quoting entirely.
func (c *Client) RunPowershell(ctx context.Context, script string, onChunk ChunkFunc) (*Output, error) {
	return c.Run(ctx, PowershellCommand(script), nil, onChunk)
}
