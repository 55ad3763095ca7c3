package winrm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/halcyard/winch/internal/logger"
	"github.com/halcyard/winch/internal/metrics"
	"github.com/halcyard/winch/internal/wsman"
	"golang.org/x/time/rate"
)

var (
	ErrMissingShellID   = errors.New("shell id required")
	ErrMissingCommandID = errors.New("command id required")
)

// Transport delivers one built request to the endpoint and returns the
// parsed response. Protocol faults surface as *wsman.Fault errors.
type Transport interface {
	Send(ctx context.Context, payload []byte) (Response, error)
}

// Response is the view of a response the receive loop needs.
type Response interface {
	Streams() []wsman.Stream
	ExitCode() (string, bool)
	Done() bool
}

// Message is a buildable request. Build runs once per poll iteration, so
// every request on the wire carries a fresh MessageID; a retried request
// resends the bytes of the build it is retrying.
type Message interface {
	Build() ([]byte, error)
}

// MessageBuilder mints the receive request for a command.
type MessageBuilder interface {
	Receive(shellID, commandID string, opts wsman.ReceiveOptions) Message
}

// StreamFunc consumes one raw stream element together with the response that
// carried it.
type StreamFunc func(stream wsman.Stream, response Response)

// ChunkFunc receives each decoded chunk as it arrives. Exactly one of
// stdout/stderr is non-empty per call.
type ChunkFunc func(stdout, stderr string)

// Receiver drives the receive side of the protocol: it polls an endpoint for
// a command's buffered output and folds the returned chunks into an Output.
// A Receiver is not reentrant; a mutex serializes its operations.
type Receiver struct {
	transport Transport
	builder   MessageBuilder
	decoder   Decoder
	options   wsman.ReceiveOptions
	limiter   *rate.Limiter
	log       *slog.Logger

	mu sync.Mutex
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithDecoder replaces the default base64 + UTF-8 cleanup decoder.
func WithDecoder(d Decoder) ReceiverOption {
	return func(r *Receiver) { r.decoder = d }
}

// WithReceiveOptions narrows the streams each receive request asks for.
func WithReceiveOptions(opts wsman.ReceiveOptions) ReceiverOption {
	return func(r *Receiver) { r.options = opts }
}

// WithPollLimiter paces poll iterations. The default is no pacing: the
// endpoint's OperationTimeout already holds each receive open server-side.
func WithPollLimiter(l *rate.Limiter) ReceiverOption {
	return func(r *Receiver) { r.limiter = l }
}

// WithLogger replaces the process-wide logger.
func WithLogger(log *slog.Logger) ReceiverOption {
	return func(r *Receiver) { r.log = log }
}

// NewReceiver returns a Receiver for the transport, minting receive requests
// through builder.
func NewReceiver(transport Transport, builder MessageBuilder, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		transport: transport,
		builder:   builder,
		decoder:   OutputDecoder{},
		log:       logger.Slog(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CommandOutput performs one successful receive exchange for the command and
// returns whatever output it carried. It does not wait for the command to
// finish: a response without the done marker still completes the call. Use
// ReadOutput to run a command to completion.
//
// onChunk, when non-nil, is invoked synchronously on the polling goroutine
// for every decoded chunk.
func (r *Receiver) CommandOutput(ctx context.Context, shellID, commandID string, onChunk ChunkFunc) (*Output, error) {
	return r.retrieve(ctx, shellID, commandID, false, onChunk)
}

// ReadOutput polls until the endpoint reports the command done, folding
// every chunk along the way. A command that never finishes holds the loop
// open; cancel ctx to abandon it.
func (r *Receiver) ReadOutput(ctx context.Context, shellID, commandID string, onChunk ChunkFunc) (*Output, error) {
	return r.retrieve(ctx, shellID, commandID, true, onChunk)
}

func (r *Receiver) retrieve(ctx context.Context, shellID, commandID string, waitDone bool, onChunk ChunkFunc) (*Output, error) {
	if shellID == "" {
		return nil, ErrMissingShellID
	}
	if commandID == "" {
		return nil, ErrMissingCommandID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := NewOutput()
	msg := r.builder.Receive(shellID, commandID, r.options)
	if err := r.pollOutput(ctx, msg, waitDone, r.fold(out, onChunk)); err != nil {
		return nil, err
	}
	return out, nil
}

// PollOutput drives the poll loop for one receive message: while the command
// is not done, rebuild the message, exchange it, and hand every non-empty
// stream element to fn. With waitDone false a single response, done or not,
// finishes the loop; with waitDone true only the done marker does.
func (r *Receiver) PollOutput(ctx context.Context, msg Message, waitDone bool, fn StreamFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pollOutput(ctx, msg, waitDone, fn)
}

func (r *Receiver) pollOutput(ctx context.Context, msg Message, waitDone bool, fn StreamFunc) error {
	var last Response
	for !commandDone(last, waitDone) {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		payload, err := msg.Build()
		if err != nil {
			return fmt.Errorf("building receive request: %w", err)
		}

		r.log.Debug("requesting command output")
		resp, err := r.exchange(ctx, payload)
		if err != nil {
			return err
		}
		last = resp

		for _, stream := range resp.Streams() {
			if stream.Text == "" {
				continue
			}
			fn(stream, resp)
		}
	}
	return nil
}

// commandDone is the loop's termination test. No response yet means keep
// polling; once one arrived, waitDone decides whether its done marker
// matters.
func commandDone(resp Response, waitDone bool) bool {
	switch {
	case resp == nil:
		return false
	case !waitDone:
		return true
	default:
		return resp.Done()
	}
}

// exchange sends one built payload, resending it for as long as the endpoint
// answers with an OperationTimeout fault. That fault only means the receive
// window elapsed before the command produced output; every other fault, and
// every transport error, propagates. Cancelling ctx bounds the resend loop
// for a command that stays silent.
func (r *Receiver) exchange(ctx context.Context, payload []byte) (Response, error) {
	for {
		resp, err := r.transport.Send(ctx, payload)
		if err == nil {
			return resp, nil
		}

		var fault *wsman.Fault
		if !errors.As(err, &fault) || !fault.IsOperationTimeout() {
			return nil, err
		}

		metrics.ReceiveRetries.Inc()
		r.log.Debug("receive window elapsed with no output, resending", "code", fault.Code)

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// fold returns the StreamFunc that decodes raw chunks into out and relays
// them to onChunk. A chunk the decoder rejects is dropped whole: no append,
// no exit-code probe, no callback.
func (r *Receiver) fold(out *Output, onChunk ChunkFunc) StreamFunc {
	return func(stream wsman.Stream, resp Response) {
		text, ok := r.decoder.Decode(stream.Text)
		if !ok {
			return
		}
		kind, ok := streamKind(stream.Name)
		if !ok {
			r.log.Debug("dropping chunk from unknown stream", "stream", stream.Name)
			return
		}

		out.append(kind, text)
		if !out.exitCodeSeen() {
			if raw, present := resp.ExitCode(); present {
				if code, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
					out.setExitCode(code)
				}
			}
		}
		r.log.Debug("retrieved output chunk", "stream", string(kind), "bytes", len(text))

		if onChunk == nil {
			return
		}
		switch kind {
		case StreamStdout:
			onChunk(text, "")
		case StreamStderr:
			onChunk("", text)
		}
	}
}
