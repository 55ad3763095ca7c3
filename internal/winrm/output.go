package winrm

import "strings"

// StreamKind names one of the two output streams a command writes to.
type StreamKind string

const (
	StreamStdout StreamKind = "stdout"
	StreamStderr StreamKind = "stderr"
)

// streamKind maps a protocol stream name onto a StreamKind. Names the
// protocol may grow later read as unknown and their chunks are dropped.
func streamKind(name string) (StreamKind, bool) {
	switch name {
	case string(StreamStdout):
		return StreamStdout, true
	case string(StreamStderr):
		return StreamStderr, true
	default:
		return "", false
	}
}

// Chunk is one decoded piece of command output.
type Chunk struct {
	Kind StreamKind
	Text string
}

// Output accumulates what a command wrote: its chunks in arrival order and
// the exit code once the endpoint reports one. The exit code defaults to 0
// and latches on first write; later sightings are ignored.
type Output struct {
	Chunks   []Chunk
	ExitCode int

	exitSet bool
}

// NewOutput returns an empty Output.
func NewOutput() *Output {
	return &Output{}
}

func (o *Output) append(kind StreamKind, text string) {
	o.Chunks = append(o.Chunks, Chunk{Kind: kind, Text: text})
}

func (o *Output) setExitCode(code int) {
	if o.exitSet {
		return
	}
	o.ExitCode = code
	o.exitSet = true
}

func (o *Output) exitCodeSeen() bool {
	return o.exitSet
}

// Stdout returns the stdout chunks joined in arrival order.
func (o *Output) Stdout() string {
	return o.join(StreamStdout)
}

// Stderr returns the stderr chunks joined in arrival order.
func (o *Output) Stderr() string {
	return o.join(StreamStderr)
}

func (o *Output) join(kind StreamKind) string {
	var b strings.Builder
	for _, c := range o.Chunks {
		if c.Kind == kind {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// String interleaves both streams in arrival order.
func (o *Output) String() string {
	var b strings.Builder
	for _, c := range o.Chunks {
		b.WriteString(c.Text)
	}
	return b.String()
}
