package wsman

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
)

// Defaults applied by NewSession.
const (
	DefaultMaxEnvelopeSize  = 153600
	DefaultOperationTimeout = 60 * time.Second
	DefaultLocale           = "en-US"
)

// Session carries the addressing parameters shared by every message sent to
// one endpoint: the To URL echoed in each header, the envelope size cap, the
// server-side OperationTimeout and the locale pair.
type Session struct {
	To               string
	MaxEnvelopeSize  int
	OperationTimeout time.Duration
	Locale           string
}

// NewSession returns a Session for the endpoint URL with protocol defaults.
func NewSession(to string) *Session {
	return &Session{
		To:               to,
		MaxEnvelopeSize:  DefaultMaxEnvelopeSize,
		OperationTimeout: DefaultOperationTimeout,
		Locale:           DefaultLocale,
	}
}

// Option is a named entry of the header OptionSet.
type Option struct {
	Name  string
	Value string
}

// HeaderBuilder assembles the SOAP header for one operation. ShellID, when
// set, is addressed through a SelectorSet so the endpoint routes the request
// to an existing shell.
type HeaderBuilder struct {
	Session     *Session
	Action      string
	ResourceURI string
	ShellID     string
	Options     []Option
}

// Append writes the header under env and returns the generated MessageID.
// Every call mints a fresh MessageID: resending a logical request is a new
// addressed message on the wire.
func (h *HeaderBuilder) Append(env *etree.Element) string {
	messageID := "uuid:" + strings.ToUpper(uuid.NewString())

	header := env.CreateElement("env:Header")
	header.CreateElement("a:To").SetText(h.Session.To)

	replyTo := header.CreateElement("a:ReplyTo")
	address := replyTo.CreateElement("a:Address")
	address.CreateAttr("mustUnderstand", "true")
	address.SetText(AddressAnonymous)

	maxSize := header.CreateElement("w:MaxEnvelopeSize")
	maxSize.CreateAttr("mustUnderstand", "true")
	maxSize.SetText(strconv.Itoa(h.Session.MaxEnvelopeSize))

	header.CreateElement("a:MessageID").SetText(messageID)

	locale := header.CreateElement("w:Locale")
	locale.CreateAttr("xml:lang", h.Session.Locale)
	locale.CreateAttr("mustUnderstand", "false")

	dataLocale := header.CreateElement("p:DataLocale")
	dataLocale.CreateAttr("xml:lang", h.Session.Locale)
	dataLocale.CreateAttr("mustUnderstand", "false")

	header.CreateElement("w:OperationTimeout").SetText(formatTimeout(h.Session.OperationTimeout))

	resource := header.CreateElement("w:ResourceURI")
	resource.CreateAttr("mustUnderstand", "true")
	resource.SetText(h.ResourceURI)

	action := header.CreateElement("a:Action")
	action.CreateAttr("mustUnderstand", "true")
	action.SetText(h.Action)

	if h.ShellID != "" {
		selectorSet := header.CreateElement("w:SelectorSet")
		selector := selectorSet.CreateElement("w:Selector")
		selector.CreateAttr("Name", "ShellId")
		selector.SetText(h.ShellID)
	}

	if len(h.Options) > 0 {
		optionSet := header.CreateElement("w:OptionSet")
		for _, opt := range h.Options {
			option := optionSet.CreateElement("w:Option")
			option.CreateAttr("Name", opt.Name)
			option.SetText(opt.Value)
		}
	}

	return messageID
}

// Message is a single buildable WS-Management request. Build may be called
// repeatedly; each call assembles a complete envelope with a fresh MessageID
// around the same operation payload.
type Message struct {
	header HeaderBuilder
	body   func(body *etree.Element)
}

// Action returns the message's action URI.
func (m *Message) Action() string {
	return m.header.Action
}

// Build serializes the message into a SOAP envelope.
func (m *Message) Build() ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("env:Envelope")
	env.CreateAttr("xmlns:env", NamespaceEnvelope)
	env.CreateAttr("xmlns:a", NamespaceAddressing)
	env.CreateAttr("xmlns:w", NamespaceWSMan)
	env.CreateAttr("xmlns:p", NamespaceMSWSMan)
	env.CreateAttr("xmlns:rsp", NamespaceShell)
	env.CreateAttr("xmlns:n", NamespaceEnumeration)

	m.header.Append(env)

	body := env.CreateElement("env:Body")
	if m.body != nil {
		m.body(body)
	}

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializing %s request: %w", m.header.Action, err)
	}
	return out, nil
}

// ShellOptions configures a create-shell request.
type ShellOptions struct {
	WorkingDirectory string
	Environment      map[string]string
	IdleTimeout      time.Duration
	NoProfile        bool
	Codepage         int // 0 means 65001 (UTF-8)
}

// CreateShell builds the request that opens a cmd shell on the endpoint.
func (s *Session) CreateShell(opts ShellOptions) *Message {
	codepage := opts.Codepage
	if codepage == 0 {
		codepage = 65001
	}
	noProfile := "FALSE"
	if opts.NoProfile {
		noProfile = "TRUE"
	}

	return &Message{
		header: HeaderBuilder{
			Session:     s,
			Action:      ActionCreate,
			ResourceURI: ResourceShellCmd,
			Options: []Option{
				{Name: "WINRS_NOPROFILE", Value: noProfile},
				{Name: "WINRS_CODEPAGE", Value: strconv.Itoa(codepage)},
			},
		},
		body: func(body *etree.Element) {
			shell := body.CreateElement("rsp:Shell")
			shell.CreateElement("rsp:InputStreams").SetText(StreamStdin)
			shell.CreateElement("rsp:OutputStreams").SetText(StreamStdout + " " + StreamStderr)

			if opts.WorkingDirectory != "" {
				shell.CreateElement("rsp:WorkingDirectory").SetText(opts.WorkingDirectory)
			}
			if opts.IdleTimeout > 0 {
				shell.CreateElement("rsp:IdleTimeOut").SetText(formatTimeout(opts.IdleTimeout))
			}
			if len(opts.Environment) > 0 {
				keys := make([]string, 0, len(opts.Environment))
				for k := range opts.Environment {
					keys = append(keys, k)
				}
				sort.Strings(keys)

				env := shell.CreateElement("rsp:Environment")
				for _, k := range keys {
					variable := env.CreateElement("rsp:Variable")
					variable.CreateAttr("Name", k)
					variable.SetText(opts.Environment[k])
				}
			}
		},
	}
}

// Command builds the request that starts a command inside an open shell.
func (s *Session) Command(shellID, command string, args []string) *Message {
	return &Message{
		header: HeaderBuilder{
			Session:     s,
			Action:      ActionCommand,
			ResourceURI: ResourceShellCmd,
			ShellID:     shellID,
			Options: []Option{
				{Name: "WINRS_CONSOLEMODE_STDIN", Value: "TRUE"},
				{Name: "WINRS_SKIP_CMD_SHELL", Value: "FALSE"},
			},
		},
		body: func(body *etree.Element) {
			line := body.CreateElement("rsp:CommandLine")
			line.CreateElement("rsp:Command").SetText(command)
			for _, arg := range args {
				line.CreateElement("rsp:Arguments").SetText(arg)
			}
		},
	}
}

// ReceiveOptions narrows a receive request. The zero value asks for both
// output streams and omits the SequenceId attribute, which endpoints treat
// as "whatever is buffered next".
type ReceiveOptions struct {
	Streams    []string
	SequenceID *uint64
}

// Receive builds the request that asks for pending command output. The same
// Message is rebuilt for every poll of a running command.
func (s *Session) Receive(shellID, commandID string, opts ReceiveOptions) *Message {
	desired := strings.Join(opts.Streams, " ")
	if desired == "" {
		desired = StreamStdout + " " + StreamStderr
	}

	return &Message{
		header: HeaderBuilder{
			Session:     s,
			Action:      ActionReceive,
			ResourceURI: ResourceShellCmd,
			ShellID:     shellID,
		},
		body: func(body *etree.Element) {
			receive := body.CreateElement("rsp:Receive")
			if opts.SequenceID != nil {
				receive.CreateAttr("SequenceId", strconv.FormatUint(*opts.SequenceID, 10))
			}
			stream := receive.CreateElement("rsp:DesiredStream")
			stream.CreateAttr("CommandId", commandID)
			stream.SetText(desired)
		},
	}
}

// Send builds the request that writes to a running command's stdin. The
// payload travels base64 encoded; end marks the stream closed.
func (s *Session) Send(shellID, commandID string, data []byte, end bool) *Message {
	encoded := base64.StdEncoding.EncodeToString(data)

	return &Message{
		header: HeaderBuilder{
			Session:     s,
			Action:      ActionSend,
			ResourceURI: ResourceShellCmd,
			ShellID:     shellID,
		},
		body: func(body *etree.Element) {
			send := body.CreateElement("rsp:Send")
			stream := send.CreateElement("rsp:Stream")
			stream.CreateAttr("Name", StreamStdin)
			stream.CreateAttr("CommandId", commandID)
			if end {
				stream.CreateAttr("End", "true")
			}
			stream.SetText(encoded)
		},
	}
}

// Signal builds the request that delivers a signal code to a command. Used
// both for ctrl_c and for the terminate sent during command cleanup.
func (s *Session) Signal(shellID, commandID, code string) *Message {
	return &Message{
		header: HeaderBuilder{
			Session:     s,
			Action:      ActionSignal,
			ResourceURI: ResourceShellCmd,
			ShellID:     shellID,
		},
		body: func(body *etree.Element) {
			signal := body.CreateElement("rsp:Signal")
			signal.CreateAttr("CommandId", commandID)
			signal.CreateElement("rsp:Code").SetText(code)
		},
	}
}

// DeleteShell builds the request that closes a shell.
func (s *Session) DeleteShell(shellID string) *Message {
	return &Message{
		header: HeaderBuilder{
			Session:     s,
			Action:      ActionDelete,
			ResourceURI: ResourceShellCmd,
			ShellID:     shellID,
		},
	}
}

// maxEnumElements caps how many items an enumerate or pull response carries.
const maxEnumElements = 32000

// Enumerate builds a WQL query against the WMI root/cimv2 namespace.
func (s *Session) Enumerate(wql string) *Message {
	return &Message{
		header: HeaderBuilder{
			Session:     s,
			Action:      ActionEnumerate,
			ResourceURI: ResourceWMICIMv2,
		},
		body: func(body *etree.Element) {
			enum := body.CreateElement("n:Enumerate")
			enum.CreateElement("w:OptimizeEnumeration")
			enum.CreateElement("w:MaxElements").SetText(strconv.Itoa(maxEnumElements))
			filter := enum.CreateElement("w:Filter")
			filter.CreateAttr("Dialect", DialectWQL)
			filter.SetText(wql)
		},
	}
}

// Pull builds the continuation request for an unfinished enumeration.
func (s *Session) Pull(enumContext string) *Message {
	return &Message{
		header: HeaderBuilder{
			Session:     s,
			Action:      ActionPull,
			ResourceURI: ResourceWMICIMv2,
		},
		body: func(body *etree.Element) {
			pull := body.CreateElement("n:Pull")
			pull.CreateElement("n:EnumerationContext").SetText(enumContext)
			pull.CreateElement("n:MaxElements").SetText(strconv.Itoa(maxEnumElements))
		},
	}
}

// formatTimeout renders a duration as an ISO 8601 time duration, e.g. PT60S.
func formatTimeout(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("PT%dS", secs)
}
