package wsman

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Stream is one raw output chunk lifted from a receive response: the protocol
// stream name and the still-encoded payload text.
type Stream struct {
	Name string
	Text string
}

// Document is a parsed WS-Management response. Element selectors here are
// written without namespace prefixes; they match the rsp/w/n-prefixed
// elements regardless of which prefix the endpoint chose.
type Document struct {
	doc *etree.Document
}

// ParseDocument parses a SOAP response body.
func ParseDocument(data []byte) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if doc.Root() == nil {
		return nil, errors.New("parsing response: empty document")
	}
	return &Document{doc: doc}, nil
}

// Streams returns the named stream elements that carry a payload, in document
// order. Elements with no text are the endpoint's keepalives and are dropped
// here; nothing downstream sees them.
func (d *Document) Streams() []Stream {
	var streams []Stream
	for _, el := range d.doc.FindElements("//Stream") {
		text := el.Text()
		if text == "" {
			continue
		}
		streams = append(streams, Stream{
			Name: el.SelectAttrValue("Name", ""),
			Text: text,
		})
	}
	return streams
}

// ExitCode returns the raw exit-code text and whether the response carries
// one. Interpretation of the text is the caller's concern.
func (d *Document) ExitCode() (string, bool) {
	el := d.doc.FindElement("//ExitCode")
	if el == nil {
		return "", false
	}
	return el.Text(), true
}

// Done reports whether any element carries the CommandState done marker.
func (d *Document) Done() bool {
	for _, el := range d.doc.FindElements("//*") {
		if el.SelectAttrValue("State", "") == CommandStateDone {
			return true
		}
	}
	return false
}

// ShellID extracts the shell identifier from a create-shell response, looking
// at the ResourceCreated selector first and the Shell body second.
func (d *Document) ShellID() (string, error) {
	if el := d.doc.FindElement("//Selector[@Name='ShellId']"); el != nil && el.Text() != "" {
		return el.Text(), nil
	}
	if el := d.doc.FindElement("//ShellId"); el != nil && el.Text() != "" {
		return el.Text(), nil
	}
	return "", errors.New("create response carries no ShellId")
}

// CommandID extracts the command identifier from a command response.
func (d *Document) CommandID() (string, error) {
	if el := d.doc.FindElement("//CommandId"); el != nil && el.Text() != "" {
		return el.Text(), nil
	}
	return "", errors.New("command response carries no CommandId")
}

// EnumerationContext returns the continuation token of an enumerate or pull
// response.
func (d *Document) EnumerationContext() (string, bool) {
	el := d.doc.FindElement("//EnumerationContext")
	if el == nil {
		return "", false
	}
	return strings.TrimSpace(el.Text()), true
}

// EndOfSequence reports whether the enumeration is exhausted.
func (d *Document) EndOfSequence() bool {
	return d.doc.FindElement("//EndOfSequence") != nil
}

// Items decodes the result objects of a WQL response: one name→text property
// map per item. Properties the endpoint marks nil come back as empty strings.
func (d *Document) Items() []map[string]string {
	container := d.doc.FindElement("//Items")
	if container == nil {
		return nil
	}

	var items []map[string]string
	for _, obj := range container.ChildElements() {
		props := make(map[string]string)
		for _, p := range obj.ChildElements() {
			props[p.Tag] = p.Text()
		}
		items = append(items, props)
	}
	return items
}

// Fault returns the protocol fault carried in the body, or nil when the
// response is not a fault.
func (d *Document) Fault() *Fault {
	el := d.doc.FindElement("//Fault")
	if el == nil {
		return nil
	}

	fault := &Fault{}
	if wf := d.doc.FindElement("//WSManFault"); wf != nil {
		fault.Code = wf.SelectAttrValue("Code", "")
		if msg := wf.FindElement("Message"); msg != nil {
			fault.Message = strings.TrimSpace(msg.Text())
		}
	}
	if sub := el.FindElement("Code/Subcode/Value"); sub != nil {
		fault.Subcode = strings.TrimSpace(sub.Text())
	}
	if reason := el.FindElement("Reason/Text"); reason != nil {
		fault.Reason = strings.TrimSpace(reason.Text())
	}
	return fault
}

// String renders the document back to XML, for debug logging.
func (d *Document) String() string {
	out, err := d.doc.WriteToString()
	if err != nil {
		return ""
	}
	return out
}
