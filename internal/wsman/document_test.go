package wsman

import (
	"errors"
	"testing"
)

const receiveResponseXML = `<s:Envelope xml:lang="en-US"
  xmlns:s="http://www.w3.org/2003/05/soap-envelope"
  xmlns:a="http://schemas.xmlsoap.org/ws/2004/08/addressing"
  xmlns:w="http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd"
  xmlns:rsp="http://schemas.microsoft.com/wbem/wsman/1/windows/shell">
  <s:Header>
    <a:Action>http://schemas.microsoft.com/wbem/wsman/1/windows/shell/ReceiveResponse</a:Action>
  </s:Header>
  <s:Body>
    <rsp:ReceiveResponse>
      <rsp:Stream Name="stdout" CommandId="C1">SGVsbG8=</rsp:Stream>
      <rsp:Stream Name="stderr" CommandId="C1">V29ybGQ=</rsp:Stream>
      <rsp:Stream Name="stdout" CommandId="C1" End="true"></rsp:Stream>
      <rsp:CommandState CommandId="C1" State="http://schemas.microsoft.com/wbem/wsman/1/windows/shell/CommandState/Done">
        <rsp:ExitCode>0</rsp:ExitCode>
      </rsp:CommandState>
    </rsp:ReceiveResponse>
  </s:Body>
</s:Envelope>`

const runningResponseXML = `<s:Envelope
  xmlns:s="http://www.w3.org/2003/05/soap-envelope"
  xmlns:rsp="http://schemas.microsoft.com/wbem/wsman/1/windows/shell">
  <s:Body>
    <rsp:ReceiveResponse>
      <rsp:Stream Name="stdout" CommandId="C1">cGFydGlhbA==</rsp:Stream>
      <rsp:CommandState CommandId="C1" State="http://schemas.microsoft.com/wbem/wsman/1/windows/shell/CommandState/Running"/>
    </rsp:ReceiveResponse>
  </s:Body>
</s:Envelope>`

const timeoutFaultXML = `<s:Envelope xml:lang="en-US"
  xmlns:s="http://www.w3.org/2003/05/soap-envelope"
  xmlns:w="http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd">
  <s:Body>
    <s:Fault>
      <s:Code>
        <s:Value>s:Receiver</s:Value>
        <s:Subcode><s:Value>w:TimedOut</s:Value></s:Subcode>
      </s:Code>
      <s:Reason>
        <s:Text xml:lang="en-US">The WS-Management service cannot complete the operation within the time specified in OperationTimeout.</s:Text>
      </s:Reason>
      <s:Detail>
        <f:WSManFault xmlns:f="http://schemas.microsoft.com/wbem/wsman/1/wsmanfault" Code="2150858793" Machine="srv01.example.test">
          <f:Message>The WS-Management service cannot complete the operation within the time specified in OperationTimeout.</f:Message>
        </f:WSManFault>
      </s:Detail>
    </s:Fault>
  </s:Body>
</s:Envelope>`

const accessDeniedFaultXML = `<s:Envelope
  xmlns:s="http://www.w3.org/2003/05/soap-envelope"
  xmlns:w="http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd">
  <s:Body>
    <s:Fault>
      <s:Code>
        <s:Value>s:Sender</s:Value>
        <s:Subcode><s:Value>w:AccessDenied</s:Value></s:Subcode>
      </s:Code>
      <s:Reason>
        <s:Text xml:lang="en-US">Access is denied.</s:Text>
      </s:Reason>
      <s:Detail>
        <f:WSManFault xmlns:f="http://schemas.microsoft.com/wbem/wsman/1/wsmanfault" Code="5" Machine="srv01.example.test">
          <f:Message>Access is denied.</f:Message>
        </f:WSManFault>
      </s:Detail>
    </s:Fault>
  </s:Body>
</s:Envelope>`

const createResponseXML = `<s:Envelope
  xmlns:s="http://www.w3.org/2003/05/soap-envelope"
  xmlns:a="http://schemas.xmlsoap.org/ws/2004/08/addressing"
  xmlns:w="http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd"
  xmlns:x="http://schemas.xmlsoap.org/ws/2004/09/transfer"
  xmlns:rsp="http://schemas.microsoft.com/wbem/wsman/1/windows/shell">
  <s:Body>
    <x:ResourceCreated>
      <a:Address>http://host.example.test:5985/wsman</a:Address>
      <a:ReferenceParameters>
        <w:ResourceURI>http://schemas.microsoft.com/wbem/wsman/1/windows/shell/cmd</w:ResourceURI>
        <w:SelectorSet>
          <w:Selector Name="ShellId">D5A2622B-ABC1-4CC8-9F78-81BE5F81B644</w:Selector>
        </w:SelectorSet>
      </a:ReferenceParameters>
    </x:ResourceCreated>
    <rsp:Shell>
      <rsp:ShellId>D5A2622B-ABC1-4CC8-9F78-81BE5F81B644</rsp:ShellId>
      <rsp:InputStreams>stdin</rsp:InputStreams>
      <rsp:OutputStreams>stdout stderr</rsp:OutputStreams>
    </rsp:Shell>
  </s:Body>
</s:Envelope>`

const commandResponseXML = `<s:Envelope
  xmlns:s="http://www.w3.org/2003/05/soap-envelope"
  xmlns:rsp="http://schemas.microsoft.com/wbem/wsman/1/windows/shell">
  <s:Body>
    <rsp:CommandResponse>
      <rsp:CommandId>77DF7BB6-B5A0-4777-ABD9-9823C0774074</rsp:CommandId>
    </rsp:CommandResponse>
  </s:Body>
</s:Envelope>`

const enumerateResponseXML = `<s:Envelope
  xmlns:s="http://www.w3.org/2003/05/soap-envelope"
  xmlns:w="http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd"
  xmlns:n="http://schemas.xmlsoap.org/ws/2004/09/enumeration"
  xmlns:p="http://schemas.microsoft.com/wbem/wsman/1/wmi/root/cimv2/Win32_Service">
  <s:Body>
    <n:EnumerateResponse>
      <n:EnumerationContext>uuid:19696F74-9166-4D9D-AD4E-BE44B9DED859</n:EnumerationContext>
      <w:Items>
        <p:Win32_Service>
          <p:Name>WinRM</p:Name>
          <p:State>Running</p:State>
        </p:Win32_Service>
        <p:Win32_Service>
          <p:Name>Spooler</p:Name>
          <p:State>Stopped</p:State>
        </p:Win32_Service>
      </w:Items>
      <w:EndOfSequence/>
    </n:EnumerateResponse>
  </s:Body>
</s:Envelope>`

func parseDoc(t *testing.T, xml string) *Document {
	t.Helper()
	doc, err := ParseDocument([]byte(xml))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	return doc
}

func TestParseDocument_Invalid(t *testing.T) {
	if _, err := ParseDocument([]byte("<unclosed")); err == nil {
		t.Error("ParseDocument() on truncated XML should error")
	}
	if _, err := ParseDocument(nil); err == nil {
		t.Error("ParseDocument() on empty input should error")
	}
}

func TestDocument_Streams(t *testing.T) {
	doc := parseDoc(t, receiveResponseXML)

	streams := doc.Streams()
	if len(streams) != 2 {
		t.Fatalf("Streams() = %d elements, want 2 (empty element dropped)", len(streams))
	}
	if streams[0].Name != "stdout" || streams[0].Text != "SGVsbG8=" {
		t.Errorf("streams[0] = %+v, want stdout/SGVsbG8=", streams[0])
	}
	if streams[1].Name != "stderr" || streams[1].Text != "V29ybGQ=" {
		t.Errorf("streams[1] = %+v, want stderr/V29ybGQ=", streams[1])
	}
}

func TestDocument_ExitCode(t *testing.T) {
	doc := parseDoc(t, receiveResponseXML)
	code, ok := doc.ExitCode()
	if !ok {
		t.Fatal("ExitCode() ok = false, want true")
	}
	if code != "0" {
		t.Errorf("ExitCode() = %v, want 0", code)
	}

	doc = parseDoc(t, runningResponseXML)
	if _, ok := doc.ExitCode(); ok {
		t.Error("ExitCode() on running response ok = true, want false")
	}
}

func TestDocument_Done(t *testing.T) {
	if !parseDoc(t, receiveResponseXML).Done() {
		t.Error("Done() = false on a response carrying the done state")
	}
	if parseDoc(t, runningResponseXML).Done() {
		t.Error("Done() = true on a running response")
	}
}

func TestDocument_ShellID(t *testing.T) {
	doc := parseDoc(t, createResponseXML)
	id, err := doc.ShellID()
	if err != nil {
		t.Fatalf("ShellID() error = %v", err)
	}
	if id != "D5A2622B-ABC1-4CC8-9F78-81BE5F81B644" {
		t.Errorf("ShellID() = %v", id)
	}

	if _, err := parseDoc(t, commandResponseXML).ShellID(); err == nil {
		t.Error("ShellID() on a command response should error")
	}
}

func TestDocument_CommandID(t *testing.T) {
	doc := parseDoc(t, commandResponseXML)
	id, err := doc.CommandID()
	if err != nil {
		t.Fatalf("CommandID() error = %v", err)
	}
	if id != "77DF7BB6-B5A0-4777-ABD9-9823C0774074" {
		t.Errorf("CommandID() = %v", id)
	}
}

func TestDocument_Fault(t *testing.T) {
	tests := []struct {
		name        string
		xml         string
		wantCode    string
		wantSubcode string
		wantTimeout bool
	}{
		{"operation timeout", timeoutFaultXML, FaultCodeOperationTimeout, "w:TimedOut", true},
		{"access denied", accessDeniedFaultXML, "5", "w:AccessDenied", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fault := parseDoc(t, tt.xml).Fault()
			if fault == nil {
				t.Fatal("Fault() = nil, want a fault")
			}
			if fault.Code != tt.wantCode {
				t.Errorf("Code = %v, want %v", fault.Code, tt.wantCode)
			}
			if fault.Subcode != tt.wantSubcode {
				t.Errorf("Subcode = %v, want %v", fault.Subcode, tt.wantSubcode)
			}
			if fault.Message == "" {
				t.Error("Message is empty")
			}
			if fault.IsOperationTimeout() != tt.wantTimeout {
				t.Errorf("IsOperationTimeout() = %v, want %v", fault.IsOperationTimeout(), tt.wantTimeout)
			}

			var asFault *Fault
			if !errors.As(error(fault), &asFault) {
				t.Error("fault does not satisfy errors.As(*Fault)")
			}
		})
	}
}

func TestDocument_FaultAbsent(t *testing.T) {
	if fault := parseDoc(t, receiveResponseXML).Fault(); fault != nil {
		t.Errorf("Fault() = %v on a receive response, want nil", fault)
	}
}

func TestDocument_Enumeration(t *testing.T) {
	doc := parseDoc(t, enumerateResponseXML)

	ctx, ok := doc.EnumerationContext()
	if !ok {
		t.Fatal("EnumerationContext() ok = false")
	}
	if ctx != "uuid:19696F74-9166-4D9D-AD4E-BE44B9DED859" {
		t.Errorf("EnumerationContext() = %v", ctx)
	}
	if !doc.EndOfSequence() {
		t.Error("EndOfSequence() = false, want true")
	}

	items := doc.Items()
	if len(items) != 2 {
		t.Fatalf("Items() = %d, want 2", len(items))
	}
	if items[0]["Name"] != "WinRM" || items[0]["State"] != "Running" {
		t.Errorf("items[0] = %v", items[0])
	}
	if items[1]["Name"] != "Spooler" || items[1]["State"] != "Stopped" {
		t.Errorf("items[1] = %v", items[1])
	}
}

func TestFault_Error(t *testing.T) {
	tests := []struct {
		name  string
		fault Fault
		want  string
	}{
		{"code and message", Fault{Code: "5", Message: "Access is denied."}, "wsman fault 5: Access is denied."},
		{"code only", Fault{Code: "5"}, "wsman fault 5"},
		{"reason fallback", Fault{Reason: "boom"}, "wsman fault: boom"},
		{"empty", Fault{}, "wsman fault"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fault.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}
