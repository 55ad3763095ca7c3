package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/halcyard/winch/internal/wsman"
)

const receiveXML = `
<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"
            xmlns:rsp="http://schemas.microsoft.com/wbem/wsman/1/windows/shell">
  <s:Body>
    <rsp:ReceiveResponse>
      <rsp:Stream Name="stdout" CommandId="CMD-1">SGVsbG8=</rsp:Stream>
      <rsp:CommandState CommandId="CMD-1" State="http://schemas.microsoft.com/wbem/wsman/1/windows/shell/CommandState/Done">
        <rsp:ExitCode>0</rsp:ExitCode>
      </rsp:CommandState>
    </rsp:ReceiveResponse>
  </s:Body>
</s:Envelope>`

const timeoutFaultXML = `
<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"
            xmlns:w="http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd"
            xmlns:f="http://schemas.microsoft.com/wbem/wsman/1/wsmanfault">
  <s:Body>
    <s:Fault>
      <s:Code>
        <s:Value>s:Receiver</s:Value>
        <s:Subcode><s:Value>w:TimedOut</s:Value></s:Subcode>
      </s:Code>
      <s:Reason><s:Text xml:lang="en-US">The WS-Management service cannot complete the operation within the time specified in OperationTimeout.</s:Text></s:Reason>
      <s:Detail>
        <f:WSManFault Code="2150858793" Machine="srv01">
          <f:Message>The WS-Management service cannot complete the operation within the time specified in OperationTimeout.</f:Message>
        </f:WSManFault>
      </s:Detail>
    </s:Fault>
  </s:Body>
</s:Envelope>`

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg.Endpoint = server.URL + "/wsman"
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestClient_Send_ParsesDocument(t *testing.T) {
	var gotContentType, gotUser, gotPass, gotBody string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotUser, gotPass, _ = r.BasicAuth()
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Write([]byte(receiveXML))
	}, Config{Username: "vagrant", Password: "hunter2", Auth: AuthBasic})

	doc, err := client.Send(context.Background(), []byte("<payload/>"))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotContentType != "application/soap+xml;charset=UTF-8" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotUser != "vagrant" || gotPass != "hunter2" {
		t.Errorf("credentials = %q/%q, want vagrant/hunter2", gotUser, gotPass)
	}
	if gotBody != "<payload/>" {
		t.Errorf("request body = %q, want %q", gotBody, "<payload/>")
	}
	streams := doc.Streams()
	if len(streams) != 1 || streams[0].Text != "SGVsbG8=" {
		t.Errorf("Streams() = %v, want one stdout chunk", streams)
	}
	if !doc.Done() {
		t.Error("Done() = false, want true")
	}
}

func TestClient_Send_FaultBecomesError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(timeoutFaultXML))
	}, Config{Auth: AuthBasic})

	_, err := client.Send(context.Background(), []byte("<payload/>"))
	var fault *wsman.Fault
	if !errors.As(err, &fault) {
		t.Fatalf("Send() error = %v, want *wsman.Fault", err)
	}
	if fault.Code != wsman.FaultCodeOperationTimeout {
		t.Errorf("fault code = %q, want %q", fault.Code, wsman.FaultCodeOperationTimeout)
	}
	if !fault.IsOperationTimeout() {
		t.Error("IsOperationTimeout() = false, want true")
	}
}

func TestClient_Send_Unauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, Config{Username: "vagrant", Password: "wrong", Auth: AuthBasic})

	_, err := client.Send(context.Background(), []byte("<payload/>"))
	if err == nil || !strings.Contains(err.Error(), "authentication failed") {
		t.Errorf("Send() error = %v, want authentication failure", err)
	}
}

func TestClient_Send_BadStatusWithoutFault(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>proxy error</html>"))
	}, Config{Auth: AuthBasic})

	_, err := client.Send(context.Background(), []byte("<payload/>"))
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("Send() error = %v, want status 502 error", err)
	}
}

func TestClient_Send_UnparsableBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not xml"))
	}, Config{Auth: AuthBasic})

	_, err := client.Send(context.Background(), []byte("<payload/>"))
	if err == nil || !strings.Contains(err.Error(), "parsing response") {
		t.Errorf("Send() error = %v, want parse error", err)
	}
}

func TestClient_Send_ContextDeadline(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
		w.Write([]byte(receiveXML))
	}, Config{Auth: AuthBasic})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Send(ctx, []byte("<payload/>"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestClient_Send_NTLMNegotiatorPassthrough(t *testing.T) {
	// When the endpoint never challenges, the negotiator hands the
	// response straight through.
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(receiveXML))
	}, Config{Username: "vagrant", Password: "hunter2", Auth: AuthNTLM})

	doc, err := client.Send(context.Background(), []byte("<payload/>"))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(doc.Streams()) != 1 {
		t.Errorf("Streams() = %v, want one chunk", doc.Streams())
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing endpoint", Config{}},
		{"unknown auth", Config{Endpoint: "http://srv01:5985/wsman", Auth: "kerberos"}},
		{"missing ca bundle", Config{Endpoint: "https://srv01:5986/wsman", CACert: "/nonexistent.pem"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Errorf("New(%+v) error = nil, want error", tt.cfg)
			}
		})
	}
}
