// Package transport posts SOAP envelopes to a WinRM endpoint over HTTP.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/go-ntlmssp"
	"github.com/halcyard/winch/internal/logger"
	"github.com/halcyard/winch/internal/metrics"
	"github.com/halcyard/winch/internal/wsman"
)

const contentType = "application/soap+xml;charset=UTF-8"

// Supported authentication schemes.
const (
	AuthBasic = "basic"
	AuthNTLM  = "ntlm"
)

// Config describes one endpoint connection.
type Config struct {
	// Endpoint is the full listener URL, e.g. http://host:5985/wsman.
	Endpoint string

	Username string
	Password string

	// Auth selects the authentication scheme; NTLM is the default since
	// stock Windows listeners reject basic auth.
	Auth string

	// Insecure skips TLS certificate verification.
	Insecure bool

	// CACert is an optional PEM bundle to verify the endpoint against.
	CACert string

	// Timeout bounds each request. It must exceed the operation timeout
	// carried inside the envelopes, or long polls get cut off client-side.
	// Zero means no client-side bound.
	Timeout time.Duration
}

// Client posts envelopes to one endpoint. It satisfies the engine's
// transport contract: a response body carrying a fault comes back as a
// *wsman.Fault error, anything else parses into a document. The client
// never retries; retry policy belongs to the callers.
type Client struct {
	endpoint string
	username string
	password string
	http     *http.Client
}

// New builds a Client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint required")
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.Insecure}
	if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("reading ca cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CACert)
		}
		tlsConfig.RootCAs = pool
	}

	var rt http.RoundTripper = &http.Transport{
		TLSClientConfig: tlsConfig,
	}
	switch cfg.Auth {
	case "", AuthNTLM:
		rt = ntlmssp.Negotiator{RoundTripper: rt}
	case AuthBasic:
	default:
		return nil, fmt.Errorf("unknown auth scheme %q", cfg.Auth)
	}

	return &Client{
		endpoint: cfg.Endpoint,
		username: cfg.Username,
		password: cfg.Password,
		http: &http.Client{
			Transport: rt,
			Timeout:   cfg.Timeout,
		},
	}, nil
}

// Endpoint returns the listener URL this client posts to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send posts one envelope and parses the reply.
func (c *Client) Send(ctx context.Context, payload []byte) (*wsman.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordRequest("error", time.Since(started))
		return nil, fmt.Errorf("posting to %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordRequest("error", time.Since(started))
		return nil, fmt.Errorf("reading response: %w", err)
	}
	metrics.RecordRequest(strconv.Itoa(resp.StatusCode), time.Since(started))

	// Fault envelopes arrive under a 500 status, but the body is the
	// authoritative signal: parse first, status-check after.
	doc, parseErr := wsman.ParseDocument(body)
	if parseErr == nil {
		if fault := doc.Fault(); fault != nil {
			metrics.RecordFault(fault.Code)
			logger.Slog().Debug("endpoint returned fault",
				"code", fault.Code, "reason", fault.Reason)
			return nil, fault
		}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("authentication failed for %s: check username, password and auth scheme", c.endpoint)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode > 299 {
		return nil, fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, summarize(body))
	}
	if parseErr != nil {
		return nil, fmt.Errorf("parsing response: %w", parseErr)
	}
	return doc, nil
}

// summarize trims a response body for inclusion in an error message.
func summarize(body []byte) string {
	const max = 256
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
