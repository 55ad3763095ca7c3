// Package config resolves winch settings from flags, environment and the
// config file, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultHTTPPort  = 5985
	DefaultHTTPSPort = 5986

	// wsmanPath is the stock listener path on every Windows endpoint.
	wsmanPath = "/wsman"

	defaultOperationTimeout = 60 * time.Second

	// defaultTimeout leaves headroom above the operation timeout so the
	// endpoint, not the HTTP client, ends a quiet receive.
	defaultTimeout = 70 * time.Second
)

// Connection describes how to reach one endpoint.
type Connection struct {
	Host     string
	Port     int // 0 derives from HTTPS
	User     string
	Password string
	HTTPS    bool
	Insecure bool
	CACert   string
	Auth     string // basic or ntlm

	// Timeout bounds each HTTP request; OperationTimeout is what the
	// envelopes ask the endpoint to hold a receive open for.
	Timeout          time.Duration
	OperationTimeout time.Duration

	// PollRate caps receive polls per second per command. Zero leaves the
	// loop unpaced; the endpoint's OperationTimeout already throttles a
	// quiet command, so pacing only matters for chatty ones.
	PollRate float64

	Locale string
}

// Config is the resolved winch configuration.
type Config struct {
	Connection Connection
	DataDir    string
	Inventory  string
	Verbose    bool
	LogJSON    bool
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Connection: Connection{
			Auth:             "ntlm",
			Timeout:          defaultTimeout,
			OperationTimeout: defaultOperationTimeout,
			Locale:           "en-US",
		},
		DataDir:   dataDir,
		Inventory: filepath.Join(dataDir, "inventory.yaml"),
	}
}

// FromViper reads the resolved viper state into a Config, starting from the
// defaults.
func FromViper(v *viper.Viper) *Config {
	cfg := Default()

	if v.IsSet("host") {
		cfg.Connection.Host = v.GetString("host")
	}
	if v.IsSet("port") {
		cfg.Connection.Port = v.GetInt("port")
	}
	if v.IsSet("user") {
		cfg.Connection.User = v.GetString("user")
	}
	if v.IsSet("password") {
		cfg.Connection.Password = v.GetString("password")
	}
	if v.IsSet("https") {
		cfg.Connection.HTTPS = v.GetBool("https")
	}
	if v.IsSet("insecure") {
		cfg.Connection.Insecure = v.GetBool("insecure")
	}
	if v.IsSet("cacert") {
		cfg.Connection.CACert = v.GetString("cacert")
	}
	if v.IsSet("auth") {
		cfg.Connection.Auth = v.GetString("auth")
	}
	if v.IsSet("timeout") {
		cfg.Connection.Timeout = v.GetDuration("timeout")
	}
	if v.IsSet("operation-timeout") {
		cfg.Connection.OperationTimeout = v.GetDuration("operation-timeout")
	}
	if v.IsSet("poll-rate") {
		cfg.Connection.PollRate = v.GetFloat64("poll-rate")
	}
	if v.IsSet("locale") {
		cfg.Connection.Locale = v.GetString("locale")
	}
	if v.IsSet("data-dir") {
		cfg.DataDir = v.GetString("data-dir")
		cfg.Inventory = filepath.Join(cfg.DataDir, "inventory.yaml")
	}
	if v.IsSet("inventory") {
		cfg.Inventory = v.GetString("inventory")
	}
	if v.IsSet("verbose") {
		cfg.Verbose = v.GetBool("verbose")
	}
	if v.IsSet("log-json") {
		cfg.LogJSON = v.GetBool("log-json")
	}

	return cfg
}

// Validate checks the configuration for contradictions. A missing host is
// legal here: subcommands that need one enforce it themselves, since some
// (history, watch list) run entirely offline.
func (c *Config) Validate() error {
	conn := c.Connection
	if conn.Port < 0 || conn.Port > 65535 {
		return fmt.Errorf("port %d out of range", conn.Port)
	}
	if conn.Auth != "basic" && conn.Auth != "ntlm" {
		return fmt.Errorf("auth must be basic or ntlm, got %q", conn.Auth)
	}
	if conn.OperationTimeout <= 0 {
		return fmt.Errorf("operation-timeout must be positive, got %s", conn.OperationTimeout)
	}
	if conn.Timeout != 0 && conn.Timeout <= conn.OperationTimeout {
		return fmt.Errorf("timeout (%s) must exceed operation-timeout (%s) or the client cuts off long polls", conn.Timeout, conn.OperationTimeout)
	}
	if conn.PollRate < 0 {
		return fmt.Errorf("poll-rate must not be negative, got %g", conn.PollRate)
	}
	if conn.CACert != "" && conn.Insecure {
		return fmt.Errorf("cacert and insecure are mutually exclusive")
	}
	return nil
}

// EndpointURL renders the listener URL for a host, deriving scheme and port
// from the connection settings. An explicit host argument overrides the
// configured one so inventory fan-out can reuse one Connection.
func (conn Connection) EndpointURL(host string) string {
	if host == "" {
		host = conn.Host
	}
	scheme := "http"
	port := conn.Port
	if conn.HTTPS {
		scheme = "https"
		if port == 0 {
			port = DefaultHTTPSPort
		}
	} else if port == 0 {
		port = DefaultHTTPPort
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, host, port, wsmanPath)
}

// DefaultDataDir returns ~/.winch, falling back to the working directory
// when the home directory cannot be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".winch"
	}
	return filepath.Join(home, ".winch")
}
