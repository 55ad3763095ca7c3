package cli

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/halcyard/winch/internal/config"
	"github.com/halcyard/winch/internal/inventory"
	"github.com/halcyard/winch/internal/winrm"
)

func testExecutor(t *testing.T) *executor {
	t.Helper()
	inv, err := inventory.Parse([]byte(`
hosts:
  dc01:
    addr: 10.0.0.10
    user: administrator
    password: hunter2
    https: true
  web-1:
    port: 5999
groups:
  web:
    - web-1
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	c := config.Default()
	c.Connection.Host = "fallback.example"
	c.Connection.User = "svc-winch"
	c.Connection.Password = "secret"
	return &executor{cfg: c, inv: inv}
}

func TestExecutor_HostFor(t *testing.T) {
	exec := testExecutor(t)

	h := exec.hostFor("dc01")
	if h.Addr != "10.0.0.10" {
		t.Errorf("Addr = %q, want inventory address", h.Addr)
	}

	h = exec.hostFor("203.0.113.9")
	if h.Name != "203.0.113.9" || h.Addr != "" {
		t.Errorf("unknown name should become a literal host, got %+v", h)
	}
}

func TestExecutor_ConnectionMerge(t *testing.T) {
	exec := testExecutor(t)

	conn := exec.connection(exec.hostFor("dc01"))
	if conn.Host != "10.0.0.10" {
		t.Errorf("Host = %q, want 10.0.0.10", conn.Host)
	}
	if conn.User != "administrator" || conn.Password != "hunter2" {
		t.Errorf("credentials not overridden: %q/%q", conn.User, conn.Password)
	}
	if !conn.HTTPS {
		t.Error("HTTPS override lost")
	}

	conn = exec.connection(exec.hostFor("web-1"))
	if conn.Host != "web-1" {
		t.Errorf("Host = %q, want name used as address", conn.Host)
	}
	if conn.Port != 5999 {
		t.Errorf("Port = %d, want inventory override 5999", conn.Port)
	}
	if conn.User != "svc-winch" || conn.Password != "secret" {
		t.Errorf("defaults lost: %q/%q", conn.User, conn.Password)
	}
	if conn.HTTPS {
		t.Error("HTTPS should stay off without an override")
	}
}

func TestExecutor_Targets(t *testing.T) {
	exec := testExecutor(t)

	hosts, err := exec.targets("web")
	if err != nil {
		t.Fatalf("targets(web): %v", err)
	}
	if len(hosts) != 1 || hosts[0].Name != "web-1" {
		t.Errorf("targets(web) = %+v", hosts)
	}

	if _, err := exec.targets("no-such-group"); err == nil {
		t.Error("expected error for unknown pattern")
	}
}

func TestRunHosts(t *testing.T) {
	exec := testExecutor(t)
	cfg = exec.cfg

	hosts, err := runHosts(exec, "")
	if err != nil {
		t.Fatalf("runHosts: %v", err)
	}
	if len(hosts) != 1 || hosts[0].Name != "fallback.example" {
		t.Errorf("expected configured host, got %+v", hosts)
	}

	cfg.Connection.Host = ""
	if _, err := runHosts(exec, ""); err == nil {
		t.Error("expected error with no host and no targets")
	}

	hosts, err = runHosts(exec, "all")
	if err != nil {
		t.Fatalf("runHosts(all): %v", err)
	}
	if len(hosts) != 2 {
		t.Errorf("len(hosts) = %d, want 2", len(hosts))
	}
}

func TestRunSpec_Label(t *testing.T) {
	tests := []struct {
		spec runSpec
		want string
	}{
		{runSpec{command: "ipconfig"}, "ipconfig"},
		{runSpec{command: "ipconfig", args: []string{"/all"}}, "ipconfig /all"},
		{runSpec{command: "Get-Date", powershell: true, display: "script check.ps1"}, "script check.ps1"},
	}
	for _, tt := range tests {
		if got := tt.spec.label(); got != tt.want {
			t.Errorf("label() = %q, want %q", got, tt.want)
		}
	}
}

func TestBuildResult(t *testing.T) {
	h := inventory.Host{Name: "dc01"}
	out := &winrm.Output{
		Chunks: []winrm.Chunk{
			{Kind: winrm.StreamStdout, Text: "hello\r\n"},
			{Kind: winrm.StreamStderr, Text: "warn\r\n"},
		},
		ExitCode: 2,
	}

	r := buildResult(h, "ipconfig /all", out, nil, time.Now())
	if r.Host != "dc01" || r.Command != "ipconfig /all" {
		t.Errorf("identity fields wrong: %+v", r)
	}
	if r.Status != "failed" || r.ExitCode != 2 {
		t.Errorf("Status = %q ExitCode = %d, want failed/2", r.Status, r.ExitCode)
	}
	if r.Stdout != "hello\r\n" || r.Stderr != "warn\r\n" {
		t.Errorf("streams wrong: %+v", r)
	}

	r = buildResult(h, "ipconfig", nil, errors.New("connection refused"), time.Now())
	if r.Status != "error" || r.Error != "connection refused" {
		t.Errorf("error result wrong: %+v", r)
	}
}

func TestSummarize(t *testing.T) {
	ok := runResult{Status: "ok"}
	failed := runResult{Status: "failed"}

	if err := summarize([]runResult{ok, ok}); err != nil {
		t.Errorf("all ok should not error: %v", err)
	}

	err := summarize([]runResult{ok, failed, failed})
	if err == nil || !strings.Contains(err.Error(), "2 of 3") {
		t.Errorf("summarize = %v, want 2 of 3 failure", err)
	}
}

func TestTruncateCommand(t *testing.T) {
	if got := truncateCommand("ipconfig"); got != "ipconfig" {
		t.Errorf("short command changed: %q", got)
	}
	long := strings.Repeat("x", 80)
	got := truncateCommand(long)
	if len(got) != 60 || !strings.HasSuffix(got, "...") {
		t.Errorf("long command not truncated: %q (len %d)", got, len(got))
	}
	if got := truncateCommand("line1\nline2"); strings.Contains(got, "\n") {
		t.Errorf("newlines should flatten: %q", got)
	}
}
