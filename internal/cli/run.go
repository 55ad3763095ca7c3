package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/halcyard/winch/internal/history"
	"github.com/halcyard/winch/internal/inventory"
	"github.com/halcyard/winch/internal/logger"
	"github.com/halcyard/winch/internal/winrm"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Run a command on one host or an inventory selection",
	Long: `Run a command on the configured host, or fan out over an inventory
selection with --targets. A single-host run streams output as it arrives;
fan-outs buffer per host and print one section per host.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("targets", "t", "", "inventory host, group, glob, or \"all\" to fan out over")
	runCmd.Flags().Bool("json", false, "print results as JSON")
	runCmd.Flags().Int("parallel", 4, "maximum concurrent hosts during fan-out")
}

func runRun(cmd *cobra.Command, args []string) error {
	targets, _ := cmd.Flags().GetString("targets")
	jsonOut, _ := cmd.Flags().GetBool("json")
	parallel, _ := cmd.Flags().GetInt("parallel")

	exec, err := newExecutor(cfg)
	if err != nil {
		return err
	}
	hosts, err := runHosts(exec, targets)
	if err != nil {
		return err
	}
	if err := ensurePassword(cfg); err != nil {
		return err
	}

	spec := runSpec{command: args[0], args: args[1:]}
	stream := !jsonOut && len(hosts) == 1

	results := fanOut(cmd.Context(), exec, hosts, parallel, spec, stream)
	return printResults(results, jsonOut, stream)
}

// runHosts picks the hosts a command runs on: the --targets selection when
// given, otherwise the single configured host.
func runHosts(exec *executor, targets string) ([]inventory.Host, error) {
	if targets != "" {
		return exec.targets(targets)
	}
	if cfg.Connection.Host == "" {
		return nil, fmt.Errorf("no host: set --host or use --targets with an inventory")
	}
	return []inventory.Host{exec.hostFor(cfg.Connection.Host)}, nil
}

// runSpec is one command to execute, plus how to display it.
type runSpec struct {
	command    string
	args       []string
	powershell bool
	display    string // history and summary label; defaults to the command line
}

func (s runSpec) label() string {
	if s.display != "" {
		return s.display
	}
	if len(s.args) == 0 {
		return s.command
	}
	return s.command + " " + strings.Join(s.args, " ")
}

type runResult struct {
	Host       string `json:"host"`
	Command    string `json:"command"`
	Status     string `json:"status"`
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// fanOut runs spec on every host with at most parallel in flight, recording
// each run into history. With stream set (single-host runs), chunks are
// written to stdout/stderr as they arrive.
func fanOut(ctx context.Context, exec *executor, hosts []inventory.Host, parallel int, spec runSpec, stream bool) []runResult {
	if parallel < 1 {
		parallel = 1
	}

	store := openHistory()
	if store != nil {
		defer store.Close()
	}

	results := make([]runResult, len(hosts))
	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup

	for i, h := range hosts {
		wg.Add(1)
		go func(i int, h inventory.Host) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var onChunk winrm.ChunkFunc
			if stream {
				onChunk = func(stdout, stderr string) {
					fmt.Fprint(os.Stdout, stdout)
					fmt.Fprint(os.Stderr, stderr)
				}
			}

			started := time.Now()
			out, err := exec.runOn(ctx, h, spec.command, spec.args, spec.powershell, onChunk)
			results[i] = buildResult(h, spec.label(), out, err, started)
			recordResult(store, history.SourceCLI, results[i], started)
		}(i, h)
	}
	wg.Wait()

	return results
}

func buildResult(h inventory.Host, command string, out *winrm.Output, err error, started time.Time) runResult {
	r := runResult{
		Host:       h.Name,
		Command:    command,
		DurationMS: time.Since(started).Milliseconds(),
	}
	if out != nil {
		r.ExitCode = out.ExitCode
		r.Stdout = out.Stdout()
		r.Stderr = out.Stderr()
	}
	if err != nil {
		r.Error = err.Error()
	}
	r.Status = history.StatusFor(r.ExitCode, err)
	return r
}

// openHistory opens the run history store. Recording is best effort: a
// broken store logs a warning and the command still runs.
func openHistory() *history.Store {
	store, err := history.NewStore(cfg.DataDir)
	if err != nil {
		logger.Slog().Warn("run history disabled", "error", err)
		return nil
	}
	return store
}

func recordResult(store *history.Store, source string, r runResult, started time.Time) {
	if store == nil {
		return
	}
	_, err := store.Record(&history.Run{
		Host:      r.Host,
		Command:   r.Command,
		Source:    source,
		Status:    r.Status,
		ExitCode:  r.ExitCode,
		Error:     r.Error,
		Stdout:    r.Stdout,
		Stderr:    r.Stderr,
		StartedAt: started,
		Duration:  time.Duration(r.DurationMS) * time.Millisecond,
	})
	if err != nil {
		logger.Slog().Warn("recording run", "host", r.Host, "error", err)
	}
}

func printResults(results []runResult, jsonOut, streamed bool) error {
	if jsonOut {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return summarize(results)
	}

	if streamed && len(results) == 1 {
		// Output already went to stdout/stderr as it arrived.
		r := results[0]
		if r.Error != "" {
			return fmt.Errorf("%s: %s", r.Host, r.Error)
		}
		if r.ExitCode != 0 {
			return fmt.Errorf("command exited with code %d", r.ExitCode)
		}
		return nil
	}

	for _, r := range results {
		fmt.Printf("=== %s: %s (exit %d, %dms) ===\n", r.Host, r.Status, r.ExitCode, r.DurationMS)
		if r.Error != "" {
			fmt.Printf("error: %s\n", r.Error)
		}
		if r.Stdout != "" {
			fmt.Print(r.Stdout)
			if !strings.HasSuffix(r.Stdout, "\n") {
				fmt.Println()
			}
		}
		if r.Stderr != "" {
			fmt.Print(r.Stderr)
			if !strings.HasSuffix(r.Stderr, "\n") {
				fmt.Println()
			}
		}
	}
	return summarize(results)
}

func summarize(results []runResult) error {
	failed := 0
	for _, r := range results {
		if r.Status != "ok" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d hosts failed", failed, len(results))
	}
	return nil
}
