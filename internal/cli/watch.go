package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/halcyard/winch/internal/cleanup"
	"github.com/halcyard/winch/internal/history"
	"github.com/halcyard/winch/internal/inventory"
	"github.com/halcyard/winch/internal/logger"
	"github.com/halcyard/winch/internal/metrics"
	"github.com/halcyard/winch/internal/schedule"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Schedule commands to run repeatedly",
	Long: `Watches run a command against an inventory target on a cron cadence.
They are stored locally; "winch watch start" runs the scheduler in the
foreground and records every run into history.`,
}

var watchAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a watch",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatchAdd,
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watches",
	RunE:  runWatchList,
}

var watchRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a watch",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatchRemove,
}

var watchEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a watch",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatchEnable,
}

var watchDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a watch",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatchDisable,
}

var watchRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run a watch once, immediately",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatchRun,
}

var watchStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the watch scheduler in the foreground",
	RunE:  runWatchStart,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.AddCommand(watchAddCmd)
	watchCmd.AddCommand(watchListCmd)
	watchCmd.AddCommand(watchRemoveCmd)
	watchCmd.AddCommand(watchEnableCmd)
	watchCmd.AddCommand(watchDisableCmd)
	watchCmd.AddCommand(watchRunCmd)
	watchCmd.AddCommand(watchStartCmd)

	watchAddCmd.Flags().String("cron", "", "5-field cron expression, e.g. \"0 3 * * *\"")
	watchAddCmd.Flags().String("target", "", "inventory host, group, glob, or \"all\"")
	watchAddCmd.Flags().String("command", "", "command to run")
	watchAddCmd.Flags().Bool("powershell", false, "run the command through powershell -encodedCommand")
	watchAddCmd.Flags().String("overlap", string(schedule.OverlapSkip), "behavior when the previous run is still going: skip or parallel")
	watchAddCmd.Flags().Bool("disabled", false, "create the watch disabled")
	_ = watchAddCmd.MarkFlagRequired("cron")
	_ = watchAddCmd.MarkFlagRequired("target")
	_ = watchAddCmd.MarkFlagRequired("command")

	watchListCmd.Flags().Bool("json", false, "print watches as JSON")

	watchStartCmd.Flags().String("metrics", "", "listen address for prometheus metrics, e.g. :9090")
	watchStartCmd.Flags().Duration("retention", 30*24*time.Hour, "prune history older than this while running (0 disables)")
}

func openWatchStore() (*schedule.Store, error) {
	return schedule.NewStore(cfg.DataDir)
}

func runWatchAdd(cmd *cobra.Command, args []string) error {
	cron, _ := cmd.Flags().GetString("cron")
	target, _ := cmd.Flags().GetString("target")
	command, _ := cmd.Flags().GetString("command")
	powershell, _ := cmd.Flags().GetBool("powershell")
	overlap, _ := cmd.Flags().GetString("overlap")
	disabled, _ := cmd.Flags().GetBool("disabled")

	store, err := openWatchStore()
	if err != nil {
		return err
	}
	defer store.Close()

	watch := &schedule.Watch{
		Name:            args[0],
		CronExpr:        cron,
		Target:          target,
		Command:         command,
		Powershell:      powershell,
		Enabled:         !disabled,
		OverlapBehavior: schedule.OverlapBehavior(overlap),
	}
	if err := store.Create(watch); err != nil {
		return err
	}

	fmt.Printf("Created watch %s (%s).\n", watch.Name, watch.ID)
	if watch.NextRunAt != nil {
		fmt.Printf("Next run: %s\n", watch.NextRunAt.Format(time.RFC3339))
	}
	return nil
}

func runWatchList(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")

	store, err := openWatchStore()
	if err != nil {
		return err
	}
	defer store.Close()

	watches, err := store.List(nil)
	if err != nil {
		return err
	}

	if jsonOut {
		data, err := json.MarshalIndent(watches, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(watches) == 0 {
		fmt.Println("No watches.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tCRON\tTARGET\tENABLED\tLAST RUN\tNEXT RUN\tCOMMAND")
	for _, watch := range watches {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\t%s\n",
			watch.Name,
			watch.CronExpr,
			watch.Target,
			watch.Enabled,
			formatRunTime(watch.LastRunAt),
			formatRunTime(watch.NextRunAt),
			truncateCommand(watch.Command),
		)
	}
	return w.Flush()
}

func formatRunTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format("2006-01-02 15:04")
}

func runWatchRemove(cmd *cobra.Command, args []string) error {
	store, err := openWatchStore()
	if err != nil {
		return err
	}
	defer store.Close()

	watch, err := store.Find(args[0])
	if err != nil {
		return err
	}
	if err := store.Delete(watch.ID); err != nil {
		return err
	}
	fmt.Printf("Removed watch %s.\n", watch.Name)
	return nil
}

func runWatchEnable(cmd *cobra.Command, args []string) error {
	return setWatchEnabled(args[0], true)
}

func runWatchDisable(cmd *cobra.Command, args []string) error {
	return setWatchEnabled(args[0], false)
}

func setWatchEnabled(ref string, enabled bool) error {
	store, err := openWatchStore()
	if err != nil {
		return err
	}
	defer store.Close()

	watch, err := store.Find(ref)
	if err != nil {
		return err
	}
	if err := store.Update(watch.ID, &schedule.WatchUpdate{Enabled: &enabled}); err != nil {
		return err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("Watch %s %s.\n", watch.Name, state)
	return nil
}

func runWatchRun(cmd *cobra.Command, args []string) error {
	store, err := openWatchStore()
	if err != nil {
		return err
	}
	defer store.Close()

	watch, err := store.Find(args[0])
	if err != nil {
		return err
	}

	exec, err := newExecutor(cfg)
	if err != nil {
		return err
	}
	if err := ensurePassword(cfg); err != nil {
		return err
	}

	hstore := openHistory()
	if hstore != nil {
		defer hstore.Close()
	}

	runner := schedule.NewRunner(store, watchExecutionFunc(exec, hstore))
	defer runner.Stop()

	if err := runner.TriggerNow(watch); err != nil {
		return fmt.Errorf("watch %s: %w", watch.Name, err)
	}
	fmt.Printf("Watch %s completed.\n", watch.Name)
	return nil
}

func runWatchStart(cmd *cobra.Command, args []string) error {
	metricsAddr, _ := cmd.Flags().GetString("metrics")
	retention, _ := cmd.Flags().GetDuration("retention")

	store, err := openWatchStore()
	if err != nil {
		return err
	}
	defer store.Close()

	exec, err := newExecutor(cfg)
	if err != nil {
		return err
	}
	if err := ensurePassword(cfg); err != nil {
		return err
	}

	hstore := openHistory()
	if hstore != nil {
		defer hstore.Close()
	}

	runner := schedule.NewRunner(store, watchExecutionFunc(exec, hstore))
	runner.Start()
	defer runner.Stop()

	if hstore != nil && retention > 0 {
		janitor := cleanup.New(hstore, cleanup.Config{Retention: retention})
		janitor.Start()
		defer janitor.Stop()
	}

	var metricsServer *http.Server
	serverErr := make(chan error, 1)
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErr <- err
			}
		}()
		logger.Slog().Info("metrics listening", "addr", metricsAddr)
	}

	logger.Slog().Info("watch scheduler started", "data_dir", cfg.DataDir)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("metrics server: %w", err)
	case sig := <-shutdownChan:
		logger.Slog().Info("shutting down", "signal", sig.String())
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return nil
}

// watchExecutionFunc runs a watch's command over its resolved target hosts,
// sequentially, recording each run. The first failure is reported to the
// runner after the remaining hosts have run.
func watchExecutionFunc(exec *executor, store *history.Store) schedule.ExecutionFunc {
	return func(ctx context.Context, watch *schedule.Watch) error {
		hosts, err := exec.targets(watch.Target)
		if err != nil {
			hosts = []inventory.Host{exec.hostFor(watch.Target)}
		}

		var firstErr error
		for _, h := range hosts {
			started := time.Now()
			out, err := exec.runOn(ctx, h, watch.Command, nil, watch.Powershell, nil)
			result := buildResult(h, watch.Command, out, err, started)
			recordResult(store, history.SourceWatch, result, started)

			if err == nil && result.ExitCode != 0 {
				err = fmt.Errorf("exit code %d", result.ExitCode)
			}
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", h.Name, err)
			}
		}
		return firstErr
	}
}
