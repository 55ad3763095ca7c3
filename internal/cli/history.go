package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/halcyard/winch/internal/history"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the local run history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one run including its full output",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs older than the retention window",
	RunE:  runHistoryPrune,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)

	historyListCmd.Flags().String("target", "", "only list runs against this host")
	historyListCmd.Flags().String("status", "", "only list runs with this status: ok, failed or error")
	historyListCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	historyListCmd.Flags().Bool("json", false, "print runs as JSON")

	historyPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "delete runs older than this")
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	target, _ := cmd.Flags().GetString("target")
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOut, _ := cmd.Flags().GetBool("json")

	store, err := history.NewStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(target, status, limit)
	if err != nil {
		return err
	}

	if jsonOut {
		data, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tSOURCE\tHOST\tEXIT\tCOMMAND")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Status,
			r.Source,
			r.Host,
			r.ExitCode,
			truncateCommand(r.Command),
		)
	}
	return w.Flush()
}

func truncateCommand(command string) string {
	command = strings.ReplaceAll(command, "\n", " ")
	if len(command) > 60 {
		return command[:57] + "..."
	}
	return command
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run id %q", args[0])
	}

	store, err := history.NewStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.Get(id)
	if err != nil {
		return err
	}

	fmt.Printf("Run:      #%d\n", run.ID)
	fmt.Printf("Host:     %s\n", run.Host)
	fmt.Printf("Command:  %s\n", run.Command)
	fmt.Printf("Source:   %s\n", run.Source)
	fmt.Printf("Status:   %s (exit %d)\n", run.Status, run.ExitCode)
	fmt.Printf("Started:  %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Printf("Duration: %s\n", run.Duration.Round(time.Millisecond))
	if run.Error != "" {
		fmt.Printf("Error:    %s\n", run.Error)
	}
	if run.Stdout != "" {
		fmt.Printf("\nstdout:\n%s\n", strings.TrimRight(run.Stdout, "\n"))
	}
	if run.Stderr != "" {
		fmt.Printf("\nstderr:\n%s\n", strings.TrimRight(run.Stderr, "\n"))
	}
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	olderThan, _ := cmd.Flags().GetDuration("older-than")

	store, err := history.NewStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := store.Prune(olderThan)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d run(s) older than %s.\n", removed, olderThan)
	return nil
}
