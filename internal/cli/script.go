package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var scriptCmd = &cobra.Command{
	Use:   "script <file.ps1>",
	Short: "Run a PowerShell script on one host or an inventory selection",
	Long: `Run a local PowerShell script on remote hosts. The script is sent
UTF-16LE+base64 encoded via powershell -encodedCommand, so it needs no
quoting and no copy step.`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	rootCmd.AddCommand(scriptCmd)
	scriptCmd.Flags().StringP("targets", "t", "", "inventory host, group, glob, or \"all\" to fan out over")
	scriptCmd.Flags().Bool("json", false, "print results as JSON")
	scriptCmd.Flags().Int("parallel", 4, "maximum concurrent hosts during fan-out")
}

func runScript(cmd *cobra.Command, args []string) error {
	targets, _ := cmd.Flags().GetString("targets")
	jsonOut, _ := cmd.Flags().GetBool("json")
	parallel, _ := cmd.Flags().GetInt("parallel")

	script, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading script: %w", err)
	}

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

	spec := runSpec{
		command:    string(script),
		powershell: true,
		display:    "script " + filepath.Base(args[0]),
	}
	stream := !jsonOut && len(hosts) == 1

	results := fanOut(cmd.Context(), exec, hosts, parallel, spec, stream)
	return printResults(results, jsonOut, stream)
}
