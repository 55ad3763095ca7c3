package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query <wql>",
	Short: "Run a WQL query against a host's WMI provider",
	Long: `Run a WQL query, e.g.:

  winch query "SELECT Name, State FROM Win32_Service WHERE StartMode='Auto'"

The query runs against --target (an inventory name or address) or, when
omitted, the configured host.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringP("target", "t", "", "inventory name or address of the host to query")
	queryCmd.Flags().Bool("json", false, "print results as JSON")
}

func runQuery(cmd *cobra.Command, args []string) error {
	target, _ := cmd.Flags().GetString("target")
	jsonOut, _ := cmd.Flags().GetBool("json")

	exec, err := newExecutor(cfg)
	if err != nil {
		return err
	}

	host := target
	if host == "" {
		host = cfg.Connection.Host
	}
	if host == "" {
		return fmt.Errorf("no host: set --host or --target")
	}
	if err := ensurePassword(cfg); err != nil {
		return err
	}

	items, err := exec.Query(cmd.Context(), host, args[0])
	if err != nil {
		return err
	}

	if jsonOut {
		data, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("%d result(s)\n", len(items))
	for i, item := range items {
		fmt.Printf("\n[%d]\n", i+1)

		keys := make([]string, 0, len(item))
		for k := range item {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			fmt.Printf("  %s: %s\n", k, item[k])
		}
	}
	return nil
}
