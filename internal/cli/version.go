package cli

import (
	"fmt"

	"github.com/halcyard/winch"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the winch version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("winch %s\n", winch.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
