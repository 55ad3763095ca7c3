// Package cli implements the winch command tree.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/halcyard/winch/internal/config"
	"github.com/halcyard/winch/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	cfgFile string
	cfg     *config.Config

	rootCmd = &cobra.Command{
		Use:   "winch",
		Short: "Run commands on remote Windows hosts over WinRM",
		Long: `winch talks WS-Management to remote Windows hosts: it opens command
shells, runs commands and PowerShell scripts, queries WMI with WQL, and
keeps a local history of everything it ran.

Hosts come from flags or from a YAML inventory of named hosts and groups.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.FromViper(viper.GetViper())
			logger.Init(cfg.Verbose, cfg.LogJSON)
			if cmd.Name() == "version" {
				return nil
			}
			return cfg.Validate()
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.winch/config.yaml)")
	rootCmd.PersistentFlags().String("host", "", "remote host to connect to")
	rootCmd.PersistentFlags().Int("port", 0, "WinRM port (default 5985, or 5986 with --https)")
	rootCmd.PersistentFlags().String("user", "", "user name for authentication")
	rootCmd.PersistentFlags().String("password", "", "password (prompted when omitted on a terminal)")
	rootCmd.PersistentFlags().Bool("https", false, "connect over HTTPS")
	rootCmd.PersistentFlags().Bool("insecure", false, "skip TLS certificate verification")
	rootCmd.PersistentFlags().String("cacert", "", "PEM bundle to verify the endpoint against")
	rootCmd.PersistentFlags().String("auth", "", "authentication scheme: ntlm or basic (default ntlm)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "client-side bound on each request")
	rootCmd.PersistentFlags().Duration("operation-timeout", 0, "server-side timeout carried in each envelope")
	rootCmd.PersistentFlags().Float64("poll-rate", 0, "max output polls per second per command (0 = unpaced)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for history and watch databases (default $HOME/.winch)")
	rootCmd.PersistentFlags().String("inventory", "", "host inventory file (default <data-dir>/inventory.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("log-json", false, "write logs as JSON")

	for _, key := range []string{
		"host", "port", "user", "password", "https", "insecure", "cacert",
		"auth", "timeout", "operation-timeout", "poll-rate", "data-dir", "inventory",
		"verbose", "log-json",
	} {
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		configDir := filepath.Join(home, ".winch")
		if err := os.MkdirAll(configDir, 0700); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create config directory: %v\n", err)
		}

		viper.AddConfigPath(configDir)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("WINCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// Silently ignore missing config file - it's optional
	_ = viper.ReadInConfig()
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // newline after password input
	if err != nil {
		return "", err
	}
	return string(password), nil
}

// ensurePassword prompts for the configured user's password when none was
// given and stdin is a terminal. Hosts with inventory-level credentials are
// unaffected.
func ensurePassword(cfg *config.Config) error {
	if cfg.Connection.User == "" || cfg.Connection.Password != "" {
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	password, err := readPassword(fmt.Sprintf("Password for %s: ", cfg.Connection.User))
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	cfg.Connection.Password = password
	return nil
}
