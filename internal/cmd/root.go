package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/open4/dydns/internal/logging"
)

var (
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "dydns",
	Short: "Keep firewall allow-rules in sync with dynamic-DNS hosts",
	Long: `dydns opens host firewall ports to a set of named hosts whose addresses change.
For each configured interface:port:protocol -> hostname mapping it resolves the
hostname, compares the answer against the tagged INPUT rule already in the kernel,
and inserts, replaces, or deletes rules until they agree. Only rules it tagged
itself are ever touched.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix("DYDNS")
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		viper.AutomaticEnv()

		level := viper.GetString("log-level")
		if viper.GetBool("verbose") {
			level = "debug"
		}
		logging.InitLogger(level, "dydns")
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to the mapping file (default: dydns.conf beside the executable, then /etc/dydns.conf)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Shorthand for --log-level=debug")

	if err := viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind log-level flag: %v\n", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind verbose flag: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(SyncCmd)
	rootCmd.AddCommand(WatchCmd)
}
