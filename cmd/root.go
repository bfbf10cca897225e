package cmd

import (
	"github.com/spf13/cobra"
)

// configFile is the shared --config flag read by every subcommand that
// needs a config.Config; empty means config.DefaultConfig().
var configFile string

var rootCmd = &cobra.Command{
	Use:   "bayescore",
	Short: "bayescore - a statistical Bayesian spam filter",
	Long: `bayescore classifies mail as spam or ham using per-term good/spam
counts learned from training data, combined into a message probability via
a Graham-style chain or Robinson's f(w) with Fisher's inverse chi-square
method.

Run as a one-shot scorer, a training tool over mbox/Maildir/plain
directories, or a long-running milter that plugs into an MTA.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
}
