// Package cmd provides the CLI commands for sentinelwatch.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinelwatch/sentinelwatch/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sentinelwatch",
	Short: "sentinelwatch - a local security sidecar for autonomous agents",
	Long: `sentinelwatch sits between an autonomous agent and its LLM provider,
scanning outbound prompts and inbound responses for prompt injection and
other threats, enforcing per-agent spending budgets, and gating
sensitive tool calls before they execute.

Quick start:
  1. Create a config file: sentinelwatch.yaml
  2. Run: sentinelwatch serve

Configuration:
  Config is loaded from sentinelwatch.yaml in the current directory,
  $HOME/.sentinelwatch/, or /etc/sentinelwatch/.

  Environment variables can override config values with the SENTINELWATCH_ prefix.
  Example: SENTINELWATCH_SERVER_HTTP_ADDR=127.0.0.1:9090

Commands:
  serve       Start the local API server and LLM proxy
  stop        Stop the running server
  hash-key    Generate an Argon2id hash for a bearer token
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sentinelwatch.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
