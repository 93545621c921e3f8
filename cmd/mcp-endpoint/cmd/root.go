// Package cmd implements the mcp-endpoint command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinel-gate/mcp-endpoint/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mcp-endpoint",
	Short: "WebSocket router between MCP tool servers and callers",
	Long: `mcp-endpoint accepts WebSocket connections from MCP tool servers and
from calling agents, rewrites JSON-RPC request ids to route responses
back to the right caller, and aggregates fan-out results across the
tool servers registered under an agent.`,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcp-endpoint.ini)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
