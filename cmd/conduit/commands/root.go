// Package commands provides the CLI commands for conduit.
package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel  string
	logToFile bool
)

var rootCmd = &cobra.Command{
	Use:   "conduit",
	Short: "conduit - realtime LLM completion orchestrator",
	Long: `conduit orchestrates streaming LLM completions: it classifies tagged
content into typed blocks, runs bounded tool-call and code-interpreter
loops, checkpoints progress to a conversation store, and fans events out
to connected clients over SSE.

Run 'conduit serve' to start the server.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	// .env is optional; missing files are ignored.
	godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", false, "Also write logs to a timestamped file")

	rootCmd.SetVersionTemplate(fmt.Sprintf("conduit %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(mcpCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
