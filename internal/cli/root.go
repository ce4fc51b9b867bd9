// Package cli implements the presencectl command line client.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var cfg *Config

// Config holds CLI configuration
type Config struct {
	ServerURL string
	Token     string
	SubjectID string
	JSON      bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL: getEnvOrDefault("PRESENCED_SERVER", "http://localhost:4000"),
		Token:     os.Getenv("PRESENCED_TOKEN"),
		SubjectID: os.Getenv("PRESENCED_UID"),
	}
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "presencectl",
		Short: "CLI tool for the presence server",
		Long: `presencectl is a CLI tool for interacting with the presence server.

It can probe server health and attach to a realm over the websocket
endpoint to watch presence events in real time.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: PRESENCED_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.Token, "token", cfg.Token, "Bearer credential (env: PRESENCED_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&cfg.SubjectID, "uid", cfg.SubjectID, "Subject id the credential was issued for (env: PRESENCED_UID)")
	rootCmd.PersistentFlags().BoolVar(&cfg.JSON, "json", false, "Output as JSON lines")

	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newWatchCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
