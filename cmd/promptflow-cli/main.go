// Package main provides a CLI for interacting with the promptflow server.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultServerURL = "http://localhost:8080"

// Config represents the CLI configuration
type Config struct {
	ServerURL string `json:"server_url"`
	Token     string `json:"token"`
}

// cliOptions holds the global flags
type cliOptions struct {
	serverURL  string
	token      string
	configPath string
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:          "promptflow-cli",
		Short:        "promptflow CLI",
		Long:         "Command-line interface for managing and executing prompt flows on a promptflow server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.serverURL, "server", "", "Server URL (default "+defaultServerURL+")")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", "", "Bearer token")
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to CLI config file (default ~/.promptflow/cli-config.json)")

	rootCmd.AddCommand(newFlowCmd(opts), newTokenCmd(opts), newMigrateCmd())
	return rootCmd
}

// loadConfig fills flags that were not given from the environment and the CLI config file
func (o *cliOptions) loadConfig() error {
	if o.token == "" {
		o.token = os.Getenv("PROMPTFLOW_TOKEN")
	}
	if o.serverURL == "" {
		o.serverURL = os.Getenv("PROMPTFLOW_SERVER_URL")
	}

	if o.configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			o.configPath = filepath.Join(home, ".promptflow", "cli-config.json")
		}
	}

	config, err := readConfig(o.configPath)
	if err != nil {
		return err
	}

	if o.serverURL == "" {
		o.serverURL = config.ServerURL
	}
	if o.token == "" {
		o.token = config.Token
	}
	if o.serverURL == "" {
		o.serverURL = defaultServerURL
	}
	return nil
}

func readConfig(path string) (Config, error) {
	var config Config
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return config, nil
}

// saveConfig writes the CLI configuration
func (o *cliOptions) saveConfig(config Config) error {
	if o.configPath == "" {
		return fmt.Errorf("no config path available")
	}

	if err := os.MkdirAll(filepath.Dir(o.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// holds a bearer token
	if err := os.WriteFile(o.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
