package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tcmartin/promptflow/pkg/config"
	"github.com/tcmartin/promptflow/pkg/storage"
)

func newMigrateCmd() *cobra.Command {
	var (
		serverConfig string
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables, indexes or collections of the configured storage backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if serverConfig != "" {
				loaded, err := config.LoadConfig(serverConfig)
				if err != nil {
					return fmt.Errorf("failed to load server config: %w", err)
				}
				cfg = loaded
			}
			if err := config.ApplyEnv(cfg); err != nil {
				return err
			}

			provider, err := storage.NewProvider(cfg.Storage.ProviderConfig())
			if err != nil {
				return fmt.Errorf("%s connect failed: %w", cfg.Storage.Type, err)
			}
			defer provider.Close()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := provider.Initialize(ctx); err != nil {
				return fmt.Errorf("%s initialize failed: %w", cfg.Storage.Type, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Storage %s initialized\n", cfg.Storage.Type)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverConfig, "server-config", "", "Path to the server config file (JSON or YAML)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Time allowed for the backend to become ready")
	return cmd
}
