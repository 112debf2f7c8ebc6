package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tcmartin/promptflow/pkg/services"
)

func newTokenCmd(opts *cliOptions) *cobra.Command {
	var (
		secret     string
		expiration int
		save       bool
	)

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token signed with the server's JWT secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("PROMPTFLOW_JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("a JWT secret is required (--secret or PROMPTFLOW_JWT_SECRET)")
			}

			token, err := services.NewJWTService(secret, expiration).GenerateToken(args[0])
			if err != nil {
				return err
			}

			if save {
				if err := opts.saveConfig(Config{ServerURL: opts.serverURL, Token: token}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", opts.configPath)
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "JWT secret (default $PROMPTFLOW_JWT_SECRET)")
	cmd.Flags().IntVar(&expiration, "expiration", 24, "Token lifetime in hours")
	cmd.Flags().BoolVar(&save, "save", false, "Save the token and server URL to the CLI config")
	return cmd
}
