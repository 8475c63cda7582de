// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-router/internal/server"
)

func newTokenCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage HTTP bearer tokens",
	}

	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue [user]",
		Short: "Sign a token for user (default the current user)",
		Long: `Signs an HS256 token with auth.jwt_secret. Only useful when the server
runs with auth.mode = "jwt"; in token mode the bearer token is the user id.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.config()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return usagef("auth.jwt_secret is not set (set RIGRUN_JWT_SECRET or run: rigrun-router config set auth.jwt_secret <secret>)")
			}
			if ttl <= 0 {
				return usagef("--ttl must be positive")
			}
			user := e.user()
			if len(args) == 1 {
				user = args[0]
			}

			token, err := server.NewJWTAuth(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer).Issue(user, ttl)
			if err != nil {
				return usagef("%v", err)
			}
			if e.jsonOut {
				return writeJSONTo(cmd.OutOrStdout(), map[string]any{
					"user_id":    user,
					"token":      token,
					"expires_at": time.Now().Add(ttl).UTC().Format(time.RFC3339),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	cmd.AddCommand(issue)
	return cmd
}
