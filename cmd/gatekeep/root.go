// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatekeep/gatekeep/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Gatekeep CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatekeep",
		Short: "Gatekeep - email and password authentication service",
		Long: `Gatekeep registers users and authenticates them with passwords,
single-use magic links and password reset links, issuing signed bearer
session tokens. Accounts are soft-deleted.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/gatekeep/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUsersCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

// loadConfig reads the configuration for cmd, letting its explicitly set
// flags override file and environment values. Without --config the file
// under the XDG config directory is used when present.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := config.Resolve(configFile)
	if err != nil {
		return nil, err
	}
	return config.Load(path, cmd.Flags())
}

// databaseURL returns the configured database URL.
func databaseURL(cfg *config.Config) (string, error) {
	if cfg.Database.URL == "" {
		return "", oops.Code("CONFIG_INVALID").
			Errorf("database url is required (database.url, GATEKEEP_DATABASE__URL or DATABASE_URL)")
	}
	return cfg.Database.URL, nil
}

// addDatabaseFlags registers the flags shared by commands that open the
// database.
func addDatabaseFlags(cmd *cobra.Command) {
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
}
