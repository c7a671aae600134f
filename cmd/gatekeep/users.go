// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/internal/auth/postgres"
	"github.com/gatekeep/gatekeep/internal/store"
)

// Default timeout for user administration commands.
const defaultUsersTimeout = 30 * time.Second

// userStoreFactory opens a UserStore for cmd. The returned func releases it.
type userStoreFactory func(ctx context.Context, cmd *cobra.Command) (*auth.UserStore, func(), error)

func defaultUserStoreFactory(ctx context.Context, cmd *cobra.Command) (*auth.UserStore, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	url, err := databaseURL(cfg)
	if err != nil {
		return nil, nil, err
	}
	pool, err := store.Connect(ctx, url, store.WithAttempts(cfg.Database.ConnectAttempts))
	if err != nil {
		return nil, nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	users := auth.NewUserStore(postgres.NewUserRepository(pool), auth.NewArgon2idHasher(cfg.Argon2Params()))
	return users, pool.Close, nil
}

// usersConfig holds flags shared by the users subcommands.
type usersConfig struct {
	timeout  time.Duration
	password string
	staff    bool
	inactive bool
	scope    string
	json     bool
}

// NewUsersCmd creates the users subcommand.
func NewUsersCmd() *cobra.Command {
	return newUsersCmd(defaultUserStoreFactory)
}

func newUsersCmd(factory userStoreFactory) *cobra.Command {
	cfg := &usersConfig{}

	cmd := &cobra.Command{
		Use:   "users",
		Short: "Administer user accounts",
		Long: `Create, inspect, activate and deactivate user accounts directly in the
database. Passwords are read from --password or the first line of stdin.`,
	}
	cmd.PersistentFlags().DurationVar(&cfg.timeout, "timeout", defaultUsersTimeout, "timeout for database operations")
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")

	create := &cobra.Command{
		Use:   "create EMAIL",
		Short: "Create an active user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserStore(cmd, cfg, factory, func(ctx context.Context, users *auth.UserStore) error {
				password, err := readPassword(cmd, cfg)
				if err != nil {
					return err
				}
				var opts []auth.CreateUserOption
				if cfg.staff {
					opts = append(opts, auth.WithStaff())
				}
				if cfg.inactive {
					opts = append(opts, auth.WithInactive())
				}
				user, err := users.CreateUser(ctx, args[0], password, opts...)
				if err != nil {
					return err
				}
				cmd.Printf("Created user %d (%s)\n", user.ID, user.Email)
				return nil
			})
		},
	}
	create.Flags().StringVar(&cfg.password, "password", "", "password (read from stdin when empty)")
	create.Flags().BoolVar(&cfg.staff, "staff", false, "mark the user as staff")
	create.Flags().BoolVar(&cfg.inactive, "inactive", false, "create the user deactivated")

	createSuperuser := &cobra.Command{
		Use:   "create-superuser EMAIL",
		Short: "Create an active staff superuser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserStore(cmd, cfg, factory, func(ctx context.Context, users *auth.UserStore) error {
				password, err := readPassword(cmd, cfg)
				if err != nil {
					return err
				}
				user, err := users.CreateSuperuser(ctx, args[0], password)
				if err != nil {
					return err
				}
				cmd.Printf("Created superuser %d (%s)\n", user.ID, user.Email)
				return nil
			})
		},
	}
	createSuperuser.Flags().StringVar(&cfg.password, "password", "", "password (read from stdin when empty)")

	lookup := &cobra.Command{
		Use:   "lookup EMAIL",
		Short: "List users registered with an email",
		Long: `List users registered with an email. --scope selects active
(non-deleted) users, deleted users only, or all of them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := auth.ParseLookupScope(cfg.scope)
			if err != nil {
				return err
			}
			return withUserStore(cmd, cfg, factory, func(ctx context.Context, users *auth.UserStore) error {
				found, err := users.Lookup(ctx, args[0], scope)
				if err != nil {
					return err
				}
				if cfg.json {
					out, err := formatUsersJSON(found)
					if err != nil {
						return err
					}
					cmd.Println(out)
					return nil
				}
				cmd.Print(formatUsersTable(found))
				return nil
			})
		},
	}
	lookup.Flags().StringVar(&cfg.scope, "scope", string(auth.LookupActive), "active, all or deleted")
	lookup.Flags().BoolVar(&cfg.json, "json", false, "output users as JSON")

	cmd.AddCommand(create, createSuperuser, lookup,
		newSetActiveCmd(cfg, factory, "activate", true),
		newSetActiveCmd(cfg, factory, "deactivate", false),
	)
	return cmd
}

func newSetActiveCmd(cfg *usersConfig, factory userStoreFactory, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " EMAIL",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a non-deleted user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserStore(cmd, cfg, factory, func(ctx context.Context, users *auth.UserStore) error {
				found, err := users.Lookup(ctx, args[0], auth.LookupActive)
				if err != nil {
					return err
				}
				if len(found) == 0 {
					return oops.Code(auth.CodeAccountNotFound).
						With("email", auth.NormalizeEmail(args[0])).
						Wrap(auth.ErrNotFound)
				}
				user := found[0]
				if err := users.SetActive(ctx, user, active); err != nil {
					return err
				}
				cmd.Printf("User %d (%s) is now %s\n", user.ID, user.Email, activeLabel(active))
				return nil
			})
		},
	}
}

func withUserStore(
	cmd *cobra.Command,
	cfg *usersConfig,
	factory userStoreFactory,
	fn func(ctx context.Context, users *auth.UserStore) error,
) error {
	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	users, release, err := factory(ctx, cmd)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, users)
}

func readPassword(cmd *cobra.Command, cfg *usersConfig) (string, error) {
	if cfg.password != "" {
		return cfg.password, nil
	}
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if scanner.Scan() {
		return strings.TrimRight(scanner.Text(), "\r"), nil
	}
	if err := scanner.Err(); err != nil {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	return "", nil
}

type userRow struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	IsActive    bool       `json:"is_active"`
	IsStaff     bool       `json:"is_staff"`
	IsSuperuser bool       `json:"is_superuser"`
	DateJoined  time.Time  `json:"date_joined"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

func formatUsersJSON(users []*auth.User) (string, error) {
	rows := make([]userRow, 0, len(users))
	for _, u := range users {
		rows = append(rows, userRow{
			ID:          u.ID,
			Email:       u.Email,
			IsActive:    u.IsActive,
			IsStaff:     u.IsStaff,
			IsSuperuser: u.IsSuperuser,
			DateJoined:  u.DateJoined,
			DeletedAt:   u.DeletedAt,
		})
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", oops.Code("OUTPUT_FAILED").Wrap(err)
	}
	return string(data), nil
}

func formatUsersTable(users []*auth.User) string {
	if len(users) == 0 {
		return "no users found\n"
	}

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tEMAIL\tSTATUS\tROLE\tJOINED\tDELETED")
	for _, u := range users {
		deleted := "-"
		if u.DeletedAt != nil {
			deleted = u.DeletedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			u.ID, u.Email, activeLabel(u.IsActive), roleLabel(u), u.DateJoined.Format(time.RFC3339), deleted)
	}
	_ = w.Flush()
	return sb.String()
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func roleLabel(u *auth.User) string {
	switch {
	case u.IsSuperuser:
		return "superuser"
	case u.IsStaff:
		return "staff"
	default:
		return "user"
	}
}
