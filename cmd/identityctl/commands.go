package main

import (
	"context"
	"fmt"
	"strings"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/permissions"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func migrateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the users schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := openDB(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := identity.NewRepositoryManager(db).Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func tokenCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect signed tokens",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "decode <token>",
		Short: "Verify a token with the configured key and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			idCfg, err := cfg.Identity()
			if err != nil {
				return err
			}

			claims, err := decodeToken(idCfg, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), print.MaybePrettyJSON(claims))
			return nil
		},
	})

	return cmd
}

// decodeToken checks signature and expiry only. Revocation lives in the
// running service's denylist.
func decodeToken(cfg identity.Config, raw string) (*identity.Claims, error) {
	ts := identity.NewTokenService(cfg, nil).WithLogger(identity.NopLogger())
	return ts.Decode(strings.TrimSpace(raw))
}

func userCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user identities",
	}
	cmd.AddCommand(userCreateCmd(flags), userGrantCmd(flags))
	return cmd
}

func userCreateCmd(flags *globalFlags) *cobra.Command {
	var (
		msg    identity.RegisterUserMessage
		grants []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			perms, err := parseGrants(grants)
			if err != nil {
				return err
			}
			msg.Permissions = perms

			return withEngine(cmd.Context(), flags, func(ctx context.Context, engine *identity.Engine) error {
				msg.OnResponse = func(user *identity.User) {
					fmt.Fprintln(cmd.OutOrStdout(), user.ID.String())
				}
				return identity.NewRegisterUserHandler(engine).Execute(ctx, msg)
			})
		},
	}

	cmd.Flags().StringVar(&msg.Username, "username", "", "Username")
	cmd.Flags().StringVar(&msg.Email, "email", "", "Email address, stored unconfirmed")
	cmd.Flags().StringVar(&msg.Mobile, "mobile", "", "Mobile number, stored unconfirmed")
	cmd.Flags().StringVar(&msg.Password, "password", "", "Password")
	cmd.Flags().BoolVar(&msg.UseHashid, "hashid", false, "Derive the user id from the email and registration time")
	cmd.Flags().StringSliceVar(&grants, "grant", nil, "Permission grant scope[:action|action] (repeatable)")

	return cmd
}

func userGrantCmd(flags *globalFlags) *cobra.Command {
	var (
		grants []string
		drop   []string
	)

	cmd := &cobra.Command{
		Use:   "grant <user-id>",
		Short: "Add or drop permission scopes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}

			perms, err := parseGrants(grants)
			if err != nil {
				return err
			}

			return withEngine(cmd.Context(), flags, func(ctx context.Context, engine *identity.Engine) error {
				user, err := engine.Store().FetchByID(ctx, id)
				if err != nil {
					return err
				}
				if len(perms) > 0 {
					if user, err = engine.AddPermissions(ctx, user, perms); err != nil {
						return err
					}
				}
				for _, scope := range drop {
					if user, err = engine.DropPermission(ctx, user, scope); err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), print.MaybePrettyJSON(user.Permissions))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&grants, "add", nil, "Grant scope[:action|action] (repeatable)")
	cmd.Flags().StringSliceVar(&drop, "drop", nil, "Scope to remove (repeatable)")

	return cmd
}

func withEngine(ctx context.Context, flags *globalFlags, fn func(context.Context, *identity.Engine) error) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}

	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, _, err := newEngine(cfg, db, newLogger(cfg.Log, nil))
	if err != nil {
		return err
	}
	return fn(ctx, engine)
}

// parseGrants reads "scope" or "scope:read|write" entries. Actions are
// separated with "|" because the flag itself splits on commas.
func parseGrants(grants []string) (permissions.Map, error) {
	out := permissions.Map{}
	for _, grant := range grants {
		scope, actions, _ := strings.Cut(strings.TrimSpace(grant), ":")
		if scope == "" {
			return nil, fmt.Errorf("invalid grant %q", grant)
		}
		var list []string
		if actions != "" {
			list = strings.Split(actions, "|")
		}
		out = out.Merge(permissions.Map{scope: permissions.NewSet(list...)})
	}
	return out, nil
}
