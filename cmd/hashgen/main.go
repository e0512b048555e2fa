package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/campusops/portal/internal/auth"
	"github.com/campusops/portal/internal/config"
	"github.com/campusops/portal/internal/database"
	"github.com/campusops/portal/internal/db"
	"github.com/campusops/portal/internal/rbac"
	"github.com/jackc/pgx/v5"
)

func main() {
	disable := flag.Bool("disable", false, "Mark the account inactive")
	name := flag.String("name", "", "Display name (defaults to the email local part)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [--name NAME] [--disable] <email> <password> <role>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s admin@campus.edu mypassword PROGRAM_OFFICE\n", os.Args[0])
	}
	flag.Parse()

	if flag.NArg() != 3 {
		flag.Usage()
		os.Exit(1)
	}

	email := auth.NormalizeEmail(flag.Arg(0))
	password := flag.Arg(1)
	role, err := rbac.ParseRoleName(flag.Arg(2))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid role: %v\n", err)
		os.Exit(1)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating hash: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	conn, err := database.New(&cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	displayName := *name
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}

	ctx := context.Background()
	err = conn.WithTx(ctx, func(_ pgx.Tx, q *db.Queries) error {
		r, err := q.GetRoleByName(ctx, string(role))
		if err != nil {
			return fmt.Errorf("role %s not found, run the seeder first: %w", role, err)
		}

		// upsert keeps an existing hash, so the password is set explicitly
		user, err := q.UpsertUser(ctx, db.UpsertUserParams{
			Email:        email,
			Name:         displayName,
			PasswordHash: hash,
			RoleID:       r.ID,
		})
		if err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
		if err := q.UpdateUserPassword(ctx, db.UpdateUserPasswordParams{ID: user.ID, PasswordHash: hash}); err != nil {
			return fmt.Errorf("failed to set password: %w", err)
		}
		if err := q.SetUserActive(ctx, db.SetUserActiveParams{ID: user.ID, IsActive: !*disable}); err != nil {
			return fmt.Errorf("failed to set active flag: %w", err)
		}
		fmt.Printf("User saved successfully: %s (%s, active=%t)\n", user.Email, role, !*disable)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
