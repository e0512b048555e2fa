package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/campusops/portal/internal/audit"
	"github.com/campusops/portal/internal/config"
	"github.com/campusops/portal/internal/database"
	"github.com/campusops/portal/internal/roles"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return errors.New("command required")
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "migrate":
		return migrateCommand()
	case "seed":
		return seedCommand(args)
	case "nuke":
		return nukeCommand(args)
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func connect() (*database.Database, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	conn, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return conn, nil
}

func migrateCommand() error {
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := context.Background()
	if err := conn.Migrate(ctx); err != nil {
		return err
	}
	version, err := conn.MigrationVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("database at migration version %d\n", version)
	return nil
}

func seedCommand(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	file := fs.String("file", "", "YAML file to seed from")
	dir := fs.String("dir", "", "Directory of YAML files to seed from")
	dryRun := fs.Bool("dry-run", false, "Validate files without making database changes")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	files, err := resolveFiles(*file, *dir)
	if err != nil {
		return err
	}

	data, err := loadSeedFiles(files)
	if err != nil {
		return fmt.Errorf("failed to load seed data: %w", err)
	}

	if *dryRun {
		fmt.Println("dry run: validating data structure")
		fmt.Printf("  Roles: %d\n", len(data.Roles))
		fmt.Printf("  Permission rows: %d\n", countPermissions(data))
		fmt.Printf("  Users: %d\n", len(data.Users))
		fmt.Println("data structure is valid")
		return nil
	}

	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := context.Background()
	if err := conn.Migrate(ctx); err != nil {
		return err
	}

	fmt.Printf("seeding database from %d file(s)\n", len(files))
	return applySeedFile(ctx, conn, roles.NewService(conn, audit.NewLog(conn)), data)
}

func countPermissions(data *SeedFile) int {
	n := 0
	for _, perms := range data.Permissions {
		n += len(perms)
	}
	return n
}

func nukeCommand(args []string) error {
	fs := flag.NewFlagSet("nuke", flag.ExitOnError)
	force := fs.Bool("force", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	if !*force && !confirmNuke() {
		fmt.Println("operation cancelled")
		return nil
	}

	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := context.Background()
	fmt.Println("rolling back all migrations...")
	if err := conn.Reset(ctx); err != nil {
		return err
	}
	fmt.Println("applying all migrations...")
	if err := conn.Migrate(ctx); err != nil {
		return err
	}

	fmt.Println("database reset complete - ready for seeding")
	return nil
}

func confirmNuke() bool {
	fmt.Print("warning: this will delete all data from the database. are you sure? (yes/no): ")

	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		return false
	}

	return strings.ToLower(strings.TrimSpace(response)) == "yes"
}

func printUsage() {
	fmt.Println("Seeder Tool - Database utility for the campus portal")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  seeder <command> [flags]")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  migrate     Apply pending migrations")
	fmt.Println("  seed        Seed roles, permissions and users from YAML files")
	fmt.Println("  nuke        Drop and recreate every portal table")
	fmt.Println("  help        Show this help message")
	fmt.Println()
	fmt.Println("SEED FLAGS:")
	fmt.Println("  --file      Path to a single YAML file")
	fmt.Println("  --dir       Path to directory containing YAML files")
	fmt.Println("  --dry-run   Validate files without making database changes")
	fmt.Println()
	fmt.Println("NUKE FLAGS:")
	fmt.Println("  --force     Skip confirmation prompt")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  seeder migrate")
	fmt.Println("  seeder seed --file seed/portal.yaml")
	fmt.Println("  seeder seed --dir ./seed/ --dry-run")
	fmt.Println("  seeder nuke --force")
}
