package db

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"strconv"
	"strings"
)

// ErrAborted is returned when the operator declines a forced migration.
var ErrAborted = errors.New("aborted")

// MigrateIO carries the streams the migrate subcommand talks to.
type MigrateIO struct {
	In  io.Reader
	Out io.Writer
}

// RunMigrateCommand handles the 'migrate' subcommand dispatching.
func RunMigrateCommand(args []string, dbPath string, stdio MigrateIO) error {
	if len(args) < 1 {
		PrintMigrateHelp(stdio.Out)
		return errors.New("missing migrate action")
	}

	action := args[0]
	if action == "help" {
		PrintMigrateHelp(stdio.Out)
		return nil
	}

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		return fmt.Errorf("failed to get migrations filesystem: %w", err)
	}

	// Open without running migrations; the subcommand manages the schema.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		return handleMigrateUp(database, migrationsFS)
	case "down":
		return handleMigrateDown(database, migrationsFS)
	case "status":
		return handleMigrateStatus(database, migrationsFS, stdio.Out)
	case "version":
		if len(args) < 2 {
			return errors.New("usage: citysense migrate version <version_number>")
		}
		return handleMigrateVersion(database, migrationsFS, args[1])
	case "force":
		if len(args) < 2 {
			return errors.New("usage: citysense migrate force <version_number> [-y]")
		}
		confirmed := len(args) > 2 && args[2] == "-y"
		return handleMigrateForce(database, migrationsFS, args[1], confirmed, stdio)
	default:
		fmt.Fprintf(stdio.Out, "Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp(stdio.Out)
		return fmt.Errorf("unknown migrate action %q", action)
	}
}

func handleMigrateUp(database *DB, migrationsFS fs.FS) error {
	log.Printf("Running migrations...")
	if err := database.MigrateUp(migrationsFS); err != nil {
		return err
	}
	version, dirty, _ := database.MigrateVersion(migrationsFS)
	log.Printf("All migrations applied. Current version: %d (dirty: %v)", version, dirty)
	return nil
}

func handleMigrateDown(database *DB, migrationsFS fs.FS) error {
	log.Printf("Rolling back one migration...")
	if err := database.MigrateDown(migrationsFS); err != nil {
		return err
	}
	version, dirty, _ := database.MigrateVersion(migrationsFS)
	log.Printf("Migration rolled back. Current version: %d (dirty: %v)", version, dirty)
	return nil
}

func handleMigrateStatus(database *DB, migrationsFS fs.FS, out io.Writer) error {
	status, err := database.GetMigrationStatus(migrationsFS)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "=== Migration Status ===")
	fmt.Fprintf(out, "Current version: %d\n", status.CurrentVersion)
	fmt.Fprintf(out, "Latest available: %d\n", status.LatestVersion)
	fmt.Fprintf(out, "Dirty: %v\n", status.Dirty)
	fmt.Fprintf(out, "Schema migrations table exists: %v\n", status.SchemaMigrationsExists)

	switch {
	case status.Dirty:
		fmt.Fprintln(out, "\nWARNING: database is in a dirty state. Inspect it, fix any issues, then run:")
		fmt.Fprintln(out, "  citysense migrate force <version>")
	case status.CurrentVersion < status.LatestVersion:
		fmt.Fprintf(out, "\nDatabase is %d version(s) behind. Run 'citysense migrate up'.\n", status.LatestVersion-status.CurrentVersion)
	default:
		fmt.Fprintln(out, "\nDatabase is up to date.")
	}
	return nil
}

func handleMigrateVersion(database *DB, migrationsFS fs.FS, versionStr string) error {
	target, err := strconv.ParseUint(versionStr, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid version number: %s", versionStr)
	}

	log.Printf("Migrating to version %d...", target)
	if err := database.MigrateTo(migrationsFS, uint(target)); err != nil {
		return err
	}
	log.Printf("Migrated to version %d", target)
	return nil
}

func handleMigrateForce(database *DB, migrationsFS fs.FS, versionStr string, confirmed bool, stdio MigrateIO) error {
	version, err := strconv.Atoi(versionStr)
	if err != nil {
		return fmt.Errorf("invalid version number: %s", versionStr)
	}

	if !confirmed {
		fmt.Fprintf(stdio.Out, "WARNING: forcing migration version to %d\n", version)
		fmt.Fprintln(stdio.Out, "This should only be used to recover from a dirty migration state.")
		fmt.Fprint(stdio.Out, "Continue? [y/N]: ")

		response, _ := bufio.NewReader(stdio.In).ReadString('\n')
		if r := strings.TrimSpace(response); r != "y" && r != "Y" {
			return ErrAborted
		}
	}

	if err := database.MigrateForce(migrationsFS, version); err != nil {
		return err
	}
	log.Printf("Migration version forced to %d", version)
	return nil
}

// PrintMigrateHelp displays the help message for the migrate command
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Database Migration Commands

Usage: citysense migrate <command> [options]

Commands:
  up              Apply all pending migrations
  down            Rollback one migration
  status          Show current migration status and version
  version <N>     Migrate to specific version N
  force <N> [-y]  Force migration version to N (recovery only)
  help            Show this help message

Examples:
  citysense migrate up
  citysense migrate status
  citysense -db-path /var/lib/citysense/events.db migrate down
`)
}
