// Command migrate manages the PostgreSQL archive schema: the violation_logs
// table filled by the violation archiver and the exam_results table filled
// by the result archiver.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/config"
	"github.com/stemsi/icas-portal/internal/logger"
)

const defaultMigrationsDir = "migrations"

var errUsage = errors.New("usage")

// migrator is the subset of *migrate.Migrate the commands drive.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(v int) error
}

func main() {
	migrationsDir := os.Getenv("MIGRATIONS_PATH")
	if migrationsDir == "" {
		migrationsDir = defaultMigrationsDir
	}
	flag.StringVar(&migrationsDir, "path", migrationsDir, "Directory holding the archive migrations")
	flag.Usage = printUsage
	flag.Parse()

	cfg := config.Load()
	log := logger.Component(logger.Setup(cfg.LogLevel, cfg.LogFormat), "migrate")

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(2)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	m, err := migrate.New("file://"+migrationsDir, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("path", migrationsDir).Msg("Failed to initialize migrations")
	}
	defer m.Close()

	if err := run(m, args, log); err != nil {
		if errors.Is(err, errUsage) {
			printUsage()
			os.Exit(2)
		}
		log.Fatal().Err(err).Str("command", args[0]).Msg("Migration failed")
	}
}

// run executes one migration command. ErrNoChange is not a failure.
func run(m migrator, args []string, log zerolog.Logger) error {
	switch args[0] {
	case "up":
		if err := ignoreNoChange(m.Up()); err != nil {
			return fmt.Errorf("up: %w", err)
		}
		log.Info().Msg("Archive schema migrated up")
	case "down":
		// One step only; dropping every archive table is a force+down job.
		if err := ignoreNoChange(m.Steps(-1)); err != nil {
			return fmt.Errorf("down: %w", err)
		}
		log.Info().Msg("Archive schema rolled back one step")
	case "reset":
		if err := ignoreNoChange(m.Down()); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		log.Warn().Msg("Archive tables dropped")
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info().Msg("Archive schema has no migrations applied")
			return nil
		}
		if err != nil {
			return fmt.Errorf("version: %w", err)
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Archive schema version")
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("force needs a version: %w", errUsage)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("force: invalid version %q", args[1])
		}
		if err := m.Force(v); err != nil {
			return fmt.Errorf("force: %w", err)
		}
		log.Warn().Int("version", v).Msg("Archive schema version forced")
	default:
		return errUsage
	}
	return nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [flags] <command>")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  up                apply pending archive migrations")
	fmt.Fprintln(os.Stderr, "  down              roll back the latest migration")
	fmt.Fprintln(os.Stderr, "  reset             drop violation_logs and exam_results")
	fmt.Fprintln(os.Stderr, "  version           print the applied version")
	fmt.Fprintln(os.Stderr, "  force <version>   mark a version as applied after a failed run")
	fmt.Fprintln(os.Stderr, "Flags:")
	flag.PrintDefaults()
}
