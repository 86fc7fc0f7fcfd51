package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/inspecto-app/inspecto/internal/pkg/env"
)

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	dbURL := fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		env.GetEnv("DB_USER", "inspecto"),
		env.GetEnv("DB_PASSWORD", "inspecto"),
		env.GetEnv("DB_HOST", "db"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", "inspecto_db"),
	)

	fiberlog.Infof("[Migrate] connecting to %s@%s:%s/%s",
		env.GetEnv("DB_USER", "inspecto"),
		env.GetEnv("DB_HOST", "db"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", "inspecto_db"),
	)

	m, err := migrate.New(
		"file://"+env.GetEnv("MIGRATIONS_DIR", "migrations"),
		dbURL,
	)
	if err != nil {
		fiberlog.Fatalf("[Migrate] init: %v", err)
	}

	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			fiberlog.Errorf("[Migrate] closing: %v, %v", sourceErr, dbErr)
		}
	}()

	switch command {
	case "up":
		if err := m.Up(); errors.Is(err, migrate.ErrNoChange) {
			fiberlog.Info("[Migrate] no change: database is up to date")
		} else if err != nil {
			fiberlog.Fatalf("[Migrate] up: %v", err)
		} else {
			fiberlog.Info("[Migrate] migrations applied")
		}

	case "down":
		if err := m.Steps(-1); err != nil {
			fiberlog.Fatalf("[Migrate] rolling back last migration: %v", err)
		}
		fiberlog.Info("[Migrate] last migration rolled back")

	case "goto":
		if len(os.Args) < 3 {
			fiberlog.Fatal("[Migrate] goto needs a version number")
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			fiberlog.Fatalf("[Migrate] invalid version: %v", err)
		}

		if err := m.Migrate(uint(version)); errors.Is(err, migrate.ErrNoChange) {
			fiberlog.Infof("[Migrate] no change: database is already at version %d", version)
		} else if err != nil {
			fiberlog.Fatalf("[Migrate] migrating to version %d: %v", version, err)
		} else {
			fiberlog.Infof("[Migrate] migrated to version %d", version)
		}

	case "status":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fiberlog.Info("[Migrate] no migrations applied yet")
			return
		}
		if err != nil {
			fiberlog.Fatalf("[Migrate] reading version: %v", err)
		}
		dirtyStatus := ""
		if dirty {
			dirtyStatus = " (dirty)"
		}
		fiberlog.Infof("[Migrate] current version: %d%s", version, dirtyStatus)

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: go run cmd/migrate/main.go [command]")
	fmt.Println("Commands:")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  goto N - migrate to version N")
	fmt.Println("  status - show the current migration version")
}
