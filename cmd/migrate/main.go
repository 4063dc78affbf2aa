package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/hackgods/therapy-slot-booking/internal/db"
	"github.com/hackgods/therapy-slot-booking/pkg/logging"
)

// Usage: migrate [up|down|version|force <version>]
func main() {
	_ = godotenv.Load()
	logger := logging.New(os.Getenv("LOG_LEVEL")).With("service", "migrate")

	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	if dsn == "" {
		logger.Error("POSTGRES_DSN is required")
		os.Exit(1)
	}

	m, err := db.NewMigrator(dsn)
	if err != nil {
		logger.Error("create migrator", "error", err)
		os.Exit(1)
	}
	defer func() { _ = m.Close() }()

	cmd, args := "up", []string(nil)
	if len(os.Args) >= 2 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	if err := run(m, cmd, args); err != nil {
		logger.Error("migration failed", "command", cmd, "error", err)
		_ = m.Close()
		os.Exit(1)
	}

	v, dirty, err := m.Version()
	if err != nil {
		logger.Warn("read schema version", "error", err)
		return
	}
	logger.Info("migrations complete", "command", cmd, "version", v, "dirty", dirty)
}

func run(m *db.Migrator, cmd string, args []string) error {
	switch cmd {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "version":
		return nil
	case "force":
		if len(args) < 1 {
			return fmt.Errorf("force requires a version")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version: %w", err)
		}
		return m.Force(version)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
