package main

import (
	"os"
	"strings"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/config"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/migrations"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/logger"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/pg"
)

// main.go [migrate|rollback|status] --env=.env
func main() {
	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	pgConf := config.Get().PostgresWrite()

	switch command() {
	case "migrate":
		err = pg.Migrate(pgConf, migrations.FS, ".")
	case "rollback":
		err = pg.Rollback(pgConf, migrations.FS, ".")
	case "status":
		err = pg.Status(pgConf, migrations.FS, ".")
	default:
		logger.Error("unknown command, expected migrate, rollback or status", "command", command())
		return
	}
	if err != nil {
		logger.Error("migration: command failed", "command", command(), "error", err)
	}
}

func command() string {
	for _, v := range os.Args[1:] {
		if !strings.HasPrefix(v, "--") {
			return v
		}
	}
	return "migrate"
}

func getEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Stat(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	if _, err := os.Stat(".env"); err != nil {
		return ""
	}
	return ".env"
}
