package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/ksdme/mailhook/internal/config"
	"github.com/ksdme/mailhook/internal/store"
)

func main() {
	if config.Core.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	db, err := store.Open(config.Core.DBDriver, config.Core.DBURI)
	if err != nil {
		log.Panicf("opening db failed: %v", err)
	}
	defer db.Close()

	// TODO: This creates the latest schema only. Existing tables are left
	// untouched, columns added later need a bun migration.
	// https://bun.uptrace.dev/guide/migrations.html
	if err := store.New(db).Migrate(context.Background()); err != nil {
		log.Panicf("could not migrate db: %v", err)
	}
	slog.Info("created tables", "driver", config.Core.DBDriver)
}
