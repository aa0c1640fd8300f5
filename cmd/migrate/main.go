package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/ledgerbase/billing/internal/config"
	"github.com/ledgerbase/billing/internal/logger"
	"github.com/ledgerbase/billing/internal/postgres"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "print migration SQL without executing it")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.New(logger.Config{Debug: cfg.Logging.Debug})
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}

	if *dryRun {
		log.Info("dry run mode - printing migration SQL without executing")
		fmt.Println(postgres.SchemaSQL())
		return
	}

	dsn := cfg.Postgres.DSN()
	log.Infow("connecting to database", "host", cfg.Postgres.Host)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		log.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	log.Info("running database migrations")
	if err := postgres.Migrate(db); err != nil {
		log.Fatalw("migration failed", "error", err)
	}
	log.Info("migration completed successfully")
}
