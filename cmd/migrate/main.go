package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/acctportal/billingcore/internal/config"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/postgres"
	_ "github.com/lib/pq"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Print migration SQL without executing it")
	flag.Parse()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if *dryRun {
		logger.Info("Dry run mode - printing migration SQL without executing")
		names, err := postgres.Migrations()
		if err != nil {
			logger.Fatalw("Failed to list migrations", "error", err)
		}
		for _, name := range names {
			sql, err := postgres.MigrationSQL(name)
			if err != nil {
				logger.Fatalw("Failed to read migration", "name", name, "error", err)
			}
			fmt.Printf("-- %s\n%s\n", name, sql)
		}
		return
	}

	logger.Infow("Connecting to database", "host", cfg.Postgres.Host)
	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Running database migrations...")
	if err := db.Migrate(ctx); err != nil {
		logger.Fatalw("Failed to apply migrations", "error", err)
	}

	fmt.Println("Migration process completed")
}
