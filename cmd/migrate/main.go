package main

// Run database migrations:
//   go run ./cmd/migrate          # apply pending migrations
//   go run ./cmd/migrate status   # print applied versions

import (
	"context"
	"log"
	"os"

	"german-ocr/internal/shared/config"
	"german-ocr/internal/shared/storage/db"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	switch cmd {
	case "up":
		err = db.RunMigrations(ctx, sqlDB)
	case "status":
		err = db.MigrationStatus(ctx, sqlDB)
	default:
		log.Printf("unknown command %q (want up or status)", cmd)
		os.Exit(2)
	}
	if err != nil {
		log.Printf("migrate %s: %v", cmd, err)
		os.Exit(1)
	}
}
