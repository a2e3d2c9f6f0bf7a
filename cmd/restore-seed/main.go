// restore-seed loads demo orders and inventory units into the database.
// Existing orders and barcodes are kept, so it is safe to re-run.
//
// Usage: go run ./cmd/restore-seed [-config path] [-file seed.json]
package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"fulfillment/internal/config"
	"fulfillment/internal/db"
	"fulfillment/internal/seed"
	"fulfillment/migrations"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Configuration file path")
	file := flag.String("file", "", "Seed JSON file (defaults to the built-in demo set)")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	if _, err := migrations.Apply(ctx, pool); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	ds := seed.Demo()
	if *file != "" {
		if ds, err = seed.LoadFile(*file); err != nil {
			log.Fatalf("%v", err)
		}
	}

	log.Println("Restoring orders and units...")
	sum, err := seed.Apply(ctx, db.NewStore(pool), ds)
	if err != nil {
		log.Fatalf("Failed to seed: %v", err)
	}
	log.Printf("Orders: %d created, %d already present", sum.OrdersCreated, sum.OrdersSkipped)
	log.Printf("Units:  %d created, %d already present", sum.UnitsCreated, sum.UnitsSkipped)
}
