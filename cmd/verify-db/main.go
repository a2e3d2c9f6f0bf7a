// verify-db audits the scan ledger and shipments for consistency.
// It exits non-zero when any violation is found.
//
// Usage: go run ./cmd/verify-db [-config path]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"fulfillment/internal/adapters/display"
	"fulfillment/internal/config"
	"fulfillment/internal/db"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Configuration file path")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[CONFIG] %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("[CONNECT] %v", err)
	}
	defer pool.Close()

	violations, err := db.Verify(ctx, db.NewStore(pool))
	if err != nil {
		log.Fatalf("[VERIFY] %v", err)
	}
	if len(violations) == 0 {
		log.Println("[DONE] No violations found.")
		return
	}

	rows := make([][]string, 0, len(violations))
	for _, v := range violations {
		rows = append(rows, []string{v.Check, v.OrderID, v.Detail})
	}
	fmt.Println(display.RenderTable([]string{"CHECK", "ORDER", "DETAIL"}, rows, nil))
	log.Printf("[FAIL] %d violation(s) found.", len(violations))
	pool.Close()
	os.Exit(1)
}
