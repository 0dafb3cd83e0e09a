package main

import (
	"context"
	"flag"
	"log"
	"os"

	"bookdex/internal/ingest"
	"bookdex/pkg/database"
)

func main() {
	var urlOverride = flag.String("url", "", "override the catalog archive URL")
	flag.Parse()

	db := database.MustOpen(database.DefaultConfig())
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	cfg := ingest.LoadConfig()
	if *urlOverride != "" {
		cfg.CatalogURL = *urlOverride
	}

	runner := ingest.NewRunner(db, cfg)
	res := runner.Run(context.Background())
	if res.Err != nil {
		log.Printf("catalog run failed: %v (log: %s)", res.Err, res.LogPath)
		os.Exit(1)
	}
	log.Printf("catalog run %s done: %d books seen, %d stale removed, %d records failed (log: %s)",
		res.RunID, res.Seen, res.Deleted, len(res.FailedIDs), res.LogPath)
}
