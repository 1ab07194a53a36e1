package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/123123eeqweq/omocrm/config"
	"github.com/123123eeqweq/omocrm/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.WithField("backend", cfg.StorageBackend).Info("storage init starting")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Open applies SQL migrations or creates the Azure table.
	repo, err := storage.Open(ctx, storage.Options{
		Backend:          storage.Backend(cfg.StorageBackend),
		DatabaseURL:      cfg.DatabaseURL,
		ConnectionString: cfg.ConnectionString,
		Table:            cfg.BoardsTable,
	})
	if err != nil {
		log.Fatalf("prepare storage: %v", err)
	}
	defer repo.Close()

	if err := repo.Ping(ctx); err != nil {
		log.Fatalf("ping storage: %v", err)
	}
	log.Info("storage init complete")
}
