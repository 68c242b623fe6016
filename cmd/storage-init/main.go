package main

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/Adarsh9315/task-palette-organize/config"
	"github.com/Adarsh9315/task-palette-organize/storage"
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

	ctx := context.Background()

	// Open applies the sqlite schema or creates the tables.
	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("provision store: %v", err)
	}
	defer backend.Close()

	if cfg.EventsQueue != "" {
		q, err := storage.NewEventQueue(cfg.StorageConnectionString, cfg.EventsQueue)
		if err != nil {
			log.Fatalf("events queue: %v", err)
		}
		if err := q.EnsureQueue(ctx); err != nil {
			log.Fatalf("create queue: %v", err)
		}
		log.WithField("queue", cfg.EventsQueue).Debug("events queue ready")
	}

	log.Info("storage init complete")
}
