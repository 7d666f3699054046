package main

import (
	"log"

	"github.com/classhub/messaging/pkg/config"
	"github.com/classhub/messaging/pkg/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := db.EnsureSchema(cfg.ScyllaHosts, cfg.Keyspace); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}

	log.Printf("Keyspace %q and tables created successfully", cfg.Keyspace)
}
