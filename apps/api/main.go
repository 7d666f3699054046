package main

import (
	"log"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/classhub/messaging/pkg/auth"
	"github.com/classhub/messaging/pkg/config"
	"github.com/classhub/messaging/pkg/db"
	"github.com/classhub/messaging/pkg/snowflake"
	"github.com/classhub/messaging/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	node, err := snowflake.NewNode(cfg.ProcessID, cfg.WorkerID)
	if err != nil {
		log.Fatalf("snowflake: %v", err)
	}

	var st store.Store
	switch cfg.StoreBackend {
	case config.BackendScylla:
		sess, err := db.NewSession(cfg.ScyllaHosts, cfg.Keyspace)
		if err != nil {
			log.Fatalf("scylla: %v", err)
		}
		defer sess.Close()
		st = store.NewScylla(sess, node)
	case config.BackendMemory:
		st = store.NewMemory(node)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	tokens := auth.NewTokens(cfg.JWTSecret)
	channels := NewChannelsHandler(st, rdb)

	http.Handle("/channels/", CORSMiddleware(AuthMiddleware(tokens, channels)))

	log.Printf("API Service Starting on %s...", cfg.APIAddr)
	if err := http.ListenAndServe(cfg.APIAddr, nil); err != nil {
		log.Fatal(err)
	}
}
