package main

import (
	"log"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/classhub/messaging/pkg/assistant"
	"github.com/classhub/messaging/pkg/config"
	"github.com/classhub/messaging/pkg/db"
	"github.com/classhub/messaging/pkg/session"
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
		log.Println("Using in-memory store: messages will not survive a restart")
		st = store.NewMemory(node)
	}

	sessions := session.NewRedisStore(cfg.RedisAddr)
	defer sessions.Close()

	registry := NewRegistry()
	handler := NewHandler(registry, st, sessions)

	handler.SetPresenceMirror(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))

	if cfg.AssistantURL != "" {
		handler.SetAssistant(assistant.NewHTTPCompleter(cfg.AssistantURL))
	}

	if len(cfg.KafkaBrokers) > 0 {
		relay := NewRelay(cfg.KafkaBrokers, cfg.KafkaTopic, handler.relayDeliver)
		defer relay.Close()
		handler.SetRelay(relay)
	}

	http.HandleFunc("/ws", handler.ServeWS)

	log.Printf("Gateway Service Starting on %s...", cfg.GatewayAddr)
	if err := http.ListenAndServe(cfg.GatewayAddr, nil); err != nil {
		log.Fatal(err)
	}
}
