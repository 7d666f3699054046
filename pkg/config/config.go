package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type StoreBackend string

const (
	BackendScylla StoreBackend = "scylla"
	BackendMemory StoreBackend = "memory"
)

type Config struct {
	GatewayAddr string
	APIAddr     string

	StoreBackend StoreBackend
	ScyllaHosts  []string
	Keyspace     string

	RedisAddr string

	// Empty slice disables the cross-gateway relay.
	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret string

	// Snowflake discriminators; must be unique per running gateway.
	ProcessID int64
	WorkerID  int64

	AssistantURL string
}

// Load reads configuration from the environment, after loading a .env
// file if one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		GatewayAddr:  getEnv("GATEWAY_ADDR", ":8080"),
		APIAddr:      getEnv("API_ADDR", ":8081"),
		StoreBackend: StoreBackend(getEnv("STORE_BACKEND", string(BackendScylla))),
		ScyllaHosts:  splitList(getEnv("SCYLLA_HOSTS", "localhost:9042")),
		Keyspace:     getEnv("SCYLLA_KEYSPACE", "classhub"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "chat-relay"),
		JWTSecret:    getEnv("JWT_SECRET", "dev-secret-change-me"),
		AssistantURL: getEnv("ASSISTANT_URL", ""),
	}

	switch cfg.StoreBackend {
	case BackendScylla, BackendMemory:
	default:
		return nil, fmt.Errorf("config: unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	var err error
	if cfg.ProcessID, err = getEnvInt64("PROCESS_ID", 0); err != nil {
		return nil, err
	}
	if cfg.WorkerID, err = getEnvInt64("WORKER_ID", 0); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
