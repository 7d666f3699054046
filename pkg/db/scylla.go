package db

import (
	"log"
	"time"

	"github.com/gocql/gocql"
)

type Session struct {
	*gocql.Session
}

func NewSession(hosts []string, keyspace string) (*Session, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}

	log.Println("Connected to ScyllaDB cluster")
	return &Session{Session: session}, nil
}

// EnsureSchema creates the keyspace and tables if they do not exist.
// Production deployments should run migrations instead; this covers
// development and the schema bootstrap script.
func EnsureSchema(hosts []string, keyspace string) error {
	sys, err := NewSession(hosts, "system")
	if err != nil {
		return err
	}
	err = sys.Query(`CREATE KEYSPACE IF NOT EXISTS ` + keyspace +
		` WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
	sys.Close()
	if err != nil {
		return err
	}

	session, err := NewSession(hosts, keyspace)
	if err != nil {
		return err
	}
	defer session.Close()

	// channel_id partitions the log; id DESC clustering makes the
	// newest page a prefix scan.
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			channel_id text,
			id bigint,
			author_id text,
			content text,
			msg_type text,
			file_url text,
			created_at timestamp,
			read_by set<text>,
			is_pinned boolean,
			is_homework boolean,
			grading_status text,
			PRIMARY KEY (channel_id, id)
		) WITH CLUSTERING ORDER BY (id DESC)`,
		`CREATE TABLE IF NOT EXISTS channels (
			id text PRIMARY KEY,
			name text,
			channel_type text,
			workspace_id text,
			class_tag text,
			subject_tag text,
			pinned_ids list<bigint>,
			created_at timestamp,
			archived_at timestamp
		)`,
		`CREATE TABLE IF NOT EXISTS workspaces (
			id text PRIMARY KEY,
			name text,
			owner_id text,
			member_ids set<text>,
			created_at timestamp
		)`,
	}
	for _, stmt := range stmts {
		if err := session.Query(stmt).Exec(); err != nil {
			return err
		}
	}
	return nil
}
