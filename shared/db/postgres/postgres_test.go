package postgres

import (
	"context"
	"testing"
)

func TestNewPostgresConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	cfg := NewPostgresConfig("postgres://config/db")
	if cfg.DSN != "postgres://env/db" {
		t.Errorf("DSN = %q, want env value", cfg.DSN)
	}

	t.Setenv("DATABASE_URL", "")
	cfg = NewPostgresConfig("postgres://config/db")
	if cfg.DSN != "postgres://config/db" {
		t.Errorf("DSN = %q, want fallback", cfg.DSN)
	}
	if cfg.MaxConns != defaultMaxConns {
		t.Errorf("MaxConns = %d, want %d", cfg.MaxConns, defaultMaxConns)
	}
}

func TestNewPool_EmptyDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), &PostgresConfig{}); err == nil {
		t.Error("expected error for empty dsn")
	}
}

func TestNewPool_BadDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), &PostgresConfig{DSN: "postgres://user@localhost:notaport/db"}); err == nil {
		t.Error("expected error for malformed dsn")
	}
}
