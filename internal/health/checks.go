package health

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database probes Postgres.
func Database(db Pinger, timeout time.Duration) Check {
	return Check{Name: "db", Timeout: timeout, Probe: func(ctx context.Context) error {
		return db.Ping(ctx)
	}}
}

// Redis probes the cache and lock backend.
func Redis(client *redis.Client, timeout time.Duration) Check {
	return Check{Name: "redis", Timeout: timeout, Probe: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}
