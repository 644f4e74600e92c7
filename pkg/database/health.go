package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthStatus describes database reachability for the health endpoint.
type HealthStatus struct {
	Reachable bool   `json:"reachable"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Health pings the database and reports reachability and latency.
func Health(ctx context.Context, pool *pgxpool.Pool) *HealthStatus {
	start := time.Now()
	err := pool.Ping(ctx)
	status := &HealthStatus{
		Reachable: err == nil,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}
