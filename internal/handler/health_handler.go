package handler

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const readyTimeout = 5 * time.Second

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Checker probes one dependency
type Checker func(ctx context.Context) HealthCheckResult

// Ready runs every check in parallel and reports 503 unless all are up
func Ready(checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			results = make(map[string]HealthCheckResult, len(checks))
		)
		for name, check := range checks {
			wg.Add(1)
			go func(name string, check Checker) {
				defer wg.Done()
				res := check(ctx)
				mu.Lock()
				results[name] = res
				mu.Unlock()
			}(name, check)
		}
		wg.Wait()

		status := http.StatusOK
		response := map[string]interface{}{
			"status":    "ready",
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    results,
		}
		for _, res := range results {
			if res.Status != "up" {
				status = http.StatusServiceUnavailable
				response["status"] = "not_ready"
				break
			}
		}

		writeJSON(w, status, response)
	}
}

// DatabaseCheck verifies database connectivity
func DatabaseCheck(db *sql.DB) Checker {
	return func(ctx context.Context) HealthCheckResult {
		start := time.Now()
		err := db.PingContext(ctx)
		latency := time.Since(start)

		if err != nil {
			return HealthCheckResult{
				Status:    "down",
				LatencyMs: latency.Milliseconds(),
				Error:     err.Error(),
			}
		}

		stats := db.Stats()
		return HealthCheckResult{
			Status:    "up",
			LatencyMs: latency.Milliseconds(),
			Metadata: map[string]interface{}{
				"connections_open":   stats.OpenConnections,
				"connections_in_use": stats.InUse,
				"connections_idle":   stats.Idle,
				"max_open":           stats.MaxOpenConnections,
			},
		}
	}
}

type connectionState interface {
	IsClosed() bool
}

// RabbitMQCheck verifies the broker connection is still open
func RabbitMQCheck(conn connectionState) Checker {
	return func(ctx context.Context) HealthCheckResult {
		if conn.IsClosed() {
			return HealthCheckResult{
				Status: "down",
				Error:  "connection closed",
			}
		}
		return HealthCheckResult{Status: "up"}
	}
}

type redisPinger interface {
	Ping(ctx context.Context) *goredis.StatusCmd
}

// RedisCheck verifies the session store answers PING
func RedisCheck(client redisPinger) Checker {
	return func(ctx context.Context) HealthCheckResult {
		start := time.Now()
		err := client.Ping(ctx).Err()
		latency := time.Since(start)

		if err != nil {
			return HealthCheckResult{
				Status:    "down",
				LatencyMs: latency.Milliseconds(),
				Error:     err.Error(),
			}
		}
		return HealthCheckResult{
			Status:    "up",
			LatencyMs: latency.Milliseconds(),
		}
	}
}
