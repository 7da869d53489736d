package database

import (
	"context"
	"os"
	"time"
)

// HealthStatus represents database health, file size, and connection pool statistics
type HealthStatus struct {
	Status          string `json:"status"`
	ResponseTime    int64  `json:"response_time_ms"`
	SizeBytes       int64  `json:"size_bytes"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
}

// Health checks database connectivity and returns file and pool statistics
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()

	// Ping database
	if err := c.db.PingContext(ctx); err != nil {
		return &HealthStatus{
			Status:       "unhealthy",
			ResponseTime: time.Since(start).Milliseconds(),
		}, err
	}

	stats := c.db.Stats()

	var size int64
	if fi, err := os.Stat(c.path); err == nil {
		size = fi.Size()
	}

	return &HealthStatus{
		Status:          "healthy",
		ResponseTime:    time.Since(start).Milliseconds(),
		SizeBytes:       size,
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
	}, nil
}
