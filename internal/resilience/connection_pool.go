package resilience

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ConnectionPool manages a pool of HTTP clients with circuit breaker integration
type ConnectionPool struct {
	maxIdle     int
	maxActive   int
	idleTimeout time.Duration

	circuitBreaker *CircuitBreaker

	// activeConnections counts clients currently checked out
	activeConnections int
	idleConnections   []*pooledConnection
	mutex             sync.RWMutex

	transport *http.Transport
}

type pooledConnection struct {
	client   *http.Client
	lastUsed time.Time
}

// NewConnectionPool creates a new connection pool with circuit breaker
func NewConnectionPool(maxIdle, maxActive int, idleTimeout time.Duration, cb *CircuitBreaker) *ConnectionPool {
	transport := &http.Transport{
		MaxIdleConns:          maxIdle,
		MaxConnsPerHost:       maxActive,
		MaxIdleConnsPerHost:   maxIdle / 2,
		IdleConnTimeout:       idleTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &ConnectionPool{
		maxIdle:         maxIdle,
		maxActive:       maxActive,
		idleTimeout:     idleTimeout,
		circuitBreaker:  cb,
		transport:       transport,
		idleConnections: make([]*pooledConnection, 0),
	}
}

// GetClient retrieves a pooled HTTP client
func (cp *ConnectionPool) GetClient() (*http.Client, error) {
	cp.mutex.Lock()
	defer cp.mutex.Unlock()

	cp.cleanupIdleConnections()

	if cp.activeConnections >= cp.maxActive {
		return nil, fmt.Errorf("connection pool exhausted: %d/%d active connections", cp.activeConnections, cp.maxActive)
	}

	if len(cp.idleConnections) > 0 {
		conn := cp.idleConnections[0]
		cp.idleConnections = cp.idleConnections[1:]
		cp.activeConnections++

		slog.Debug("Reusing idle connection", "active", cp.activeConnections, "idle", len(cp.idleConnections))
		return conn.client, nil
	}

	client := &http.Client{
		Transport: cp.transport,
		Timeout:   30 * time.Second,
	}
	cp.activeConnections++

	slog.Debug("Created new connection", "active", cp.activeConnections, "idle", len(cp.idleConnections))
	return client, nil
}

// ReturnClient returns a checked-out client to the pool
func (cp *ConnectionPool) ReturnClient(client *http.Client) {
	cp.mutex.Lock()
	defer cp.mutex.Unlock()

	if cp.activeConnections > 0 {
		cp.activeConnections--
	}

	if len(cp.idleConnections) < cp.maxIdle {
		cp.idleConnections = append(cp.idleConnections, &pooledConnection{
			client:   client,
			lastUsed: time.Now(),
		})
		slog.Debug("Returned connection to idle pool", "idle", len(cp.idleConnections))
	}
}

// cleanupIdleConnections removes expired idle connections, caller holds the lock
func (cp *ConnectionPool) cleanupIdleConnections() {
	now := time.Now()
	valid := cp.idleConnections[:0]

	for _, conn := range cp.idleConnections {
		if now.Sub(conn.lastUsed) <= cp.idleTimeout {
			valid = append(valid, conn)
		}
	}

	cp.idleConnections = valid
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	cp.mutex.RLock()
	defer cp.mutex.RUnlock()

	return map[string]interface{}{
		"active_connections":    cp.activeConnections,
		"idle_connections":      len(cp.idleConnections),
		"max_idle":              cp.maxIdle,
		"max_active":            cp.maxActive,
		"idle_timeout_ms":       cp.idleTimeout.Milliseconds(),
		"circuit_breaker_state": cp.circuitBreaker.State().String(),
	}
}

// DoRequest executes an HTTP request with circuit breaker and connection pooling.
// The response body is the caller's to close.
func (cp *ConnectionPool) DoRequest(ctx context.Context, method, url string, headers map[string]string, body io.Reader) (*http.Response, error) {
	var resp *http.Response

	err := cp.circuitBreaker.Call(func() error {
		client, err := cp.GetClient()
		if err != nil {
			return err
		}
		defer cp.ReturnClient(client)

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return err
		}

		for key, value := range headers {
			req.Header.Set(key, value)
		}

		start := time.Now()
		resp, err = client.Do(req)
		duration := time.Since(start)

		if err != nil {
			slog.Warn("Request failed", "url", url, "error", err, "duration_ms", duration.Milliseconds())
			return err
		}

		slog.Debug("Request completed", "url", url, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())
		return nil
	})

	if err != nil {
		return nil, err
	}

	return resp, nil
}

// Close closes all connections in the pool
func (cp *ConnectionPool) Close() error {
	cp.mutex.Lock()
	defer cp.mutex.Unlock()

	cp.transport.CloseIdleConnections()
	cp.idleConnections = nil
	cp.activeConnections = 0

	slog.Info("Connection pool closed")
	return nil
}
