package http

import (
	"sync"
	"time"
)

const (
	// Mutating requests allowed per client within one window.
	rateLimitBudget = 60
	rateLimitWindow = time.Minute

	// Clients idle longer than this are swept from memory.
	rateLimitStaleAfter = 10 * time.Minute
	rateLimitSweepEvery = 5 * time.Minute
)

// rateLimiter tracks per-client request counts over a rolling window, held
// entirely in memory. A background sweeper drops clients that went quiet.
type rateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientWindow
	stopSweep chan struct{}
	stopOnce  sync.Once
}

type clientWindow struct {
	windowStart time.Time
	count       int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:   make(map[string]*clientWindow),
		stopSweep: make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *rateLimiter) sweepLoop() {
	ticker := time.NewTicker(rateLimitSweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweepIdleClients()
		case <-rl.stopSweep:
			return
		}
	}
}

func (rl *rateLimiter) sweepIdleClients() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rateLimitStaleAfter)
	for ip, c := range rl.clients {
		if c.windowStart.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// stop terminates the sweeper goroutine.
func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopSweep)
	})
}

// allow records one request for clientIP and reports whether it fits the
// budget. The window restarts once rateLimitWindow has elapsed since the
// client's last reset.
func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	c, ok := rl.clients[clientIP]
	if !ok || now.Sub(c.windowStart) > rateLimitWindow {
		rl.clients[clientIP] = &clientWindow{windowStart: now, count: 1}
		return true
	}

	c.count++
	return c.count <= rateLimitBudget
}
