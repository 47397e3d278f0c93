// Package netmon reports reachability of the backend. Detection is a
// best-effort optimization: with no probe configured the monitor assumes
// online and lets the submission client's own failures be the authoritative
// signal.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fieldsync/pkg/logger"

	"go.uber.org/zap"
)

type Monitor struct {
	probeURL string
	interval time.Duration
	client   *http.Client

	mu        sync.Mutex
	online    bool
	listeners map[int]func(online bool)
	nextID    int
}

func New(probeURL string, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		probeURL:  probeURL,
		interval:  interval,
		client:    &http.Client{Timeout: 5 * time.Second},
		online:    true,
		listeners: make(map[int]func(bool)),
	}
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange registers a transition callback and returns its deregistration
// function. Calling the returned function more than once is a no-op.
func (m *Monitor) OnChange(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Start probes until ctx is done. Without a probe URL there is nothing to
// watch and the monitor stays online.
func (m *Monitor) Start(ctx context.Context) {
	if m.probeURL == "" {
		logger.Info("no connectivity probe configured, assuming online")
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	logger.Info("connectivity monitor started",
		zap.String("probe", m.probeURL),
		zap.Duration("interval", m.interval))

	m.setOnline(m.probe(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.setOnline(m.probe(ctx))
		}
	}
}

// probe treats any HTTP response, whatever the status, as proof of
// reachability. Only transport errors count as offline.
func (m *Monitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		return true
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func (m *Monitor) setOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	logger.Info("connectivity changed", zap.Bool("online", online))
	for _, fn := range fns {
		fn(online)
	}
}
