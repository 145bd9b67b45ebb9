package server

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"spai-hq/gatekeeper/pkg/pipeline"
)

// ErrNoSurface means no UI surface is connected for the target tab.
var ErrNoSurface = errors.New("server: no surface connected for tab")

// signalAttempts and signalBackoff bound delivery retries for signals
// sent while a surface is momentarily reconnecting.
const (
	signalAttempts = 5
	signalBackoff  = 150 * time.Millisecond
)

// Hub routes UI signals to per-tab SSE subscribers. It implements
// pipeline.TabSignaler.
//
// One subscriber per tab: a reconnect replaces the previous stream. The
// hub also remembers each tab's last captured host so grant-expiry can
// request re-capture from every tab still on that host.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan pipeline.Signal
	hosts  map[int]string
	logger *slog.Logger

	// sleep is injectable for tests
	sleep func(time.Duration)
}

// NewHub creates an empty signal hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[int]chan pipeline.Signal),
		hosts:  make(map[int]string),
		logger: logger,
		sleep:  time.Sleep,
	}
}

// Subscribe registers a stream for the tab and returns its channel plus a
// cancel function. An existing stream for the same tab is closed first.
func (h *Hub) Subscribe(tabID int) (<-chan pipeline.Signal, func()) {
	ch := make(chan pipeline.Signal, 8)

	h.mu.Lock()
	if old, ok := h.subs[tabID]; ok {
		close(old)
	}
	h.subs[tabID] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if current, ok := h.subs[tabID]; ok && current == ch {
			delete(h.subs, tabID)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// SignalTab delivers a signal to the tab's stream, retrying briefly if no
// subscriber is present or its buffer is full.
//
// The send happens under h.mu: subscriber channels are only ever closed
// while the lock is held, so a send can never hit a channel that a
// concurrent resubscribe, cancel or Close has already closed.
func (h *Hub) SignalTab(tabID int, sig pipeline.Signal) error {
	for attempt := 0; attempt < signalAttempts; attempt++ {
		if attempt > 0 {
			h.sleep(signalBackoff * time.Duration(attempt))
		}

		h.mu.Lock()
		ch, ok := h.subs[tabID]
		if ok {
			select {
			case ch <- sig:
				h.mu.Unlock()
				return nil
			default:
				// Buffer full; surface is likely stalled. Retry.
			}
		}
		h.mu.Unlock()
	}
	return ErrNoSurface
}

// SetTabHost records the host a tab most recently captured.
func (h *Hub) SetTabHost(tabID int, host string) {
	h.mu.Lock()
	h.hosts[tabID] = host
	h.mu.Unlock()
}

// SignalTabsOnHost sends a signal to every connected tab whose last
// capture was on the given host. Used when a temporary allow expires so
// affected pages re-evaluate.
func (h *Hub) SignalTabsOnHost(host string, sig pipeline.Signal) {
	h.mu.Lock()
	var targets []int
	for tabID, tabHost := range h.hosts {
		if tabHost == host {
			targets = append(targets, tabID)
		}
	}
	h.mu.Unlock()

	for _, tabID := range targets {
		if err := h.SignalTab(tabID, sig); err != nil {
			h.logger.Debug("recapture signal undeliverable", "tab", tabID, "error", err)
		}
	}
}

// Close shuts every stream down.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for tabID, ch := range h.subs {
		close(ch)
		delete(h.subs, tabID)
	}
}
