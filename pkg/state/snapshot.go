package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"spai-hq/gatekeeper/pkg/storage"
)

// snapshot is the persisted form of the ephemeral state.
type snapshot struct {
	Allows   map[string]int64 `json:"allows"`
	Sessions []AppealSession  `json:"sessions"`
}

// Save writes the current state to storage. Best effort: a failed or lost
// snapshot costs at most some live grants and open appeal sessions.
func (m *Manager) Save(ctx context.Context, backend storage.Backend) error {
	snap := snapshot{
		Allows:   m.ActiveAllows(),
		Sessions: m.Sessions(),
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("state: failed to encode snapshot: %w", err)
	}
	if err := backend.Set(ctx, storage.KeyStateSnapshot, raw); err != nil {
		return fmt.Errorf("state: failed to write snapshot: %w", err)
	}
	return nil
}

// Restore loads a previously saved snapshot, if any, re-arming expiry
// timers for grants that are still live and dropping the rest. Restored
// state merges over (and wins against) anything already in memory.
func (m *Manager) Restore(ctx context.Context, backend storage.Backend) error {
	raw, ok, err := backend.Get(ctx, storage.KeyStateSnapshot)
	if err != nil {
		return fmt.Errorf("state: failed to read snapshot: %w", err)
	}
	if !ok {
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// A corrupt snapshot is discarded, not fatal.
		m.logger.Warn("discarding unreadable state snapshot", "error", err)
		return nil
	}

	nowMillis := m.now().UnixMilli()
	restored := 0

	m.mu.Lock()
	for host, expiry := range snap.Allows {
		if expiry <= nowMillis {
			continue
		}
		m.allows[host] = expiry
		host := host
		m.scheduleLocked(host, time.UnixMilli(expiry), func() { m.expireAllow(host) })
		restored++
	}
	for _, s := range snap.Sessions {
		m.sessions[s.TabID] = s
	}
	m.mu.Unlock()

	m.logger.Info("ephemeral state restored",
		"allows", restored,
		"sessions", len(snap.Sessions),
	)
	return nil
}
