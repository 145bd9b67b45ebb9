package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// strictExpiryHost is the reserved timer key for the strict-mode wake-up.
// Hostnames never collide with it because it is not a valid hostname.
const strictExpiryHost = "!strict-expiry"

// AppealSession is an active appeal for one tab.
//
// A session is created when enforcement decides to prompt an appeal and is
// the only valid target of a later allow-grant. It is consumed when the
// appeal concludes.
type AppealSession struct {
	// ID uniquely identifies the session.
	ID string `json:"id"`

	// TabID is the tab the appeal dialog is showing in.
	TabID int `json:"tabId"`

	// Hostname is the host the appeal is about.
	Hostname string `json:"hostname"`

	// CreatedAt is the unix-millisecond creation time.
	CreatedAt int64 `json:"createdAt"`
}

// Manager owns the temporary-allow and appeal-session maps.
//
// The pipeline reads them but never mutates them directly; mutation happens
// only through enforcement and the appeal grant path. Safe for concurrent
// use.
type Manager struct {
	// allows maps hostname -> unix-millisecond expiry
	allows map[string]int64

	// sessions maps tab id -> active appeal session
	sessions map[int]AppealSession

	// timers maps hostname -> pending expiry timer
	timers map[string]*time.Timer

	// mu protects all three maps
	mu sync.Mutex

	// onExpire is notified after a grant expires (timer or sweep)
	onExpire func(hostname string)

	// sweeper is the periodic backstop for missed timers
	sweeper *cron.Cron

	logger *slog.Logger
	now    func() time.Time
}

// ManagerConfig configures a state manager.
type ManagerConfig struct {
	// OnExpire is called with the hostname after a temporary allow
	// expires, outside the manager lock. Used to request re-capture of
	// open tabs on that host. Optional.
	OnExpire func(hostname string)

	// SweepSchedule is the cron expression for the expiry backstop
	// sweep. Default: every minute.
	SweepSchedule string

	// Logger for structured logging. Defaults to slog.Default.
	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewManager creates a state manager and starts its sweep schedule.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	schedule := cfg.SweepSchedule
	if schedule == "" {
		schedule = "* * * * *"
	}

	m := &Manager{
		allows:   make(map[string]int64),
		sessions: make(map[int]AppealSession),
		timers:   make(map[string]*time.Timer),
		onExpire: cfg.OnExpire,
		logger:   logger,
		now:      now,
	}

	m.sweeper = cron.New()
	if _, err := m.sweeper.AddFunc(schedule, m.sweepExpired); err != nil {
		return nil, err
	}
	m.sweeper.Start()

	return m, nil
}

// Stop halts the sweep schedule and cancels pending expiry timers.
func (m *Manager) Stop() {
	if m.sweeper != nil {
		m.sweeper.Stop()
	}

	m.mu.Lock()
	for host, timer := range m.timers {
		timer.Stop()
		delete(m.timers, host)
	}
	m.mu.Unlock()
}

// AddTemporaryAllow grants a host temporary access for the given number of
// minutes, overwriting any existing grant. Minutes below one are raised to
// one. The expiry is enforced by a timer, with the periodic sweep as
// backstop.
func (m *Manager) AddTemporaryAllow(hostname string, minutes int) time.Time {
	if minutes < 1 {
		minutes = 1
	}
	expiresAt := m.now().Add(time.Duration(minutes) * time.Minute)

	m.mu.Lock()
	m.allows[hostname] = expiresAt.UnixMilli()
	m.scheduleLocked(hostname, expiresAt, func() { m.expireAllow(hostname) })
	m.mu.Unlock()

	m.logger.Info("temporary allow granted",
		"host", hostname,
		"minutes", minutes,
		"expires_at", expiresAt,
	)
	return expiresAt
}

// IsTemporarilyAllowed reports whether the host holds an unexpired grant.
// An expired grant found here is deleted lazily.
func (m *Manager) IsTemporarilyAllowed(hostname string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.allows[hostname]
	if !ok {
		return false
	}
	if expiry > m.now().UnixMilli() {
		return true
	}
	delete(m.allows, hostname)
	return false
}

// ActiveAllows returns a copy of the live hostname -> expiry map.
func (m *Manager) ActiveAllows() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	nowMillis := m.now().UnixMilli()
	out := make(map[string]int64, len(m.allows))
	for host, expiry := range m.allows {
		if expiry > nowMillis {
			out[host] = expiry
		}
	}
	return out
}

// expireAllow removes a grant and notifies the expiry hook.
func (m *Manager) expireAllow(hostname string) {
	m.mu.Lock()
	_, existed := m.allows[hostname]
	delete(m.allows, hostname)
	delete(m.timers, hostname)
	m.mu.Unlock()

	if !existed {
		return
	}

	m.logger.Info("temporary allow expired", "host", hostname)
	if m.onExpire != nil {
		m.onExpire(hostname)
	}
}

// sweepExpired is the cron backstop: it expires any grant whose timer was
// lost (for example, across a snapshot restore on a machine that slept).
func (m *Manager) sweepExpired() {
	nowMillis := m.now().UnixMilli()

	m.mu.Lock()
	var expired []string
	for host, expiry := range m.allows {
		if expiry <= nowMillis {
			expired = append(expired, host)
		}
	}
	m.mu.Unlock()

	for _, host := range expired {
		m.expireAllow(host)
	}
}

// scheduleLocked (re)arms the named timer. Callers hold m.mu.
func (m *Manager) scheduleLocked(name string, at time.Time, fn func()) {
	if existing, ok := m.timers[name]; ok {
		existing.Stop()
	}
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	m.timers[name] = time.AfterFunc(delay, fn)
}

// ScheduleStrictExpiry arms a wake-up that fires once at the strict-mode
// deadline, replacing any previously armed one. The callback typically
// performs a settings read, which lazily expires the lock.
func (m *Manager) ScheduleStrictExpiry(at time.Time, fn func()) {
	m.mu.Lock()
	m.scheduleLocked(strictExpiryHost, at, func() {
		m.mu.Lock()
		delete(m.timers, strictExpiryHost)
		m.mu.Unlock()
		fn()
	})
	m.mu.Unlock()
}

// CreateAppealSession opens (or replaces) the appeal session for a tab.
func (m *Manager) CreateAppealSession(tabID int, hostname string) AppealSession {
	session := AppealSession{
		ID:        uuid.NewString(),
		TabID:     tabID,
		Hostname:  hostname,
		CreatedAt: m.now().UnixMilli(),
	}

	m.mu.Lock()
	m.sessions[tabID] = session
	m.mu.Unlock()

	return session
}

// ValidateAppealSession reports whether a session exists for the exact
// (tab, hostname) pair. This is the sole authorization check for granting a
// temporary allow: a compromised UI surface cannot grant itself access to
// an arbitrary host.
func (m *Manager) ValidateAppealSession(tabID int, hostname string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[tabID]
	return ok && session.Hostname == hostname
}

// ClearAppealSession deletes the session for a tab, if any.
func (m *Manager) ClearAppealSession(tabID int) {
	m.mu.Lock()
	delete(m.sessions, tabID)
	m.mu.Unlock()
}

// Sessions returns a copy of the active appeal sessions.
func (m *Manager) Sessions() []AppealSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AppealSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
