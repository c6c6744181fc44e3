// Package session keeps one authenticated session alive: it logs in and out
// against a remote authority, persists the credential so the next start can
// restore it, and refreshes the credential shortly before it expires.
//
// A Manager is either unauthenticated (no identity, no credential, no timer)
// or authenticated (identity and credential set, exactly one refresh timer
// pending).  Loading is true while Restore, Login or Register is running.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/parcel-marketplace/internal/logging"
	"github.com/iliyamo/parcel-marketplace/internal/model"
	"github.com/iliyamo/parcel-marketplace/internal/obs"
)

const (
	// DefaultLifetime is how long the authority's credentials stay valid.
	DefaultLifetime = 24 * time.Hour
	// DefaultRefreshLead is how early before expiry the refresh fires.
	DefaultRefreshLead = 5 * time.Minute
)

// Timer is a pending one-shot callback.  *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after d.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) Timer
}

type afterFunc struct{}

func (afterFunc) Schedule(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// State is a snapshot of the session.
type State struct {
	Identity      *model.Identity
	Credential    string
	Authenticated bool
	Loading       bool
	// RefreshAt is when the pending refresh fires; zero when none is pending.
	RefreshAt time.Time
	// LastError is ErrSessionExpired after a failed background refresh and
	// nil otherwise.
	LastError error
}

// Manager owns the session.  All methods are safe for concurrent use.
type Manager struct {
	authority Authority
	store     Store
	sched     Scheduler
	lifetime  time.Duration
	lead      time.Duration
	now       func() time.Time
	log       *log.Logger

	// persistMu serialises every change that touches the store, so the
	// store always holds the session the last such change left in memory.
	// Lock order: persistMu before mu.
	persistMu sync.Mutex

	mu         sync.Mutex
	identity   *model.Identity
	credential string
	timer      Timer
	gen        uint64
	refreshAt  time.Time
	lastErr    error
	closed     bool

	// restorePending holds Loading up from construction until the first
	// Restore, Login, Register or Logout.
	restorePending bool
	inflight       int
	settled        chan struct{}
	settledClosed  bool
}

// Option configures a Manager.
type Option func(*Manager)

func WithLifetime(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lifetime = d
		}
	}
}

func WithRefreshLead(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.lead = d
		}
	}
}

// WithScheduler replaces time.AfterFunc, mainly for tests.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) {
		if s != nil {
			m.sched = s
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// New returns a Manager in the loading state; call Restore once at start.
func New(authority Authority, store Store, opts ...Option) *Manager {
	m := &Manager{
		authority:      authority,
		store:          store,
		sched:          afterFunc{},
		lifetime:       DefaultLifetime,
		lead:           DefaultRefreshLead,
		now:            time.Now,
		restorePending: true,
		settled:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logging.New("session")
	}
	if m.lead > m.lifetime {
		m.lead = 0
	}
	return m
}

// State returns a snapshot of the session.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := State{
		Credential:    m.credential,
		Authenticated: m.authenticatedLocked(),
		Loading:       m.loadingLocked(),
		RefreshAt:     m.refreshAt,
		LastError:     m.lastErr,
	}
	if m.identity != nil {
		id := *m.identity
		st.Identity = &id
	}
	return st
}

// Settled returns a channel that is closed while the manager is not loading.
// Grab a fresh channel after each wake-up; a new operation reopens it.
func (m *Manager) Settled() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settled
}

// Restore re-establishes the persisted session.  A credential the authority
// no longer accepts gets one refresh attempt; if that fails too the store is
// cleared.  Only a store read failure is returned.
func (m *Manager) Restore(ctx context.Context) error {
	gen := m.begin()
	defer m.end()

	p, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !p.Complete() {
		return nil
	}

	id, err := m.authority.Profile(ctx, p.Credential)
	if err == nil {
		m.persistMu.Lock()
		defer m.persistMu.Unlock()
		m.mu.Lock()
		if m.gen != gen || m.closed {
			m.mu.Unlock()
			return nil
		}
		m.establishLocked(p.Credential, id)
		m.mu.Unlock()
		if err := m.store.Save(ctx, Persisted{Credential: p.Credential, Identity: &id}); err != nil {
			m.log.Warnf("session: cache restored identity: %v", err)
		}
		m.log.Infoj(log.JSON{"msg": "session restored", "user_id": id.ID, "role": id.Role})
		return nil
	}

	m.log.Warnf("session: profile check failed, trying refresh: %v", err)
	m.refreshCredential(ctx, gen, p.Credential, *p.Identity)
	return nil
}

// Login authenticates with email and password.  Rejections come back as
// *AuthenticationError and transport failures as *NetworkError; either way
// the session is left unauthenticated, even if one was live before.
func (m *Manager) Login(ctx context.Context, email, password string) (model.Identity, error) {
	gen := m.begin()
	defer m.end()

	g, err := m.authority.Login(ctx, email, password)
	if err != nil {
		m.abandon(ctx, gen)
		return model.Identity{}, err
	}
	if err := m.adopt(ctx, gen, g); err != nil {
		return model.Identity{}, err
	}
	m.log.Infoj(log.JSON{"msg": "logged in", "user_id": g.Identity.ID, "role": g.Identity.Role})
	return g.Identity, nil
}

// Register creates an account and starts a session for it, with the same
// error contract as Login.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (model.Identity, error) {
	gen := m.begin()
	defer m.end()

	g, err := m.authority.Register(ctx, req)
	if err != nil {
		m.abandon(ctx, gen)
		return model.Identity{}, err
	}
	if err := m.adopt(ctx, gen, g); err != nil {
		return model.Identity{}, err
	}
	m.log.Infoj(log.JSON{"msg": "registered", "user_id": g.Identity.ID, "role": g.Identity.Role})
	return g.Identity, nil
}

// adopt persists a fresh grant and makes it the current session.  If the
// store rejects it, the session started from gen is dropped instead.
func (m *Manager) adopt(ctx context.Context, gen uint64, g Grant) error {
	id := g.Identity
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	if err := m.store.Save(ctx, Persisted{Credential: g.Credential, Identity: &id}); err != nil {
		m.abandonLocked(ctx, gen)
		return fmt.Errorf("persist session: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("session: manager closed")
	}
	m.establishLocked(g.Credential, id)
	return nil
}

// abandon drops the session a failed login or register started from.  A
// session established by another operation in the meantime is kept.
func (m *Manager) abandon(ctx context.Context, gen uint64) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	m.abandonLocked(ctx, gen)
}

// abandonLocked is abandon with persistMu held.
func (m *Manager) abandonLocked(ctx context.Context, gen uint64) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	live := m.credential != ""
	m.resetLocked()
	m.mu.Unlock()
	if !live {
		return
	}
	if err := m.store.Clear(ctx); err != nil {
		m.log.Warnf("session: clear store: %v", err)
	}
}

// Logout ends the session.  The authority is told on a best-effort basis;
// the timer, the store and the in-memory state are cleared regardless.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.restorePending = false
	m.updateSettledLocked()
	cred := m.credential
	m.resetLocked()
	m.lastErr = nil
	gen := m.gen
	m.mu.Unlock()

	if cred != "" {
		if err := m.authority.Logout(ctx, cred); err != nil {
			m.log.Warnf("session: logout notify failed: %v", err)
		}
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	m.mu.Lock()
	superseded := m.gen != gen
	m.mu.Unlock()
	if superseded {
		// a login finished while the authority was being told
		m.log.Info("logged out; newer session kept")
		return
	}
	if err := m.store.Clear(ctx); err != nil {
		m.log.Warnf("session: clear store: %v", err)
	}
	m.log.Info("logged out")
}

// Close stops the refresh timer and forgets the in-memory session.  The
// store is left alone so the next process can restore it.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.restorePending = false
	m.resetLocked()
	m.updateSettledLocked()
}

// refresh swaps the current credential for a new one.  It reports whether
// the session survived.
func (m *Manager) refresh(ctx context.Context) bool {
	m.mu.Lock()
	if m.closed || m.credential == "" || m.identity == nil {
		m.mu.Unlock()
		return false
	}
	gen, cred, id := m.gen, m.credential, *m.identity
	m.mu.Unlock()
	return m.refreshCredential(ctx, gen, cred, id)
}

// refreshCredential exchanges cred for a new credential on behalf of the
// session generation gen.  If another operation replaced the session in the
// meantime the result is dropped and the newer session is left untouched.
func (m *Manager) refreshCredential(ctx context.Context, gen uint64, cred string, id model.Identity) bool {
	next, err := m.authority.Refresh(ctx, cred)

	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	m.mu.Lock()
	if m.gen != gen || m.closed {
		m.mu.Unlock()
		obs.SessionRefreshes.WithLabelValues("superseded").Inc()
		return false
	}
	if err != nil {
		m.resetLocked()
		m.lastErr = ErrSessionExpired
		m.mu.Unlock()
		obs.SessionRefreshes.WithLabelValues("failed").Inc()
		m.log.Warnj(log.JSON{"msg": "refresh failed, session cleared", "user_id": id.ID, "error": err.Error()})
		if err := m.store.Clear(ctx); err != nil {
			m.log.Warnf("session: clear store: %v", err)
		}
		return false
	}
	m.establishLocked(next, id)
	m.mu.Unlock()

	obs.SessionRefreshes.WithLabelValues("ok").Inc()
	if err := m.store.Save(ctx, Persisted{Credential: next, Identity: &id}); err != nil {
		m.log.Warnf("session: persist refreshed credential: %v", err)
	}
	return true
}

// fire is the timer callback for generation gen.
func (m *Manager) fire(gen uint64) {
	m.mu.Lock()
	stale := m.closed || m.gen != gen
	m.mu.Unlock()
	if stale {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	m.refresh(ctx)
}

// establishLocked installs an authenticated session and schedules its
// refresh, replacing any pending timer.
func (m *Manager) establishLocked(cred string, id model.Identity) {
	m.identity = &id
	m.credential = cred
	m.lastErr = nil
	m.scheduleLocked()
}

func (m *Manager) scheduleLocked() {
	m.stopTimerLocked()
	m.gen++
	gen := m.gen
	delay := m.lifetime - m.lead
	m.refreshAt = m.now().Add(delay)
	m.timer = m.sched.Schedule(delay, func() { m.fire(gen) })
}

// resetLocked drops the in-memory session and invalidates any timer or
// in-flight refresh belonging to it.
func (m *Manager) resetLocked() {
	m.stopTimerLocked()
	m.gen++
	m.identity = nil
	m.credential = ""
	m.refreshAt = time.Time{}
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) authenticatedLocked() bool {
	return !m.closed && m.identity != nil && m.credential != ""
}

func (m *Manager) loadingLocked() bool {
	return m.restorePending || m.inflight > 0
}

// begin marks an operation in flight and returns the session generation it
// started from.
func (m *Manager) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restorePending = false
	m.inflight++
	m.updateSettledLocked()
	return m.gen
}

func (m *Manager) end() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight--
	m.updateSettledLocked()
}

func (m *Manager) updateSettledLocked() {
	loading := m.loadingLocked()
	switch {
	case loading && m.settledClosed:
		m.settled = make(chan struct{})
		m.settledClosed = false
	case !loading && !m.settledClosed:
		close(m.settled)
		m.settledClosed = true
	}
}
