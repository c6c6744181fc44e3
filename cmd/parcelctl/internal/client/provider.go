// Package client builds the session manager and the delivery API client the
// parcelctl commands share.
package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/parcel-marketplace/internal/config"
	"github.com/iliyamo/parcel-marketplace/internal/gate"
	"github.com/iliyamo/parcel-marketplace/internal/logging"
	"github.com/iliyamo/parcel-marketplace/internal/model"
	"github.com/iliyamo/parcel-marketplace/internal/session"
)

// Session stores understood by --session-store.
const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// ErrNotLoggedIn is returned when a command needs a session and none could
// be restored.
var ErrNotLoggedIn = errors.New("not logged in (run: parcelctl auth login)")

// Provider holds the global flags and lazily opens the session.
type Provider struct {
	ServerURL  string
	SessionDir string
	StoreKind  string
	Timeout    time.Duration

	rdb *redis.Client
}

// Session is an open session manager plus the store behind it.
type Session struct {
	*session.Manager
	Store session.Store
}

// Open builds the store and the manager.  The returned session still needs
// Restore (or Login) before it settles.
func (p *Provider) Open() (*Session, error) {
	store, err := p.store()
	if err != nil {
		return nil, err
	}
	authority := session.NewHTTPAuthority(p.ServerURL, session.WithTimeout(p.Timeout))
	m := session.New(authority, store, session.WithLogger(quietLogger()))
	return &Session{Manager: m, Store: store}, nil
}

// Require restores the persisted session and checks it against the gate.
// With roles it also enforces them and names the caller's landing page on
// mismatch.
func (p *Provider) Require(ctx context.Context, roles ...model.Role) (*Session, error) {
	s, err := p.Open()
	if err != nil {
		return nil, err
	}
	if err := s.Restore(ctx); err != nil {
		s.Close()
		return nil, err
	}
	d, err := gate.New(s.Manager).Await(ctx, roles...)
	if err != nil {
		s.Close()
		return nil, err
	}
	switch d.Outcome {
	case gate.Allow:
		return s, nil
	case gate.Forbidden:
		s.Close()
		return nil, fmt.Errorf("your role cannot do this (your home is %s)", d.Landing)
	default:
		s.Close()
		if errors.Is(s.State().LastError, session.ErrSessionExpired) {
			return nil, fmt.Errorf("%w: %v", ErrNotLoggedIn, session.ErrSessionExpired)
		}
		return nil, ErrNotLoggedIn
	}
}

// Deliveries returns an API client authorised with the session's credential.
func (p *Provider) Deliveries(s *Session) *Deliveries {
	return NewDeliveries(p.ServerURL, s.State().Credential, p.Timeout)
}

// Close releases the redis connection, if one was opened.
func (p *Provider) Close() {
	if p.rdb != nil {
		_ = p.rdb.Close()
	}
}

func (p *Provider) store() (session.Store, error) {
	switch p.StoreKind {
	case "", StoreFile:
		return session.NewFileStore(p.SessionDir)
	case StoreRedis:
		if p.rdb == nil {
			p.rdb = config.NewRedisClient()
		}
		if p.rdb == nil {
			return nil, errors.New("redis session store selected but redis is unreachable")
		}
		return session.NewRedisStore(p.rdb, "", session.DefaultLifetime), nil
	default:
		return nil, fmt.Errorf("unknown session store %q (want %s or %s)", p.StoreKind, StoreFile, StoreRedis)
	}
}

// quietLogger keeps session logs off stdout so they don't interleave with
// command output.  LOG_LEVEL still applies when set.
func quietLogger() *log.Logger {
	l := logging.New("session")
	l.SetOutput(os.Stderr)
	if os.Getenv("LOG_LEVEL") == "" {
		l.SetLevel(log.WARN)
	}
	return l
}
