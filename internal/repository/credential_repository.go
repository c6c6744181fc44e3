package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/iliyamo/parcel-marketplace/internal/model"
)

// CredentialRepo tracks issued credentials in the 'credentials' table.  Only
// the SHA-256 of each token is stored; a bearer token is honoured only while
// its row exists, is unexpired and has not been revoked.
type CredentialRepo struct{ DB *sql.DB }

func NewCredentialRepo(db *sql.DB) *CredentialRepo { return &CredentialRepo{DB: db} }

// Store records a newly issued credential.
func (r *CredentialRepo) Store(ctx context.Context, userID, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO credentials (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp)
	return err
}

// Lookup loads the row for tokenHash.
func (r *CredentialRepo) Lookup(ctx context.Context, tokenHash string) (model.Credential, error) {
	var (
		c         model.Credential
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, expires_at, revoked_at, created_at FROM credentials WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&c.ID, &c.UserID, &c.TokenHash, &c.ExpiresAt, &revokedAt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credential{}, ErrCredentialInvalid
	}
	if err != nil {
		return model.Credential{}, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		c.RevokedAt = &t
	}
	return c, nil
}

// Validate returns the owning user id of a live credential.
func (r *CredentialRepo) Validate(ctx context.Context, tokenHash string) (string, error) {
	c, err := r.Lookup(ctx, tokenHash)
	if err != nil {
		return "", err
	}
	if !c.Active(time.Now().UTC()) {
		return "", ErrCredentialInvalid
	}
	return c.UserID, nil
}

// Renewable returns the owner of a credential that may still be refreshed:
// unrevoked and expired less than grace ago.
func (r *CredentialRepo) Renewable(ctx context.Context, tokenHash string, grace time.Duration) (string, error) {
	c, err := r.Lookup(ctx, tokenHash)
	if err != nil {
		return "", err
	}
	if !c.Renewable(time.Now().UTC(), grace) {
		return "", ErrCredentialInvalid
	}
	return c.UserID, nil
}

// Revoke marks a credential as revoked.  Revoking twice is not an error.
func (r *CredentialRepo) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE credentials SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	return err
}

// RevokeAllForUser revokes every live credential of a user.
func (r *CredentialRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE credentials SET revoked_at=UTC_TIMESTAMP() WHERE user_id=? AND revoked_at IS NULL",
		userID)
	return err
}

// MemoryCredentials is the in-process credential table.
type MemoryCredentials struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[string]*model.Credential
	now    func() time.Time
}

func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{rows: map[string]*model.Credential{}, now: time.Now}
}

func (m *MemoryCredentials) Store(ctx context.Context, userID, tokenHash string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.rows[tokenHash] = &model.Credential{
		ID: m.nextID, UserID: userID, TokenHash: tokenHash, ExpiresAt: exp, CreatedAt: m.now().UTC(),
	}
	return nil
}

func (m *MemoryCredentials) Validate(ctx context.Context, tokenHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[tokenHash]
	if !ok || !c.Active(m.now()) {
		return "", ErrCredentialInvalid
	}
	return c.UserID, nil
}

func (m *MemoryCredentials) Renewable(ctx context.Context, tokenHash string, grace time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[tokenHash]
	if !ok || !c.Renewable(m.now(), grace) {
		return "", ErrCredentialInvalid
	}
	return c.UserID, nil
}

func (m *MemoryCredentials) Revoke(ctx context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.rows[tokenHash]; ok && c.RevokedAt == nil {
		now := m.now().UTC()
		c.RevokedAt = &now
	}
	return nil
}

func (m *MemoryCredentials) RevokeAllForUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	for _, c := range m.rows {
		if c.UserID == userID && c.RevokedAt == nil {
			c.RevokedAt = &now
		}
	}
	return nil
}
