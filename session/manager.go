package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalid is returned when a presented cookie does not name a live session.
var ErrInvalid = errors.New("invalid session")

// Manager issues, resolves and ends sessions.
type Manager struct {
	store  Store
	signer *Signer
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a Manager. ttl is the lifetime of both the record and the
// cookie that carries it.
func NewManager(store Store, secret string, ttl time.Duration) *Manager {
	return &Manager{store: store, signer: NewSigner(secret), ttl: ttl, now: time.Now}
}

// TTL is the session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Start creates a session for user and returns the signed cookie value.
func (m *Manager) Start(ctx context.Context, user string) (string, Record, error) {
	now := m.now()
	rec := Record{
		ID:        uuid.NewString(),
		User:      user,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return "", Record{}, err
	}
	token, err := m.signer.Sign(rec)
	if err != nil {
		_ = m.store.Destroy(ctx, rec.ID)
		return "", Record{}, fmt.Errorf("sign session: %w", err)
	}
	return token, rec, nil
}

// Resolve returns the live session named by token. Bad signatures, expired
// tokens and destroyed sessions all yield ErrInvalid.
func (m *Manager) Resolve(ctx context.Context, token string) (Record, error) {
	sid, user, err := m.signer.Parse(token)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	rec, err := m.store.Lookup(ctx, sid)
	if errors.Is(err, ErrNotFound) {
		return Record{}, ErrInvalid
	}
	if err != nil {
		return Record{}, err
	}
	if rec.User != user {
		return Record{}, ErrInvalid
	}
	return rec, nil
}

// End destroys the session named by token. Invalid tokens are ignored.
func (m *Manager) End(ctx context.Context, token string) error {
	sid, _, err := m.signer.Parse(token)
	if err != nil {
		return nil
	}
	return m.store.Destroy(ctx, sid)
}
