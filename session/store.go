// Package session tracks server-side login sessions.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for unknown, expired or destroyed sessions.
var ErrNotFound = errors.New("session not found")

// Record is the server-side state of one login.
type Record struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store persists session records until they expire.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Lookup(ctx context.Context, id string) (Record, error)
	Destroy(ctx context.Context, id string) error
}
