// Package authgate tracks whether the local user is logged in.
package authgate

import (
	"context"
	"fmt"
	"sync"

	"github.com/123123eeqweq/omocrm/client"
	"github.com/123123eeqweq/omocrm/domain"
)

const (
	msgBadCredentials = "Неверный логин или пароль"
	msgLoginFailed    = "Ошибка входа. Проверьте, что бэкенд запущен."
)

// SessionAPI is the part of the board client the gate needs.
type SessionAPI interface {
	Login(ctx context.Context, login, password string) error
	Logout(ctx context.Context) error
	CheckSession(ctx context.Context) bool
}

// FlagStore persists the local "authenticated" flag.
type FlagStore interface {
	Authenticated() bool
	SetAuthenticated(v bool) error
}

// MemoryFlag is a FlagStore that lives only as long as the process.
type MemoryFlag struct {
	mu sync.Mutex
	v  bool
}

func (m *MemoryFlag) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v
}

func (m *MemoryFlag) SetAuthenticated(v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v = v
	return nil
}

// Gate combines the local flag with the server session according to policy.
type Gate struct {
	api    SessionAPI
	flags  FlagStore
	policy domain.AuthPolicy
}

// New creates a Gate. An empty policy means server-session.
func New(api SessionAPI, flags FlagStore, policy domain.AuthPolicy) *Gate {
	if policy == "" {
		policy = domain.AuthServerSession
	}
	if flags == nil {
		flags = &MemoryFlag{}
	}
	return &Gate{api: api, flags: flags, policy: policy}
}

// Policy reports the configured auth policy.
func (g *Gate) Policy() domain.AuthPolicy {
	return g.policy
}

// IsAuthenticated reads the local flag without contacting the server.
func (g *Gate) IsAuthenticated() bool {
	return g.flags.Authenticated()
}

// Login checks credentials with the server and sets the flag only on success.
func (g *Gate) Login(ctx context.Context, login, password string) error {
	if err := g.api.Login(ctx, login, password); err != nil {
		return err
	}
	if err := g.flags.SetAuthenticated(true); err != nil {
		return fmt.Errorf("store auth flag: %w", err)
	}
	return nil
}

// Logout clears the local flag. Under server-session the server session is
// ended first; the flag is cleared even if that fails.
func (g *Gate) Logout(ctx context.Context) error {
	var apiErr error
	if g.policy == domain.AuthServerSession {
		apiErr = g.api.Logout(ctx)
	}
	if err := g.flags.SetAuthenticated(false); err != nil {
		return fmt.Errorf("clear auth flag: %w", err)
	}
	return apiErr
}

// ValidateSession asks the server whether the session is still alive and
// clears the flag if it is not. Under client-flag-only the flag is trusted.
func (g *Gate) ValidateSession(ctx context.Context) bool {
	if g.policy == domain.AuthClientFlag {
		return g.flags.Authenticated()
	}
	ok := g.api.CheckSession(ctx)
	if !ok {
		_ = g.flags.SetAuthenticated(false)
	}
	return ok
}

// Invalidate drops the local flag after the server answered 401.
func (g *Gate) Invalidate() {
	_ = g.flags.SetAuthenticated(false)
}

// LoginErrorMessage is the text shown to the user for a failed login.
func LoginErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if client.IsUnauthorized(err) {
		return msgBadCredentials
	}
	return msgLoginFailed
}
