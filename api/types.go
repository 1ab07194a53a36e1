package api

import (
	"context"
	"time"

	"github.com/123123eeqweq/omocrm/domain"
	"github.com/123123eeqweq/omocrm/session"
)

// Boards abstracts board persistence for handlers.
type Boards interface {
	Get(ctx context.Context, projectID string) (domain.Document, error)
	Upsert(ctx context.Context, projectID string, doc domain.Document) (domain.Document, error)
	Ping(ctx context.Context) error
}

// Sessions issues and resolves login sessions carried by the session cookie.
type Sessions interface {
	Start(ctx context.Context, user string) (string, session.Record, error)
	Resolve(ctx context.Context, token string) (session.Record, error)
	End(ctx context.Context, token string) error
	TTL() time.Duration
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	OK   bool   `json:"ok"`
	User string `json:"user"`
}

type meResponse struct {
	User string `json:"user"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// boardPayload is both the PUT body and the board response. Collections stay
// raw so unknown card and step properties are stored verbatim.
type boardPayload = domain.Document
