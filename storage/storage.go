package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/123123eeqweq/omocrm/domain"
)

// Repository reads and replaces board documents keyed by project id.
type Repository interface {
	// Get returns the stored document, or empty collections when the project
	// was never written.
	Get(ctx context.Context, projectID string) (domain.Document, error)
	// Upsert replaces both collections of the project's document and returns
	// the stored state.
	Upsert(ctx context.Context, projectID string, doc domain.Document) (domain.Document, error)
	Ping(ctx context.Context) error
	Close() error
}

// ErrOperationFailed marks every storage-layer fault. Callers map it to a
// transport-level error.
var ErrOperationFailed = errors.New("storage operation failed")

// ErrDocumentTooLarge is returned when a board exceeds what the backend can
// hold in one record.
var ErrDocumentTooLarge = errors.New("board document too large")

func failed(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrOperationFailed, err)
}

// Backend names a Repository implementation.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
	BackendAzure    Backend = "azure"
)

// Options selects and configures a backend.
type Options struct {
	Backend          Backend
	DatabaseURL      string
	ConnectionString string
	Table            string
}

// Open connects to the configured backend and prepares its schema.
func Open(ctx context.Context, opts Options) (Repository, error) {
	switch opts.Backend {
	case BackendPostgres, BackendSQLite:
		return OpenSQL(ctx, opts.Backend, opts.DatabaseURL)
	case BackendAzure:
		store, err := NewAzure(opts.ConnectionString, opts.Table)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureTable(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
