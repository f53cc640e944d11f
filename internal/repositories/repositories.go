// package repositories provides persistence for OAuth correlation state and provider credentials.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/shared"
)

// CredentialStore is the only owner of [models.TokenRecord] and [models.CorrelationState] lifetimes.
//
// Implementations must be safe for concurrent use.
type CredentialStore interface {
	// PutState records a correlation state, overwriting any state with the same token.
	PutState(ctx context.Context, state models.CorrelationState) error
	// TakeState atomically reads and deletes a correlation state.
	// It returns nil without error when the token is unknown or was already taken.
	TakeState(ctx context.Context, token string) (*models.CorrelationState, error)
	// PutTokens upserts the full record for (userID, provider).
	PutTokens(ctx context.Context, userID string, provider models.Provider, record models.TokenRecord) error
	// GetTokens returns nil without error when no record exists.
	GetTokens(ctx context.Context, userID string, provider models.Provider) (*models.TokenRecord, error)
	// PurgeExpiredStates deletes states created before the cutoff and reports how many were removed.
	PurgeExpiredStates(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// Open creates the [CredentialStore] selected by cfg.Backend.
//
// The sqlite backend opens the database file and applies pending migrations.
func Open(cfg shared.DatabaseConfig) (CredentialStore, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryCredentialStore(), nil
	case "sqlite", "":
		db, err := shared.NewDatabase(cfg.Path)
		if err != nil {
			return nil, err
		}
		if cfg.MaxOpenConns > 0 && cfg.Path != ":memory:" {
			shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)
		}
		if err := shared.RunMigrations(db); err != nil {
			db.Close()
			return nil, err
		}
		return NewSQLiteCredentialStore(db), nil
	default:
		return nil, fmt.Errorf("%w: unknown database backend %q", shared.ErrInvalidConfig, cfg.Backend)
	}
}

func validateKey(userID string, provider models.Provider) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", shared.ErrInvalidInput)
	}
	if provider == "" {
		return fmt.Errorf("%w: provider is required", shared.ErrInvalidInput)
	}
	return nil
}
