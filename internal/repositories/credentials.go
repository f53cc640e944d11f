package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/shared"
)

// SQLiteCredentialStore persists correlation states and provider tokens in SQLite.
//
// Timestamps are stored as unix seconds.
type SQLiteCredentialStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteCredentialStore creates a new [SQLiteCredentialStore] with the given database connection.
// Migrations must already be applied.
func NewSQLiteCredentialStore(db *sql.DB) *SQLiteCredentialStore {
	return &SQLiteCredentialStore{db: db, now: time.Now}
}

// PutState inserts a correlation state; a colliding token is overwritten.
func (s *SQLiteCredentialStore) PutState(ctx context.Context, state models.CorrelationState) error {
	if state.Token == "" {
		return fmt.Errorf("%w: state token is required", shared.ErrInvalidInput)
	}

	query := `
		INSERT INTO oauth_correlation_state (token, user_id, provider, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			user_id = excluded.user_id,
			provider = excluded.provider,
			created_at = excluded.created_at
	`

	_, err := s.db.ExecContext(ctx, query, state.Token, state.UserID, string(state.Provider), state.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert correlation state: %w", err)
	}
	return nil
}

// TakeState deletes the state row and returns it in a single write transaction,
// so concurrent callers racing on one token see it at most once.
func (s *SQLiteCredentialStore) TakeState(ctx context.Context, token string) (*models.CorrelationState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		DELETE FROM oauth_correlation_state
		WHERE token = ?
		RETURNING user_id, provider, created_at
	`

	var (
		userID    string
		provider  string
		createdAt int64
	)

	err = tx.QueryRowContext(ctx, query, token).Scan(&userID, &provider, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take correlation state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit state transaction: %w", err)
	}

	return &models.CorrelationState{
		Token:     token,
		UserID:    userID,
		Provider:  models.Provider(provider),
		CreatedAt: time.Unix(createdAt, 0),
	}, nil
}

// PutTokens upserts the record keyed by (user_id, provider).
func (s *SQLiteCredentialStore) PutTokens(ctx context.Context, userID string, provider models.Provider, record models.TokenRecord) error {
	if err := validateKey(userID, provider); err != nil {
		return err
	}

	query := `
		INSERT INTO provider_tokens (user_id, provider, access_token, refresh_token, scope, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			scope = excluded.scope,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		userID, string(provider), record.AccessToken, record.RefreshToken, record.Scope,
		record.ExpiresAt.Unix(), s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert provider tokens: %w", err)
	}
	return nil
}

// GetTokens retrieves the record for (user_id, provider).
func (s *SQLiteCredentialStore) GetTokens(ctx context.Context, userID string, provider models.Provider) (*models.TokenRecord, error) {
	query := `
		SELECT access_token, refresh_token, scope, expires_at
		FROM provider_tokens
		WHERE user_id = ? AND provider = ?
	`

	var (
		record    models.TokenRecord
		expiresAt int64
	)

	err := s.db.QueryRowContext(ctx, query, userID, string(provider)).
		Scan(&record.AccessToken, &record.RefreshToken, &record.Scope, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query provider tokens: %w", err)
	}

	record.ExpiresAt = time.Unix(expiresAt, 0)
	return &record, nil
}

// PurgeExpiredStates removes states created before the cutoff.
func (s *SQLiteCredentialStore) PurgeExpiredStates(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM oauth_correlation_state WHERE created_at < ?", before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge correlation states: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(rows), nil
}

// Close closes the underlying database.
func (s *SQLiteCredentialStore) Close() error {
	return s.db.Close()
}
