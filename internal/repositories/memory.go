package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/shared"
)

type tokenKey struct {
	userID   string
	provider models.Provider
}

// MemoryCredentialStore keeps credentials for the lifetime of the process.
//
// It is not shared across instances, so it suits single-instance deployments and tests.
type MemoryCredentialStore struct {
	mu     sync.Mutex
	states map[string]models.CorrelationState
	tokens map[tokenKey]models.TokenRecord
}

// NewMemoryCredentialStore creates an empty [MemoryCredentialStore]
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		states: make(map[string]models.CorrelationState),
		tokens: make(map[tokenKey]models.TokenRecord),
	}
}

func (s *MemoryCredentialStore) PutState(_ context.Context, state models.CorrelationState) error {
	if state.Token == "" {
		return fmt.Errorf("%w: state token is required", shared.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Token] = state
	return nil
}

func (s *MemoryCredentialStore) TakeState(_ context.Context, token string) (*models.CorrelationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[token]
	if !ok {
		return nil, nil
	}
	delete(s.states, token)
	return &state, nil
}

func (s *MemoryCredentialStore) PutTokens(_ context.Context, userID string, provider models.Provider, record models.TokenRecord) error {
	if err := validateKey(userID, provider); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tokenKey{userID, provider}] = record
	return nil
}

func (s *MemoryCredentialStore) GetTokens(_ context.Context, userID string, provider models.Provider) (*models.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[tokenKey{userID, provider}]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *MemoryCredentialStore) PurgeExpiredStates(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, state := range s.states {
		if state.CreatedAt.Before(before) {
			delete(s.states, token)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryCredentialStore) Close() error { return nil }
