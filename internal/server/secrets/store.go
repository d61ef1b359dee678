// Package secrets owns the single signing secret: it creates it on first
// use, hands out read-only copies and replaces it on rotation.
package secrets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/tokengate/internal/common"
	"github.com/dmitrijs2005/tokengate/internal/logging"
)

const (
	// MinLength and MaxLength bound an acceptable persisted secret.
	MinLength = 32
	MaxLength = 64

	// entropyBytes of randomness are hex encoded into a MaxLength secret.
	entropyBytes = MaxLength / 2
)

// Secret is the HMAC key. It is the ASCII hex string the administrator
// copies into the mobile client, used verbatim as key bytes.
type Secret []byte

// Generate returns a fresh secret from crypto/rand.
func Generate() (Secret, error) {
	s, err := common.MakeRandHexString(entropyBytes)
	if err != nil {
		return nil, err
	}
	return Secret(s), nil
}

// Store manages the active secret kept in a Backend under one key.
//
// Reads go straight to the backend and never wait on each other. Creation
// on absence and rotation are serialized by mu, so two first-time callers
// in this process cannot persist different secrets; backends implementing
// Initializer extend that guarantee across processes.
type Store struct {
	backend  Backend
	key      string
	logger   logging.Logger
	generate func() (Secret, error)

	mu sync.Mutex
}

func NewStore(backend Backend, key string, logger logging.Logger) *Store {
	return &Store{
		backend:  backend,
		key:      key,
		logger:   logger.With("module", "secrets"),
		generate: Generate,
	}
}

// Get returns the current secret, creating and persisting one if none exists.
// Backend failures are reported as common.ErrStoreUnavailable.
func (s *Store) Get(ctx context.Context) (Secret, error) {
	secret, err := s.read(ctx)
	if !errors.Is(err, ErrAbsent) {
		return secret, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	secret, err = s.read(ctx)
	if !errors.Is(err, ErrAbsent) {
		return secret, err
	}

	fresh, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("%w: generate secret: %v", common.ErrStoreUnavailable, err)
	}

	init, ok := s.backend.(Initializer)
	if !ok {
		if err := s.backend.Write(ctx, s.key, fresh); err != nil {
			return nil, fmt.Errorf("%w: write secret: %v", common.ErrStoreUnavailable, err)
		}
		s.logger.Info(ctx, "secret generated", "key", s.key)
		return fresh, nil
	}

	stored, err := init.CreateIfAbsent(ctx, s.key, fresh)
	if err != nil {
		return nil, fmt.Errorf("%w: create secret: %v", common.ErrStoreUnavailable, err)
	}
	if err := validate(stored); err != nil {
		return nil, err
	}
	if bytes.Equal(stored, fresh) {
		s.logger.Info(ctx, "secret generated", "key", s.key)
	}
	return Secret(stored), nil
}

// Rotate replaces the secret with a new random one and returns it. Tokens
// signed with the previous secret stop verifying immediately.
func (s *Store) Rotate(ctx context.Context) (Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("%w: generate secret: %v", common.ErrStoreUnavailable, err)
	}
	if err := s.backend.Write(ctx, s.key, fresh); err != nil {
		return nil, fmt.Errorf("%w: write secret: %v", common.ErrStoreUnavailable, err)
	}

	s.logger.Warn(ctx, "secret rotated, previously issued tokens are now invalid", "key", s.key)
	return fresh, nil
}

// Ping reports whether the backend answers. An absent secret is healthy.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.read(ctx)
	if err != nil && !errors.Is(err, ErrAbsent) {
		return err
	}
	return nil
}

func (s *Store) read(ctx context.Context) (Secret, error) {
	value, err := s.backend.Read(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrAbsent) {
			return nil, ErrAbsent
		}
		return nil, fmt.Errorf("%w: read secret: %v", common.ErrStoreUnavailable, err)
	}
	if len(value) == 0 {
		return nil, ErrAbsent
	}
	if err := validate(value); err != nil {
		return nil, err
	}
	return Secret(value), nil
}

func validate(value []byte) error {
	if len(value) < MinLength || len(value) > MaxLength {
		return fmt.Errorf("%w: persisted secret has invalid length %d", common.ErrStoreUnavailable, len(value))
	}
	return nil
}
