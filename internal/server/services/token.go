// Package services contains server-side business logic. This file implements
// TokenService, which issues tokens on login and turns presented tokens back
// into identities.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/tokengate/internal/common"
	"github.com/dmitrijs2005/tokengate/internal/logging"
	"github.com/dmitrijs2005/tokengate/internal/server/models"
	"github.com/dmitrijs2005/tokengate/internal/server/secrets"
	"github.com/dmitrijs2005/tokengate/internal/server/token"
)

// DefaultTokenTTL is how long an issued token stays valid unless configured.
const DefaultTokenTTL = 24 * time.Hour

// Authenticator checks a username (or email) and password pair.
// Any credential failure must be common.ErrInvalidCredentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*models.Identity, error)
}

// UserDirectory resolves a token subject. It returns common.ErrNotFound
// when the user no longer exists.
type UserDirectory interface {
	Resolve(ctx context.Context, id int64) (*models.Identity, error)
}

// SecretProvider hands out the active signing secret.
type SecretProvider interface {
	Get(ctx context.Context) (secrets.Secret, error)
}

// LoginResult is what a successful login returns to the client.
type LoginResult struct {
	Token string
	User  *models.PublicUser
}

type TokenService struct {
	secrets SecretProvider
	authn   Authenticator
	dir     UserDirectory
	ttl     time.Duration
	now     func() time.Time
	logger  logging.Logger
}

// NewTokenService builds the single TokenService of the process. A
// non-positive ttl falls back to DefaultTokenTTL.
func NewTokenService(secrets SecretProvider, authn Authenticator, dir UserDirectory, ttl time.Duration, logger logging.Logger) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		secrets: secrets,
		authn:   authn,
		dir:     dir,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger.With("module", "tokens"),
	}
}

// TTL is the validity period stamped into issued tokens.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Login authenticates the caller and issues a token for them.
func (s *TokenService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	identity, err := s.authn.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, common.ErrStoreUnavailable) {
			s.logger.Error(ctx, "login failed", "error", err)
			return nil, err
		}
		s.logger.Warn(ctx, "login rejected", "username", username)
		return nil, common.ErrInvalidCredentials
	}

	secret, err := s.secrets.Get(ctx)
	if err != nil {
		s.logger.Error(ctx, "secret unavailable", "error", err)
		return nil, err
	}

	raw, err := token.Encode(token.Payload{
		UserID: identity.ID,
		Exp:    s.now().Add(s.ttl).Unix(),
	}, secret)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info(ctx, "token issued", "user_id", identity.ID)
	return &LoginResult{Token: raw, User: identity.Public()}, nil
}

// Validate verifies raw, which may carry a "Bearer " prefix, and returns the
// user it was issued to. A token is still valid in the second named by exp.
func (s *TokenService) Validate(ctx context.Context, raw string) (*models.PublicUser, error) {
	identity, err := s.Authorize(ctx, raw)
	if err != nil {
		return nil, err
	}
	return identity.Public(), nil
}

// Authorize is Validate returning the full identity, for callers that need
// to make role decisions.
func (s *TokenService) Authorize(ctx context.Context, raw string) (*models.Identity, error) {
	tok, err := StripBearer(raw)
	if err != nil {
		return nil, err
	}

	secret, err := s.secrets.Get(ctx)
	if err != nil {
		s.logger.Error(ctx, "secret unavailable", "error", err)
		return nil, err
	}

	payload, err := token.DecodeAndVerify(tok, secret)
	if err != nil {
		s.logger.Info(ctx, "token rejected", "error", err)
		return nil, err
	}

	if s.now().Unix() > payload.Exp {
		s.logger.Info(ctx, "token rejected", "error", common.ErrTokenExpired, "user_id", payload.UserID)
		return nil, common.ErrTokenExpired
	}

	identity, err := s.dir.Resolve(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.logger.Info(ctx, "token subject unknown", "user_id", payload.UserID)
			return nil, common.ErrUserNotFound
		}
		if !errors.Is(err, common.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: resolve user: %v", common.ErrStoreUnavailable, err)
		}
		s.logger.Error(ctx, "user directory unavailable", "error", err)
		return nil, err
	}

	return identity, nil
}

// StripBearer removes an optional case-insensitive "Bearer" scheme and the
// surrounding spaces. An empty result is common.ErrMissingToken.
func StripBearer(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > len(common.BearerScheme) && strings.EqualFold(raw[:len(common.BearerScheme)], common.BearerScheme) {
		if rest := raw[len(common.BearerScheme):]; rest[0] == ' ' || rest[0] == '\t' {
			raw = strings.TrimSpace(rest)
		}
	} else if strings.EqualFold(raw, common.BearerScheme) {
		raw = ""
	}
	if raw == "" {
		return "", common.ErrMissingToken
	}
	return raw, nil
}
