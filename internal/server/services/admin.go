package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tokengate/internal/common"
	"github.com/dmitrijs2005/tokengate/internal/logging"
	"github.com/dmitrijs2005/tokengate/internal/server/models"
	"github.com/dmitrijs2005/tokengate/internal/server/secrets"
)

const (
	// DefaultAdminRole is the WordPress role holding manage_options.
	DefaultAdminRole = "administrator"

	rotateAction = "regenerate_secret"
)

// SecretManager is the part of secrets.Store the admin surface needs.
type SecretManager interface {
	Get(ctx context.Context) (secrets.Secret, error)
	Rotate(ctx context.Context) (secrets.Secret, error)
}

// SecretInfo is shown to an administrator so the secret can be copied into
// the mobile application.
type SecretInfo struct {
	SecretKey string
	AppConfig string
}

// AdminService guards reading and rotating the signing secret.
type AdminService struct {
	secrets SecretManager
	nonces  *Nonces
	role    string
	baseURL string
	logger  logging.Logger
}

func NewAdminService(secrets SecretManager, nonces *Nonces, role, baseURL string, logger logging.Logger) *AdminService {
	if role == "" {
		role = DefaultAdminRole
	}
	return &AdminService{
		secrets: secrets,
		nonces:  nonces,
		role:    role,
		baseURL: baseURL,
		logger:  logger.With("module", "admin"),
	}
}

func (s *AdminService) authorize(ctx context.Context, user *models.Identity) error {
	if user == nil || !user.HasRole(s.role) {
		id := int64(0)
		if user != nil {
			id = user.ID
		}
		s.logger.Warn(ctx, "admin action denied", "user_id", id)
		return common.ErrPermissionDenied
	}
	return nil
}

// Nonce issues the anti-forgery token the rotate request must echo back.
func (s *AdminService) Nonce(ctx context.Context, user *models.Identity) (string, error) {
	if err := s.authorize(ctx, user); err != nil {
		return "", err
	}
	return s.nonces.Issue(rotateAction, user.ID)
}

// Current returns the active secret, creating one if none exists yet.
func (s *AdminService) Current(ctx context.Context, user *models.Identity) (*SecretInfo, error) {
	if err := s.authorize(ctx, user); err != nil {
		return nil, err
	}
	secret, err := s.secrets.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.info(secret), nil
}

// Rotate replaces the secret. The caller must hold the admin role, present a
// nonce issued to them and confirm explicitly.
func (s *AdminService) Rotate(ctx context.Context, user *models.Identity, nonce string, confirm bool) (*SecretInfo, error) {
	if err := s.authorize(ctx, user); err != nil {
		return nil, err
	}
	if !s.nonces.Verify(rotateAction, user.ID, nonce) {
		s.logger.Warn(ctx, "rotate rejected, bad nonce", "user_id", user.ID)
		return nil, common.ErrInvalidNonce
	}
	if !confirm {
		return nil, common.ErrConfirmationRequired
	}

	secret, err := s.secrets.Rotate(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "secret rotated by administrator", "user_id", user.ID)
	return s.info(secret), nil
}

func (s *AdminService) info(secret secrets.Secret) *SecretInfo {
	return &SecretInfo{SecretKey: string(secret), AppConfig: AppConfig(secret, s.baseURL)}
}

// AppConfig renders the .env lines the mobile application reads.
func AppConfig(secret secrets.Secret, baseURL string) string {
	return fmt.Sprintf("JWT_SECRET=%s\nJWT_BASE_URL=%s%s\n",
		secret, strings.TrimRight(baseURL, "/"), common.APINamespace)
}
