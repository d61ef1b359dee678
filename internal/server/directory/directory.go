// Package directory authenticates users against the users repository and
// resolves token subjects back to identities.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/tokengate/internal/common"
	"github.com/dmitrijs2005/tokengate/internal/server/models"
	"github.com/dmitrijs2005/tokengate/internal/server/repositories/users"
	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt work factor used for new hashes.
var Cost = bcrypt.DefaultCost

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// dummy returns a hash compared against when the login is unknown, so an
// unknown user costs as much as a wrong password.
func dummy() []byte {
	dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("tokengate-dummy-password"), Cost)
		if err != nil {
			panic(err)
		}
		dummyHash = h
	})
	return dummyHash
}

// Directory implements services.Authenticator and services.UserDirectory.
type Directory struct {
	repo users.Repository
}

func New(repo users.Repository) *Directory {
	return &Directory{repo: repo}
}

// Authenticate accepts a username or email address. Every credential failure
// is reported as common.ErrInvalidCredentials.
func (d *Directory) Authenticate(ctx context.Context, login, password string) (*models.Identity, error) {
	if login == "" || password == "" {
		return nil, common.ErrInvalidCredentials
	}

	user, err := d.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummy(), []byte(password))
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: lookup user: %v", common.ErrStoreUnavailable, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, common.ErrInvalidCredentials
	}

	identity := user.Identity
	return &identity, nil
}

// Resolve returns common.ErrNotFound when no user has id.
func (d *Directory) Resolve(ctx context.Context, id int64) (*models.Identity, error) {
	user, err := d.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("%w: lookup user: %v", common.ErrStoreUnavailable, err)
	}

	identity := user.Identity
	return &identity, nil
}

// HashPassword returns a bcrypt hash suitable for the users table.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
