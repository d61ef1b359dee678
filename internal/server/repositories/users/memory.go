package users

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/tokengate/internal/common"
	"github.com/dmitrijs2005/tokengate/internal/server/models"
)

// MemoryRepository keeps users in process memory. It backs the directory when
// no database is configured and in tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]models.User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[int64]models.User)}
}

// Create stores user. A zero ID is assigned the next free one.
func (r *MemoryRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.Username == user.Username || (user.Email != "" && strings.EqualFold(u.Email, user.Email)) {
			return nil, fmt.Errorf("db error: user %q already exists", user.Username)
		}
	}

	if _, taken := r.byID[user.ID]; taken && user.ID != 0 {
		return nil, fmt.Errorf("db error: user id %d already exists", user.ID)
	}

	if user.ID == 0 {
		r.nextID++
		user.ID = r.nextID
	} else if user.ID > r.nextID {
		r.nextID = user.ID
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	r.byID[user.ID] = clone(*user)
	return user, nil
}

func (r *MemoryRepository) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var byEmail *models.User
	for _, u := range r.byID {
		if u.Username == login {
			c := clone(u)
			return &c, nil
		}
		if byEmail == nil && strings.EqualFold(u.Email, login) {
			c := clone(u)
			byEmail = &c
		}
	}
	if byEmail != nil {
		return byEmail, nil
	}
	return nil, common.ErrNotFound
}

func (r *MemoryRepository) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	c := clone(u)
	return &c, nil
}

func clone(u models.User) models.User {
	u.Roles = append([]string{}, u.Roles...)
	return u
}
