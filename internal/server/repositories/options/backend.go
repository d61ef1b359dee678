package options

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/tokengate/internal/common"
	"github.com/dmitrijs2005/tokengate/internal/dbx"
	"github.com/dmitrijs2005/tokengate/internal/server/secrets"
)

// SecretBackend stores secrets as option rows, the way the plugin kept its
// key in wp_options.
type SecretBackend struct {
	db      *sql.DB
	newRepo func(dbx.DBTX) Repository
}

func NewSecretBackend(db *sql.DB) *SecretBackend {
	return &SecretBackend{
		db:      db,
		newRepo: func(tx dbx.DBTX) Repository { return NewPostgresRepository(tx) },
	}
}

func (b *SecretBackend) Read(ctx context.Context, key string) ([]byte, error) {
	v, err := b.newRepo(b.db).Get(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, secrets.ErrAbsent
		}
		return nil, err
	}
	if v == "" {
		return nil, secrets.ErrAbsent
	}
	return []byte(v), nil
}

func (b *SecretBackend) Write(ctx context.Context, key string, value []byte) error {
	return b.newRepo(b.db).Upsert(ctx, key, string(value))
}

// CreateIfAbsent inserts value unless a non-empty one is already stored and
// returns whichever value the table holds afterwards.
func (b *SecretBackend) CreateIfAbsent(ctx context.Context, key string, value []byte) ([]byte, error) {
	var stored string
	err := dbx.WithTx(ctx, b.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := b.newRepo(tx)

		inserted, err := repo.InsertIfEmpty(ctx, key, string(value))
		if err != nil {
			return err
		}
		if inserted {
			stored = string(value)
			return nil
		}

		stored, err = repo.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return []byte(stored), nil
}
