package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tokengate/internal/logging"
	"github.com/dmitrijs2005/tokengate/internal/server/config"
	"github.com/dmitrijs2005/tokengate/internal/server/repositories/options"
	"github.com/dmitrijs2005/tokengate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokengate/internal/server/repositories/users"
	"github.com/dmitrijs2005/tokengate/internal/server/secrets"
	"github.com/redis/go-redis/v9"
)

// Key prefixes namespace the secret in shared Redis databases and buckets.
const (
	redisPrefix  = "tokengate:"
	objectPrefix = "tokengate/"
)

// Seams for tests.
var (
	openDB         = repomanager.Open
	newS3Client    = func(ctx context.Context, o secrets.S3Options) (secrets.ObjectAPI, error) { return secrets.NewS3Client(ctx, o) }
	newRepoManager = repomanager.NewPostgresRepositoryManager
)

// Resources are the stateful dependencies shared by the server and the admin
// tool: the database, the secret store and the user repository.
type Resources struct {
	DB      *sql.DB
	Secrets *secrets.Store
	Users   users.Repository

	closers []func() error
}

// OpenResources connects to whatever cfg names. A configured database that
// cannot be reached is an error; users are kept in memory only when no dsn
// is set. When migrate is set the embedded schema migrations are applied
// before anything reads the database.
func OpenResources(ctx context.Context, cfg *config.Config, logger logging.Logger, migrate bool) (*Resources, error) {
	r := &Resources{}

	if cfg.DatabaseDSN != "" {
		db, err := openDB(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		r.DB = db
		r.closers = append(r.closers, db.Close)

		if migrate {
			if err := newRepoManager().RunMigrations(ctx, db); err != nil {
				_ = r.Close()
				return nil, fmt.Errorf("migrations failed: %w", err)
			}
		}
		r.Users = newRepoManager().Users(db)
	} else {
		logger.Warn(ctx, "no database configured, users are kept in memory")
		r.Users = users.NewMemoryRepository()
	}

	backend, err := r.secretBackend(ctx, cfg)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	r.Secrets = secrets.NewStore(backend, cfg.SecretKeyName, logger)

	return r, nil
}

func (r *Resources) secretBackend(ctx context.Context, cfg *config.Config) (secrets.Backend, error) {
	switch cfg.SecretBackend {
	case config.BackendMemory:
		return secrets.NewMemoryBackend(), nil

	case config.BackendPostgres:
		if r.DB == nil {
			return nil, errors.New("postgres secret backend needs a database")
		}
		return options.NewSecretBackend(r.DB), nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		r.closers = append(r.closers, client.Close)
		return secrets.NewRedisBackend(client, redisPrefix), nil

	case config.BackendS3:
		api, err := newS3Client(ctx, secrets.S3Options{
			AccessKey:    cfg.S3RootUser,
			SecretKey:    cfg.S3RootPassword,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
		if err != nil {
			return nil, err
		}
		return secrets.NewS3Backend(api, cfg.S3Bucket, objectPrefix), nil

	default:
		return nil, fmt.Errorf("unknown secret backend %q", cfg.SecretBackend)
	}
}

// Close releases connections in reverse order of opening.
func (r *Resources) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	r.closers = nil
	return errors.Join(errs...)
}
