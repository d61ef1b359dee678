package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/tokengate/internal/dbx"
	"github.com/dmitrijs2005/tokengate/internal/server/repositories/options"
	"github.com/dmitrijs2005/tokengate/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Options(db dbx.DBTX) options.Repository
}
