package admin

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/tokengate/internal/common"
	"github.com/dmitrijs2005/tokengate/internal/logging"
	"github.com/dmitrijs2005/tokengate/internal/server"
	"github.com/dmitrijs2005/tokengate/internal/server/config"
	"github.com/dmitrijs2005/tokengate/internal/server/directory"
	"github.com/dmitrijs2005/tokengate/internal/server/repositories/users"
	"github.com/dmitrijs2005/tokengate/internal/server/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	directory.Cost = bcrypt.MinCost
}

type harness struct {
	app     *App
	out     *bytes.Buffer
	backend *secrets.MemoryBackend
	users   *users.MemoryRepository
	db      *sql.DB
	migrate []bool
}

func newHarness(t *testing.T, stdin string, terminal bool) *harness {
	t.Helper()

	origTerm := isTerminal
	isTerminal = func() bool { return terminal }
	t.Cleanup(func() { isTerminal = origTerm })

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.PublicBaseURL = "https://shop.example.com"

	h := &harness{
		out:     &bytes.Buffer{},
		backend: secrets.NewMemoryBackend(),
		users:   users.NewMemoryRepository(),
	}
	h.app = NewApp(cfg, strings.NewReader(stdin), h.out, logging.Nop())
	h.app.open = func(_ context.Context, cfg *config.Config, logger logging.Logger, migrate bool) (*server.Resources, error) {
		h.migrate = append(h.migrate, migrate)
		return &server.Resources{
			DB:      h.db,
			Secrets: secrets.NewStore(h.backend, cfg.SecretKeyName, logger),
			Users:   h.users,
		}, nil
	}
	return h
}

func (h *harness) stored(t *testing.T) string {
	t.Helper()
	v, err := h.backend.Read(context.Background(), "woo_jwt_auth_secret")
	require.NoError(t, err)
	return string(v)
}

func TestShow(t *testing.T) {
	h := newHarness(t, "", false)

	require.NoError(t, h.app.Run(context.Background(), []string{"show"}))

	secret := h.stored(t)
	assert.Contains(t, h.out.String(), "Secret key:\n"+secret+"\n")
	assert.Contains(t, h.out.String(), "JWT_SECRET="+secret+"\nJWT_BASE_URL=https://shop.example.com/wp-json/woo-jwt-auth/v1\n")
	assert.Equal(t, []bool{false}, h.migrate)
}

func TestRotate_WithYesFlag(t *testing.T) {
	h := newHarness(t, "", false)
	require.NoError(t, h.app.Run(context.Background(), []string{"show"}))
	before := h.stored(t)

	require.NoError(t, h.app.Run(context.Background(), []string{"rotate", "-yes"}))

	after := h.stored(t)
	assert.NotEqual(t, before, after)
	assert.Contains(t, h.out.String(), "JWT_SECRET="+after)
}

func TestRotate_RefusedWithoutTerminal(t *testing.T) {
	h := newHarness(t, "yes\n", false)

	err := h.app.Run(context.Background(), []string{"rotate"})
	assert.ErrorIs(t, err, common.ErrConfirmationRequired)
	assert.Empty(t, h.migrate, "nothing may be opened before confirmation")
}

func TestRotate_TerminalConfirmation(t *testing.T) {
	h := newHarness(t, "yes\n", true)
	require.NoError(t, h.app.Run(context.Background(), []string{"rotate"}))
	assert.Contains(t, h.out.String(), "Type yes to continue")
	assert.Len(t, h.stored(t), secrets.MaxLength)

	h = newHarness(t, "no\n", true)
	err := h.app.Run(context.Background(), []string{"rotate"})
	assert.ErrorIs(t, err, common.ErrConfirmationRequired)
	_, err = h.backend.Read(context.Background(), "woo_jwt_auth_secret")
	assert.ErrorIs(t, err, secrets.ErrAbsent)
}

func TestHashPassword_FromPipe(t *testing.T) {
	h := newHarness(t, "hunter2\n", false)

	require.NoError(t, h.app.Run(context.Background(), []string{"hash-password"}))

	hash := strings.TrimSpace(h.out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")))
}

func TestHashPassword_FromTerminal(t *testing.T) {
	h := newHarness(t, "", true)

	orig := readPassword
	readPassword = func(int) ([]byte, error) { return []byte("from-tty"), nil }
	t.Cleanup(func() { readPassword = orig })

	require.NoError(t, h.app.Run(context.Background(), []string{"hash-password"}))

	lines := strings.Split(strings.TrimSpace(h.out.String()), "\n")
	hash := lines[len(lines)-1]
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("from-tty")))
}

func TestHashPassword_Empty(t *testing.T) {
	h := newHarness(t, "\n", false)
	assert.Error(t, h.app.Run(context.Background(), []string{"hash-password"}))
}

func withDatabase(t *testing.T, h *harness) {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	h.db = db
}

func TestCreateUser(t *testing.T) {
	h := newHarness(t, "s3cret\n", false)
	withDatabase(t, h)

	err := h.app.Run(context.Background(), []string{
		"create-user", "-username", "alice", "-email", "a@example.com", "-roles", "customer, subscriber", "-backend", "memory",
	})
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "Created user 1 (alice)")

	id, err := directory.New(h.users).Authenticate(context.Background(), "a@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.DisplayName)
	assert.Equal(t, []string{"customer", "subscriber"}, id.Roles)
}

func TestCreateUser_RefusedWithoutDatabase(t *testing.T) {
	h := newHarness(t, "pw\n", false)

	err := h.app.Run(context.Background(), []string{"create-user", "-username", "bob", "-email", "b@example.com"})
	assert.ErrorIs(t, err, errDatabaseUnavailable)
	assert.NotContains(t, h.out.String(), "Created user")

	_, err = h.users.GetUserByLogin(context.Background(), "bob")
	assert.ErrorIs(t, err, common.ErrNotFound)

	h = newHarness(t, "pw\n", false)
	h.app.config.DatabaseDSN = ""
	err = h.app.Run(context.Background(), []string{"create-user", "-username", "bob", "-email", "b@example.com"})
	assert.ErrorIs(t, err, errUsage)
	assert.Empty(t, h.migrate, "nothing is opened without a dsn")
}

func TestCreateUser_RequiresNames(t *testing.T) {
	h := newHarness(t, "s3cret\n", false)
	err := h.app.Run(context.Background(), []string{"create-user", "-username", "alice"})
	assert.ErrorIs(t, err, errUsage)
}

func TestMigrate(t *testing.T) {
	h := newHarness(t, "", false)
	err := h.app.Run(context.Background(), []string{"migrate"})
	require.Error(t, err, "the harness opens no database")
	assert.Equal(t, []bool{true}, h.migrate)

	h.app.config.DatabaseDSN = ""
	err = h.app.Run(context.Background(), []string{"migrate"})
	assert.ErrorIs(t, err, errUsage)
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t, "", false)

	err := h.app.Run(context.Background(), []string{"explode"})
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, h.out.String(), "usage: tokengate-admin")

	assert.ErrorIs(t, h.app.Run(context.Background(), nil), errUsage)
	assert.NoError(t, h.app.Run(context.Background(), []string{"help"}))
}

func TestOpenFailureIsReported(t *testing.T) {
	h := newHarness(t, "", false)
	h.app.open = func(context.Context, *config.Config, logging.Logger, bool) (*server.Resources, error) {
		return nil, errors.New("db init error: refused")
	}
	err := h.app.Run(context.Background(), []string{"show"})
	assert.ErrorContains(t, err, "refused")
}
