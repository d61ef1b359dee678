package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/tokengate/internal/common"
	"github.com/dmitrijs2005/tokengate/internal/logging"
	"github.com/dmitrijs2005/tokengate/internal/server/directory"
	"github.com/dmitrijs2005/tokengate/internal/server/models"
	"github.com/dmitrijs2005/tokengate/internal/server/repositories/users"
	"github.com/dmitrijs2005/tokengate/internal/server/secrets"
	"github.com/dmitrijs2005/tokengate/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- helpers ---

func init() {
	directory.Cost = bcrypt.MinCost
}

type fixture struct {
	handler http.Handler
	store   *secrets.Store
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	repo := users.NewMemoryRepository()
	seed := func(id int64, username, email, password string, roles ...string) {
		hash, err := directory.HashPassword(password)
		require.NoError(t, err)
		_, err = repo.Create(ctx, &models.User{
			Identity:     models.Identity{ID: id, Username: username, Email: email, DisplayName: strings.ToUpper(username[:1]) + username[1:], Roles: roles},
			PasswordHash: hash,
		})
		require.NoError(t, err)
	}
	seed(7, "alice", "a@example.com", "s3cret", "customer")
	seed(1, "admin", "admin@example.com", "adminpw", "administrator")

	store := secrets.NewStore(secrets.NewMemoryBackend(), "woo_jwt_auth_secret", logging.Nop())
	dir := directory.New(repo)
	tokens := services.NewTokenService(store, dir, dir, time.Hour, logging.Nop())
	admin := services.NewAdminService(store, services.NewNonces([]byte("test-nonce-key"), time.Hour), "", "https://shop.example.com", logging.Nop())

	srv := NewHTTPServer("127.0.0.1:0", logging.Nop(), tokens, admin, store)
	return &fixture{handler: srv.Handler(), store: store}
}

func (f *fixture) do(t *testing.T, method, path string, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (f *fixture) login(t *testing.T, username, password string) string {
	t.Helper()
	rec, out := f.do(t, http.MethodPost, "/auth/login", fmt.Sprintf(`{"username":%q,"password":%q}`, username, password), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return out["token"].(string)
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

// --- tests ---

func TestLoginValidate_EndToEnd(t *testing.T) {
	f := newFixture(t)

	rec, out := f.do(t, http.MethodPost, "/auth/login", `{"username":"alice","password":"s3cret"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, map[string]any{
		"id": float64(7), "email": "a@example.com", "display_name": "Alice", "roles": []any{"customer"},
	}, out["user"])

	tok := out["token"].(string)
	assert.Len(t, strings.Split(tok, "."), 3)

	rec, out = f.do(t, http.MethodGet, "/auth/validate", "", bearer(tok))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, float64(7), out["user"].(map[string]any)["id"])

	last := tok[len(tok)-1]
	swap := "A"
	if last == 'A' {
		swap = "Q"
	}
	rec, out = f.do(t, http.MethodGet, "/auth/validate", "", bearer(tok[:len(tok)-1]+swap))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_signature", out["error"])
	assert.Equal(t, false, out["success"])

	rec, out = f.do(t, http.MethodGet, "/auth/validate", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "no_auth_header", out["error"])

	rec, out = f.do(t, http.MethodGet, "/auth/validate", "", bearer("not-a-token"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", out["error"])
}

func TestLogin_Errors(t *testing.T) {
	f := newFixture(t)

	rec, out := f.do(t, http.MethodPost, "/auth/login", `{"username":"alice","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, map[string]any{"success": false, "error": "invalid_credentials", "message": "Invalid credentials"}, out)

	rec, out = f.do(t, http.MethodPost, "/auth/login", `{"username":"ghost","password":"s3cret"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", out["error"])

	rec, out = f.do(t, http.MethodPost, "/auth/login", `{"username":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", out["error"])

	rec, _ = f.do(t, http.MethodGet, "/auth/login", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLogin_FormEncoded(t *testing.T) {
	f := newFixture(t)

	form := url.Values{"username": {"a@example.com"}, "password": {"s3cret"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLegacyNamespace(t *testing.T) {
	f := newFixture(t)

	rec, out := f.do(t, http.MethodPost, "/wp-json/woo-jwt-auth/v1/login", `{"username":"alice","password":"s3cret"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/wp-json/woo-jwt-auth/v1/validate", "", bearer(out["token"].(string)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidate_UserDeleted(t *testing.T) {
	ctx := context.Background()
	store := secrets.NewStore(secrets.NewMemoryBackend(), "k", logging.Nop())

	hash, err := directory.HashPassword("x")
	require.NoError(t, err)
	repo := users.NewMemoryRepository()
	_, err = repo.Create(ctx, &models.User{Identity: models.Identity{ID: 42, Username: "gone"}, PasswordHash: hash})
	require.NoError(t, err)
	issuer := services.NewTokenService(store, directory.New(repo), directory.New(repo), time.Hour, logging.Nop())
	res, err := issuer.Login(ctx, "gone", "x")
	require.NoError(t, err)

	// Same secret, but a directory that no longer knows user 42.
	empty := directory.New(users.NewMemoryRepository())
	tokens := services.NewTokenService(store, empty, empty, time.Hour, logging.Nop())
	srv := NewHTTPServer("", logging.Nop(), tokens, nil, store)

	req := httptest.NewRequest(http.MethodGet, "/auth/validate", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_not_found"`)
}

func TestAdminSecret(t *testing.T) {
	f := newFixture(t)
	adminTok := f.login(t, "admin", "adminpw")
	userTok := f.login(t, "alice", "s3cret")

	rec, out := f.do(t, http.MethodGet, "/admin/secret", "", bearer(userTok))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "permission_denied", out["error"])

	rec, out = f.do(t, http.MethodGet, "/admin/secret", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "no_auth_header", out["error"])

	rec, out = f.do(t, http.MethodGet, "/admin/secret", "", bearer(adminTok))
	require.Equal(t, http.StatusOK, rec.Code)
	secret, err := f.store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, string(secret), out["secret_key"])
	assert.Equal(t, "JWT_SECRET="+string(secret)+"\nJWT_BASE_URL=https://shop.example.com/wp-json/woo-jwt-auth/v1\n", out["app_config"])
}

func TestAdminRotate(t *testing.T) {
	f := newFixture(t)
	adminTok := f.login(t, "admin", "adminpw")
	userTok := f.login(t, "alice", "s3cret")

	rec, out := f.do(t, http.MethodGet, "/admin/secret/nonce", "", bearer(userTok))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "permission_denied", out["error"])

	rec, out = f.do(t, http.MethodGet, "/admin/secret/nonce", "", bearer(adminTok))
	require.Equal(t, http.StatusOK, rec.Code)
	nonce := out["nonce"].(string)
	require.NotEmpty(t, nonce)

	headers := bearer(adminTok)
	rec, out = f.do(t, http.MethodPost, "/admin/secret/rotate", `{"confirm":true}`, headers)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "invalid_nonce", out["error"])

	headers[common.CSRFHeaderName] = nonce
	rec, out = f.do(t, http.MethodPost, "/admin/secret/rotate", `{}`, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "confirmation_required", out["error"])

	rec, out = f.do(t, http.MethodPost, "/admin/secret/rotate", `{"confirm":`, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", out["error"])

	rec, out = f.do(t, http.MethodPost, "/admin/secret/rotate", `{"confirm":true}`, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.Len(t, out["secret_key"], secrets.MaxLength)
	assert.Contains(t, out["app_config"], "JWT_SECRET="+out["secret_key"].(string))

	// Every token issued before the rotation is now rejected.
	rec, out = f.do(t, http.MethodGet, "/auth/validate", "", bearer(userTok))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_signature", out["error"])
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec, out := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])

	down := NewHTTPServer("", logging.Nop(), nil, nil, pingFunc(func(context.Context) error {
		return common.ErrStoreUnavailable
	}))
	rec = httptest.NewRecorder()
	down.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestID(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Len(t, rec.Header().Get(common.RequestIDHeaderName), 36)

	rec, _ = f.do(t, http.MethodGet, "/healthz", "", map[string]string{common.RequestIDHeaderName: "abc-123"})
	assert.Equal(t, "abc-123", rec.Header().Get(common.RequestIDHeaderName))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{common.ErrInvalidCredentials, http.StatusUnauthorized},
		{common.ErrMissingToken, http.StatusUnauthorized},
		{common.ErrMalformedToken, http.StatusUnauthorized},
		{common.ErrBadSignature, http.StatusUnauthorized},
		{common.ErrTokenExpired, http.StatusUnauthorized},
		{common.ErrUserNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: read secret: boom", common.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{common.ErrPermissionDenied, http.StatusForbidden},
		{common.ErrInvalidNonce, http.StatusForbidden},
		{common.ErrConfirmationRequired, http.StatusBadRequest},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewHTTPServer(l.Addr().String(), logging.Nop(), nil, nil, pingFunc(func(context.Context) error { return nil }))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.serve(ctx, l) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + l.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
