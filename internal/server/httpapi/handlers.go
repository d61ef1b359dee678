package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/dmitrijs2005/tokengate/internal/common"
	"github.com/dmitrijs2005/tokengate/internal/server/models"
	"github.com/dmitrijs2005/tokengate/internal/server/services"
)

const maxBodyBytes = 1 << 16

// Tokens is the token service as seen by the gateway.
type Tokens interface {
	Login(ctx context.Context, username, password string) (*services.LoginResult, error)
	Validate(ctx context.Context, raw string) (*models.PublicUser, error)
	Authorize(ctx context.Context, raw string) (*models.Identity, error)
}

// SecretAdmin is the administrative secret surface.
type SecretAdmin interface {
	Nonce(ctx context.Context, user *models.Identity) (string, error)
	Current(ctx context.Context, user *models.Identity) (*services.SecretInfo, error)
	Rotate(ctx context.Context, user *models.Identity, nonce string, confirm bool) (*services.SecretInfo, error)
}

// HealthChecker reports whether the secret backend answers.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool               `json:"success"`
	Token   string             `json:"token"`
	User    *models.PublicUser `json:"user"`
}

type validateResponse struct {
	Success bool               `json:"success"`
	User    *models.PublicUser `json:"user"`
}

type nonceResponse struct {
	Nonce string `json:"nonce"`
}

type rotateRequest struct {
	Confirm bool `json:"confirm"`
}

type secretResponse struct {
	Success   bool   `json:"success"`
	SecretKey string `json:"secret_key"`
	AppConfig string `json:"app_config"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLogin(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.tokens.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Success: true, Token: res.Token, User: res.User})
}

// decodeLogin accepts a JSON body or form fields, the two encodings the
// mobile clients send.
func decodeLogin(w http.ResponseWriter, r *http.Request) (*loginRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return nil, errBadRequest
		}
		return &loginRequest{Username: r.PostForm.Get("username"), Password: r.PostForm.Get("password")}, nil
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errBadRequest
	}
	return &req, nil
}

func (s *HTTPServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	user, err := s.tokens.Validate(r.Context(), r.Header.Get(common.AuthorizationHeaderName))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Success: true, User: user})
}

func (s *HTTPServer) handleNonce(w http.ResponseWriter, r *http.Request) {
	nonce, err := s.admin.Nonce(r.Context(), IdentityFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonceResponse{Nonce: nonce})
}

func (s *HTTPServer) handleCurrentSecret(w http.ResponseWriter, r *http.Request) {
	info, err := s.admin.Current(r.Context(), IdentityFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, secretResponse{Success: true, SecretKey: info.SecretKey, AppConfig: info.AppConfig})
}

func (s *HTTPServer) handleRotateSecret(w http.ResponseWriter, r *http.Request) {
	var req rotateRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, errBadRequest)
		return
	}

	info, err := s.admin.Rotate(r.Context(), IdentityFrom(r.Context()), r.Header.Get(common.CSRFHeaderName), req.Confirm)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, secretResponse{Success: true, SecretKey: info.SecretKey, AppConfig: info.AppConfig})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Ping(r.Context()); err != nil {
		s.logger.Error(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
