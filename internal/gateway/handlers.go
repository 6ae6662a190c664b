package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jinshu-im/jinshu/internal/logger"
	"github.com/jinshu-im/jinshu/pkg/protocol"
	"github.com/jinshu-im/jinshu/pkg/secret"
	"github.com/jinshu-im/jinshu/pkg/session"
)

// Handler serves the account API: registration, credential issue and
// revocation, and account retrieval.
type Handler struct {
	users *UserStore
	cache *session.SignInCache
}

// NewHandler builds the handler over the account store and the sign-in
// cache the authorizer reads.
func NewHandler(users *UserStore, cache *session.SignInCache) *Handler {
	return &Handler{users: users, cache: cache}
}

// SignUpRequest is the body of POST /sign_up.
type SignUpRequest struct {
	Name      string          `json:"name"`
	Password  secret.Secret   `json:"password"`
	Extension json.RawMessage `json:"extension,omitempty"`
}

// SignUpResponse is the body of a successful sign-up.
type SignUpResponse struct {
	UserID protocol.UID `json:"user_id"`
}

// SignInRequest is the body of POST /sign_in.
type SignInRequest struct {
	UserID    protocol.UID    `json:"user_id"`
	Password  secret.Secret   `json:"password"`
	Extension json.RawMessage `json:"extension,omitempty"`
}

// SignInResponse carries the issued credential. Expire is unix
// milliseconds.
type SignInResponse struct {
	UserID    protocol.UID    `json:"user_id"`
	Token     protocol.UID    `json:"token"`
	Extension json.RawMessage `json:"extension,omitempty"`
	Expire    uint64          `json:"expire"`
}

// SignOutRequest is the body of DELETE /sign_out.
type SignOutRequest struct {
	UserID protocol.UID `json:"user_id"`
}

// SignUp registers an account.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Password.IsEmpty() {
		writeError(w, http.StatusBadRequest, "name and password are required")
		return
	}

	var extension *string
	if len(req.Extension) > 0 {
		ext := string(req.Extension)
		extension = &ext
	}

	userID, err := h.users.Create(r.Context(), req.Name, req.Password, extension)
	if err != nil {
		if errors.Is(err, ErrNameTaken) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		logger.Error("Failed to create user", "name", req.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	logger.Info("User created", "user_id", userID, "name", req.Name)
	writeJSON(w, http.StatusCreated, SignUpResponse{UserID: userID})
}

// SignIn checks the password and issues a fresh token, caching it for the
// authorizer with the standard validity.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if _, err := h.users.Authenticate(r.Context(), req.UserID, req.Password); err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrWrongPassword):
			writeError(w, http.StatusUnauthorized, err.Error())
		default:
			logger.Error("Failed to authenticate user", "user_id", req.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to authenticate")
		}
		return
	}

	entry := &session.SignInEntry{
		UserID:    req.UserID,
		Token:     protocol.NewUID(),
		Extension: req.Extension,
		Expire:    uint64(time.Now().Add(session.TokenValidity).UnixMilli()),
	}
	if err := h.cache.Put(r.Context(), entry); err != nil {
		logger.Error("Failed to cache sign-in entry", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	logger.Info("Token issued", "user_id", req.UserID)
	writeJSON(w, http.StatusOK, SignInResponse{
		UserID:    entry.UserID,
		Token:     entry.Token,
		Extension: entry.Extension,
		Expire:    entry.Expire,
	})
}

// SignOut revokes a cached credential.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	var req SignOutRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.cache.Remove(r.Context(), req.UserID); err != nil {
		logger.Error("Failed to remove sign-in entry", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to sign out")
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// GetUser returns an account by id.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := protocol.ParseUID(chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.users.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		logger.Error("Failed to load user", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type errorResponse struct {
	Error string `json:"error"`
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeJSON encodes to a buffer first so an encoding failure can still
// produce an error status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
