// Package authapi serves registration, login, and password reset endpoints.
package authapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/courtbook/courtbook/internal/api/apiutil"
	"github.com/courtbook/courtbook/internal/auth"
	"github.com/courtbook/courtbook/internal/db"
	"github.com/courtbook/courtbook/internal/email"
	"github.com/courtbook/courtbook/internal/ratelimit"
	"github.com/courtbook/courtbook/internal/store"
)

type Deps struct {
	DB       *db.DB
	Tokens   *auth.Tokens
	Limiter  *ratelimit.Limiter
	Mailer   email.Sender
	BaseURL  string
	TokenTTL time.Duration
	ResetTTL time.Duration
}

var (
	deps     Deps
	depsOnce sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(d Deps) {
	depsOnce.Do(func() {
		deps = d
	})
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
}

type userResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// POST /api/v1/auth/register
func HandleRegister(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	var req registerRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		apiutil.WriteError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		apiutil.WriteError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "first_name and last_name are required")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to hash password")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	user, err := deps.DB.Store.CreateUser(r.Context(), store.CreateUserParams{
		Email:          req.Email,
		HashedPassword: hashed,
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		Phone:          strings.TrimSpace(req.Phone),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			apiutil.WriteError(w, http.StatusConflict, "email already registered")
			return
		}
		logger.Error().Err(err).Msg("Failed to create user")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, userResponse{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expires_in"`
	User      userResponse `json:"user"`
}

// POST /api/v1/auth/login
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	var req loginRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if deps.Limiter != nil && !deps.Limiter.Allow(req.Email, r) {
		apiutil.WriteError(w, http.StatusTooManyRequests, "too many attempts, try again later")
		return
	}

	user, err := deps.DB.Store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Error().Err(err).Msg("Failed to load user for login")
		}
		recordFailure(req.Email)
		apiutil.WriteError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if !user.HashedPassword.Valid || !auth.CheckPassword(user.HashedPassword.String, req.Password) {
		recordFailure(req.Email)
		apiutil.WriteError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if deps.Limiter != nil {
		deps.Limiter.RecordSuccess(req.Email)
	}

	token, err := deps.Tokens.CreateToken(user.ID, auth.PurposeSession, deps.TokenTTL)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to issue session token")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to log in")
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresIn: int64(deps.TokenTTL.Seconds()),
		User: userResponse{
			ID:        user.ID,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
		},
	})
}

type resetRequest struct {
	Email string `json:"email"`
}

// POST /api/v1/auth/password-reset
//
// Always returns 202 so the endpoint cannot be used to probe for accounts.
func HandlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	var req resetRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if deps.Limiter != nil && !deps.Limiter.Allow("reset:"+req.Email, r) {
		apiutil.WriteError(w, http.StatusTooManyRequests, "too many attempts, try again later")
		return
	}

	user, err := deps.DB.Store.GetUserByEmail(r.Context(), req.Email)
	if err == nil {
		token, tokenErr := deps.Tokens.CreateToken(user.ID, auth.PurposeReset, deps.ResetTTL)
		if tokenErr != nil {
			logger.Error().Err(tokenErr).Int64("user_id", user.ID).Msg("Failed to issue reset token")
		} else if deps.Mailer != nil {
			resetURL := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(deps.BaseURL, "/"), token)
			subject, body := email.PasswordReset(resetURL, deps.ResetTTL)
			email.SendAsync(deps.Mailer, user.Email, subject, body)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		logger.Error().Err(err).Msg("Failed to load user for password reset")
	}

	apiutil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"status": "if the account exists, a reset email has been sent",
	})
}

type resetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// POST /api/v1/auth/password-reset/confirm
func HandlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	var req resetConfirmRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Password) < 8 {
		apiutil.WriteError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	userID, err := deps.Tokens.ParseToken(req.Token, auth.PurposeReset)
	if err != nil {
		apiutil.WriteError(w, http.StatusUnauthorized, "invalid or expired reset token")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to hash password")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}
	if err := deps.DB.Store.SetUserPassword(r.Context(), userID, hashed); err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to update password")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

func recordFailure(email string) {
	if deps.Limiter != nil {
		deps.Limiter.RecordFailure(email)
	}
}
