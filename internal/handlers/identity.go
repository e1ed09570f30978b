package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coursedeck/backend/internal/auth"
	"github.com/coursedeck/backend/internal/blobstore"
	"github.com/coursedeck/backend/internal/logging"
	"github.com/coursedeck/backend/internal/models"
	"github.com/coursedeck/backend/internal/repositories"
)

// IdentityHandler implements registration and session endpoints for both
// identity roles.
type IdentityHandler struct {
	Identities IdentityStore
	Tokens     TokenService
	Blobs      BlobUploader
	TempDir    string
	Limiter    RateLimiter
	NowFunc    func() time.Time
}

// Register handles POST /api/v1/{role}/register requests (multipart, avatar required).
func (h IdentityHandler) Register(role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)

		if !allowRequest(h.Limiter, r, "register") {
			respondError(ctx, w, http.StatusTooManyRequests, "too many requests")
			return
		}

		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			logger.Warn("invalid register payload", "error", err)
			respondError(ctx, w, http.StatusBadRequest, "invalid multipart request body")
			return
		}

		fullName := strings.TrimSpace(r.FormValue("fullName"))
		email := strings.TrimSpace(strings.ToLower(r.FormValue("email")))
		password := r.FormValue("password")

		if anyBlank(fullName, email, password) {
			logger.Warn("register missing fields", "role", role, "email", email)
			respondError(ctx, w, http.StatusBadRequest, "all fields are mandatory")
			return
		}

		if _, err := mail.ParseAddress(email); err != nil {
			logger.Warn("register invalid email", "email", email, "error", err)
			respondError(ctx, w, http.StatusBadRequest, "invalid email address")
			return
		}

		// The avatar is staged locally before anything else so the cleanup
		// below covers every exit path, success and failure alike.
		avatarPath, cleanup, err := stageUpload(r, "avatar", h.TempDir)
		if err != nil {
			logger.Warn("register avatar staging failed", "error", err)
			respondError(ctx, w, http.StatusBadRequest, "avatar is required")
			return
		}
		defer cleanup()

		if _, err := h.Identities.FindByEmail(ctx, role, email); err == nil {
			logger.Warn("register existing account", "role", role, "email", email)
			respondError(ctx, w, http.StatusConflict, "account with same email already exists")
			return
		} else if !errors.Is(err, repositories.ErrNotFound) {
			logger.Error("register lookup failed", "error", err, "email", email)
			respondFailure(ctx, w, err)
			return
		}

		hashed, err := auth.HashPassword(password)
		if err != nil {
			logger.Error("register failed to hash password", "error", err)
			respondError(ctx, w, http.StatusInternalServerError, "failed to secure password")
			return
		}

		avatar, err := h.Blobs.Upload(ctx, avatarPath, blobstore.KindImage)
		if err != nil {
			logger.Error("register avatar upload failed", "error", err)
			respondFailure(ctx, w, err)
			return
		}

		now := h.now()
		identity := models.Identity{
			ID:         uuid.NewString(),
			Role:       role,
			Email:      email,
			FullName:   fullName,
			Password:   hashed,
			Avatar:     avatar,
			CourseRefs: []models.CourseRef{},
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		if err := h.Identities.Create(ctx, identity); err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				logger.Warn("register conflict", "role", role, "email", email)
				respondError(ctx, w, http.StatusConflict, "account with same email already exists")
				return
			}
			logger.Error("register failed to create identity", "error", err, "email", email)
			respondFailure(ctx, w, err)
			return
		}

		respondData(ctx, w, http.StatusCreated, identity.Sanitized(), "account created successfully")
	}
}

// Login handles POST /api/v1/{role}/login requests.
func (h IdentityHandler) Login(role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)

		if !allowRequest(h.Limiter, r, "login") {
			respondError(ctx, w, http.StatusTooManyRequests, "too many requests")
			return
		}

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Warn("invalid login payload", "error", err)
			respondError(ctx, w, http.StatusBadRequest, "invalid request body")
			return
		}

		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		if req.Email == "" || req.Password == "" {
			logger.Warn("login missing credentials", "email", req.Email)
			respondError(ctx, w, http.StatusBadRequest, "email and password are required")
			return
		}

		identity, err := h.Identities.FindByEmail(ctx, role, req.Email)
		if err != nil {
			logger.Warn("login identity lookup failed", "role", role, "email", req.Email, "error", err)
			respondError(ctx, w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		if !auth.VerifyPassword(identity.Password, req.Password) {
			logger.Warn("login password mismatch", "identityId", identity.ID)
			respondError(ctx, w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		pair, err := h.Tokens.IssuePair(ctx, identity)
		if err != nil {
			logger.Error("failed to issue session", "error", err, "identityId", identity.ID)
			respondError(ctx, w, http.StatusInternalServerError, "failed to create session")
			return
		}

		setSessionCookies(w, pair)
		respondData(ctx, w, http.StatusOK, sessionResponse{
			Identity: identity.Sanitized(),
			Tokens:   pair,
		}, "logged in successfully")
	}
}

// Logout handles POST /api/v1/{role}/logout requests. It wipes the stored
// refresh-token slot and clears both session cookies.
func (h IdentityHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.Identities.SetRefreshToken(ctx, identity.ID, ""); err != nil {
		logging.FromContext(ctx).Error("logout failed to clear refresh token", "identityId", identity.ID, "error", err)
		respondFailure(ctx, w, err)
		return
	}

	clearSessionCookies(w)
	respondData(ctx, w, http.StatusOK, nil, "logged out")
}

// Current handles GET /api/v1/{role}/current requests.
func (h IdentityHandler) Current(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	respondData(ctx, w, http.StatusOK, identity, "current account fetched successfully")
}

// ChangePassword handles PATCH /api/v1/{role}/password requests.
func (h IdentityHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid change password payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.OldPassword == "" || req.NewPassword == "" {
		respondError(ctx, w, http.StatusBadRequest, "old and new passwords are required")
		return
	}

	// The context identity is sanitized; reload to compare against the hash.
	stored, err := h.Identities.FindByID(ctx, identity.ID)
	if err != nil {
		logger.Error("change password lookup failed", "identityId", identity.ID, "error", err)
		respondFailure(ctx, w, err)
		return
	}

	if !auth.VerifyPassword(stored.Password, req.OldPassword) {
		logger.Warn("change password old password mismatch", "identityId", identity.ID)
		respondError(ctx, w, http.StatusBadRequest, "invalid old password")
		return
	}

	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		logger.Error("change password hash failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to secure password")
		return
	}

	if err := h.Identities.UpdatePassword(ctx, identity.ID, hashed); err != nil {
		logger.Error("change password update failed", "identityId", identity.ID, "error", err)
		respondFailure(ctx, w, err)
		return
	}

	respondData(ctx, w, http.StatusOK, nil, "password changed successfully")
}

// Refresh handles POST /api/v1/auth/refresh-token requests. The refresh token
// is read from the httpOnly cookie or the request body; a rotated pair is
// returned through the same cookie mechanism.
//
// All rotation failure kinds surface as one generic Unauthorized; the
// distinguishable sentinels are preserved in the logs.
func (h IdentityHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	presented := ""
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		presented = cookie.Value
	}
	if presented == "" && r.Body != nil {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			presented = strings.TrimSpace(req.RefreshToken)
		}
	}

	if presented == "" {
		logger.Warn("missing refresh token")
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	identity, pair, err := h.Tokens.Rotate(ctx, presented)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenInvalid):
			logger.Warn("refresh token signature invalid or expired")
		case errors.Is(err, auth.ErrIdentityNotFound):
			logger.Warn("refresh token identity not found")
		case errors.Is(err, auth.ErrTokenMismatch):
			logger.Warn("refresh token superseded")
		default:
			logger.Error("refresh rotation failed", "error", err)
			respondError(ctx, w, http.StatusInternalServerError, "unable to refresh session")
			return
		}
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	setSessionCookies(w, pair)
	respondData(ctx, w, http.StatusOK, sessionResponse{
		Identity: identity.Sanitized(),
		Tokens:   pair,
	}, "access token refreshed")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type sessionResponse struct {
	Identity models.Identity  `json:"identity"`
	Tokens   models.TokenPair `json:"tokens"`
}

func (h IdentityHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
