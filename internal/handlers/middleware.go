package handlers

import (
	"net/http"
	"strings"

	"github.com/coursedeck/backend/internal/logging"
	"github.com/coursedeck/backend/internal/models"
)

const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
)

// Authenticator authenticates requests and gates course mutations on
// ownership. Two role-scoped pipelines share one instance.
type Authenticator struct {
	Tokens     TokenService
	Identities IdentityStore
}

// Require wraps next so it only runs for a caller presenting a valid access
// token that resolves to a live identity of the expected role. The sanitized
// identity is attached to the request context. Any failure halts the pipeline
// with Unauthorized before the handler executes.
func (a Authenticator) Require(role models.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)

		token := requestToken(r)
		if token == "" {
			logger.Warn("missing access token", "role", role)
			respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
			return
		}

		claims, err := a.Tokens.VerifyAccess(token)
		if err != nil {
			logger.Warn("access token rejected", "role", role, "error", err)
			respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
			return
		}

		identity, err := a.Identities.FindByID(ctx, claims.Subject)
		if err != nil {
			logger.Warn("access token identity lookup failed", "identityId", claims.Subject, "error", err)
			respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if identity.Role != role {
			logger.Warn("access token role mismatch", "want", role, "got", identity.Role)
			respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next(w, r.WithContext(withIdentity(ctx, identity.Sanitized())))
	}
}

// Identify resolves the caller's identity when a valid token is present and
// returns nil otherwise. Used by public endpoints whose response shape depends
// on who is asking.
func (a Authenticator) Identify(r *http.Request) *models.Identity {
	token := requestToken(r)
	if token == "" {
		return nil
	}

	claims, err := a.Tokens.VerifyAccess(token)
	if err != nil {
		return nil
	}

	identity, err := a.Identities.FindByID(r.Context(), claims.Subject)
	if err != nil {
		return nil
	}

	sanitized := identity.Sanitized()
	return &sanitized
}

// OwnedCourseHandler receives the course already loaded and ownership-checked
// by RequireOwner.
type OwnedCourseHandler func(w http.ResponseWriter, r *http.Request, course models.Course)

// RequireOwner gates a mutation on course ownership. It must run inside
// Require so an authenticated uploader is on the context. The owner reference
// on the course row is the source of truth, regardless of what the uploader's
// relation list claims.
func (a Authenticator) RequireOwner(courses CourseFinder, courseID func(*http.Request) string, next OwnedCourseHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		identity, ok := IdentityFromContext(ctx)
		if !ok {
			respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
			return
		}

		id := strings.TrimSpace(courseID(r))
		if id == "" {
			respondError(ctx, w, http.StatusBadRequest, "course id is required")
			return
		}

		course, err := courses.FindByID(ctx, id)
		if err != nil {
			respondFailure(ctx, w, err)
			return
		}

		if course.OwnerID != identity.ID {
			logging.FromContext(ctx).Warn("ownership check failed",
				"courseId", course.ID, "ownerId", course.OwnerID, "callerId", identity.ID)
			respondError(ctx, w, http.StatusForbidden, "you do not own this course")
			return
		}

		next(w, r, course)
	}
}

// requestToken extracts the access token from the httpOnly cookie or a bearer
// header, cookie first.
func requestToken(r *http.Request) string {
	if cookie, err := r.Cookie(accessCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// setSessionCookies installs the token pair as httpOnly, secure cookies.
func setSessionCookies(w http.ResponseWriter, pair models.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    pair.AccessToken,
		Expires:  pair.AccessExpiresAt,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.RefreshToken,
		Expires:  pair.RefreshExpiresAt,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearSessionCookies expires both session cookies.
func clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}
