package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/userauth/internal/common"
	"github.com/dmitrijs2005/userauth/internal/logging"
	"github.com/dmitrijs2005/userauth/internal/server/models"
	chimid "github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const profileKey ctxKey = "profile"

// Authenticator resolves a bearer token to the caller's profile.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Profile, error)
}

// ProfileFromContext returns the authenticated caller, or nil.
func ProfileFromContext(ctx context.Context) *models.Profile {
	p, _ := ctx.Value(profileKey).(*models.Profile)
	return p
}

func withProfile(ctx context.Context, p *models.Profile) context.Context {
	return context.WithValue(ctx, profileKey, p)
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// ok is false when the header is absent or uses another scheme.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Protect rejects requests without a valid bearer token of an active user.
func Protect(auth Authenticator, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeServiceErr(w, common.ErrMissingToken)
				return
			}

			p, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				logger.Debug(r.Context(), "token rejected", "error", err)
				writeServiceErr(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withProfile(r.Context(), p)))
		})
	}
}

// OptionalAuth attaches the caller's profile when a valid token is present and
// lets every request through.
func OptionalAuth(auth Authenticator, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearerToken(r); ok {
				if p, err := auth.Authenticate(r.Context(), token); err == nil {
					r = r.WithContext(withProfile(r.Context(), p))
				} else {
					logger.Debug(r.Context(), "optional token ignored", "error", err)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimid.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info(r.Context(), "request",
				"request_id", chimid.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
