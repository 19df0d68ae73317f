package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/icheme/portfolio/internal/auth"
	"github.com/icheme/portfolio/internal/telemetry/tracing"
	"github.com/icheme/portfolio/pkg"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:generate mockgen -source=$GOFILE -destination=auth_mocks_test.go -package=middleware_test

type sessionValidator interface {
	Validate(ctx context.Context, token string) (*auth.Session, error)
}

type AuthMiddlewareHandler struct {
	sessionValidator     sessionValidator
	allowedPaths         map[string]bool
	allowedPathsPrefixes []string
}

func NewAuthMiddlewareHandler(sessionValidator sessionValidator) *AuthMiddlewareHandler {
	return &AuthMiddlewareHandler{
		sessionValidator: sessionValidator,
		allowedPaths: map[string]bool{
			"/": true,

			// login-logout:
			"/api/login":  true,
			"/api/logout": true,

			// public site:
			"/api/home":         true,
			"/api/contact":      true,
			"/api/projects":     true,
			"/api/projects/get": true,
			"/api/cv/latest":    true,
		},
		allowedPathsPrefixes: []string{
			// disk storage public files
			"/files/",
		},
	}
}

func (h *AuthMiddlewareHandler) pathIsAlwaysAllowed(path string) bool {
	if h.allowedPaths[path] {
		return true
	}
	for _, prefix := range h.allowedPathsPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// AuthCheck resolves the admin_token cookie to a session and stores it in the request context.
func (h *AuthMiddlewareHandler) AuthCheck() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.GlobalTracer.Start(r.Context(), "middleware.auth")
			defer span.End()

			if r.Method == http.MethodOptions {
				span.SetStatus(codes.Ok, "options-ok")
				next.ServeHTTP(w, r)
				return
			}

			if h.pathIsAlwaysAllowed(r.URL.Path) {
				span.SetStatus(codes.Ok, "ok")
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(auth.CookieName)
			if err != nil || cookie.Value == "" {
				log.Tracef("[missing token] [auth middleware] unauthorized => %s", r.URL.Path)
				span.SetStatus(codes.Error, "missing-auth-token")
				pkg.WriteJSONError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			session, err := h.sessionValidator.Validate(ctx, cookie.Value)
			if err != nil {
				if errors.Is(err, auth.ErrUnauthorized) {
					log.Tracef("[invalid token] [auth middleware] unauthorized => %s", r.URL.Path)
					span.SetStatus(codes.Error, "invalid-session")
					pkg.WriteJSONError(w, http.StatusUnauthorized, "Invalid session")
					return
				}
				log.Errorf("[failed session check] => %s: %s", r.URL.Path, err)
				span.SetStatus(codes.Error, "check-session-err")
				span.RecordError(err)
				pkg.WriteJSONError(w, http.StatusInternalServerError, "Server error")
				return
			}

			span.SetAttributes(attribute.Int("admin.id", session.AdminID))
			span.SetStatus(codes.Ok, "ok")
			next.ServeHTTP(w, r.WithContext(auth.ContextWithSession(r.Context(), session)))
		})
	}
}
