package auth

import (
	"errors"
	"net/http"

	"github.com/icheme/portfolio/internal/telemetry/metrics"
	"github.com/icheme/portfolio/internal/telemetry/tracing"
	"github.com/icheme/portfolio/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

type Handler struct {
	service        *Service
	metricsManager *metrics.Manager
	cookieSecure   bool
}

func NewHandler(service *Service, metricsManager *metrics.Manager, cookieSecure bool) *Handler {
	return &Handler{
		service:        service,
		metricsManager: metricsManager,
		cookieSecure:   cookieSecure,
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type updateProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type adminResponse struct {
	pkg.Response
	Admin *Admin `json:"admin"`
}

// SetupRoutes registers the login/logout routes (with the given middlewares, e.g. rate limiting)
// and the admin account routes.
func (h *Handler) SetupRoutes(mainRouter *mux.Router, loginMiddlewares ...mux.MiddlewareFunc) {
	loginSubrouter := mainRouter.PathPrefix("/api").Subrouter()
	loginSubrouter.HandleFunc("/login", h.handleLogin).Methods("POST", "OPTIONS").Name("login")
	loginSubrouter.HandleFunc("/logout", h.handleLogout).Methods("POST", "OPTIONS").Name("logout")
	loginSubrouter.Use(loginMiddlewares...)

	adminRouter := mainRouter.PathPrefix("/api/admin").Subrouter()
	adminRouter.HandleFunc("/me", h.handleMe).Methods("GET").Name("admin-me")
	adminRouter.HandleFunc("/change-password", h.handleChangePassword).Methods("POST").Name("admin-change-password")
	adminRouter.HandleFunc("/update-profile", h.handleUpdateProfile).Methods("POST").Name("admin-update-profile")
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "authHandler.login")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	req, err := pkg.DecodeJSONBody[loginRequest](r)
	if err != nil {
		log.Tracef("login, decode request: %s", err)
		pkg.WriteJSONError(w, http.StatusBadRequest, "Missing fields")
		return
	}
	if invalid := pkg.Validate(req); len(invalid) > 0 {
		pkg.WriteJSONError(w, http.StatusBadRequest, "Missing fields")
		return
	}

	session, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		var validationErr *ValidationError
		switch {
		case errors.As(err, &validationErr):
			pkg.WriteJSONError(w, http.StatusBadRequest, validationErr.Message)
		case errors.Is(err, ErrInvalidCredentials):
			h.metricsManager.CounterLogins.WithLabelValues("failure").Inc()
			span.SetStatus(codes.Error, "invalid-credentials")
			pkg.WriteJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		case errors.Is(err, ErrCreateSession):
			log.Errorf("login failed, create session: %s", err)
			span.SetStatus(codes.Error, "create-session")
			pkg.WriteJSONError(w, http.StatusInternalServerError, "Could not create session")
		default:
			log.Errorf("login failed: %s", err)
			span.SetStatus(codes.Error, "backend")
			pkg.WriteJSONError(w, http.StatusInternalServerError, "Server error")
		}
		return
	}

	h.metricsManager.CounterLogins.WithLabelValues("success").Inc()
	h.setSessionCookie(w, session.Token, int(h.service.TTL().Seconds()))
	pkg.WriteJSONOK(w, pkg.OK(""))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "authHandler.logout")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	if cookie, err := r.Cookie(CookieName); err == nil {
		if err := h.service.Logout(ctx, cookie.Value); err != nil {
			log.Errorf("logout, delete session: %s", err)
			span.RecordError(err)
		}
	}

	h.setSessionCookie(w, "", -1)
	pkg.WriteJSONOK(w, pkg.OK("Logged out"))
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "authHandler.me")
	defer span.End()

	session, ok := SessionFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	admin, err := h.service.GetAdmin(ctx, session.AdminID)
	if err != nil {
		if errors.Is(err, ErrAdminNotFound) {
			pkg.WriteJSONError(w, http.StatusUnauthorized, "Invalid session")
			return
		}
		log.Errorf("get admin [%d]: %s", session.AdminID, err)
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Server error")
		return
	}

	pkg.WriteJSONOK(w, adminResponse{
		Response: pkg.OK(""),
		Admin:    admin,
	})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "authHandler.changePassword")
	defer span.End()

	session, ok := SessionFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	req, err := pkg.DecodeJSONBody[changePasswordRequest](r)
	if err != nil {
		log.Tracef("change password, decode request: %s", err)
		pkg.WriteJSONError(w, http.StatusBadRequest, "Both passwords are required")
		return
	}

	if err := h.service.ChangePassword(ctx, session, req.CurrentPassword, req.NewPassword); err != nil {
		var validationErr *ValidationError
		switch {
		case errors.As(err, &validationErr):
			pkg.WriteJSONError(w, http.StatusBadRequest, validationErr.Message)
		case errors.Is(err, ErrInvalidCredentials):
			span.SetStatus(codes.Error, "wrong-current-password")
			pkg.WriteJSONError(w, http.StatusUnauthorized, "Current password is incorrect")
		case errors.Is(err, ErrUnauthorized):
			pkg.WriteJSONError(w, http.StatusUnauthorized, "Unauthorized")
		case errors.Is(err, ErrUpdatePassword):
			log.Errorf("change password for admin [%d]: %s", session.AdminID, err)
			span.SetStatus(codes.Error, "update-password")
			pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to update password")
		default:
			log.Errorf("change password for admin [%d]: %s", session.AdminID, err)
			span.SetStatus(codes.Error, "backend")
			pkg.WriteJSONError(w, http.StatusInternalServerError, "Server error")
		}
		return
	}

	pkg.WriteJSONOK(w, pkg.OK("Password changed successfully"))
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "authHandler.updateProfile")
	defer span.End()

	session, ok := SessionFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	req, err := pkg.DecodeJSONBody[updateProfileRequest](r)
	if err != nil {
		log.Tracef("update profile, decode request: %s", err)
		pkg.WriteJSONError(w, http.StatusBadRequest, "Valid email is required")
		return
	}

	admin, err := h.service.UpdateProfile(ctx, session.AdminID, req.Name, req.Email)
	if err != nil {
		var validationErr *ValidationError
		switch {
		case errors.As(err, &validationErr):
			pkg.WriteJSONError(w, http.StatusBadRequest, validationErr.Message)
		case errors.Is(err, ErrEmailTaken):
			pkg.WriteJSONError(w, http.StatusBadRequest, "Email already in use")
		default:
			log.Errorf("update profile for admin [%d]: %s", session.AdminID, err)
			span.SetStatus(codes.Error, "backend")
			pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to update profile")
		}
		return
	}

	pkg.WriteJSONOK(w, adminResponse{
		Response: pkg.OK("Profile updated successfully"),
		Admin:    admin,
	})
}
