package messages

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"

	"github.com/icheme/portfolio/internal/notifications"
	"github.com/icheme/portfolio/internal/telemetry/metrics"
	"github.com/icheme/portfolio/internal/telemetry/tracing"
	"github.com/icheme/portfolio/pkg"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type messagesRepo interface {
	Add(ctx context.Context, message *Message) error
	List(ctx context.Context, limit int) ([]*Message, error)
	Counts(ctx context.Context) (total int, unread int, err error)
	SetRead(ctx context.Context, id int, read bool) error
	Delete(ctx context.Context, ids []int) (int64, error)
}

type duplicateGuard interface {
	Seen(ctx context.Context, email, message string) (bool, error)
	Forget(ctx context.Context, email, message string) error
}

type contactNotifier interface {
	NotifyInBackground(contact notifications.Contact)
}

type contactRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email,max=320"`
	Message string `json:"message" validate:"required,max=5000"`
}

type setReadRequest struct {
	ID   json.Number `json:"id"`
	Read *bool       `json:"read"`
}

type deleteRequest struct {
	ID  json.Number `json:"id"`
	IDs []int       `json:"ids"`
}

type contactResponse struct {
	pkg.Response
	Data *Message `json:"data,omitempty"`
}

type messagesResponse struct {
	pkg.Response
	Messages []*Message `json:"messages"`
	Total    int        `json:"total"`
	Unread   int        `json:"unread"`
}

type deleteResponse struct {
	pkg.Response
	Deleted int64 `json:"deleted"`
}

type Handler struct {
	repo           messagesRepo
	guard          duplicateGuard
	notifier       contactNotifier
	metricsManager *metrics.Manager
}

// NewHandler creates the contact and inbox handler; guard may be nil.
func NewHandler(
	repo messagesRepo,
	guard duplicateGuard,
	notifier contactNotifier,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		repo:           repo,
		guard:          guard,
		notifier:       notifier,
		metricsManager: metricsManager,
	}
}

// SetupRoutes registers the public contact route (with the given middlewares, e.g. rate limiting)
// and the admin inbox routes.
func (h *Handler) SetupRoutes(mainRouter *mux.Router, contactMiddlewares ...mux.MiddlewareFunc) {
	contactRouter := mainRouter.PathPrefix("/api").Subrouter()
	contactRouter.HandleFunc("/contact", h.handleContact).Methods("POST", "OPTIONS").Name("contact")
	contactRouter.Use(contactMiddlewares...)

	adminRouter := mainRouter.PathPrefix("/api/admin/messages").Subrouter()
	adminRouter.HandleFunc("", h.handleList).Methods("GET").Name("admin-messages")
	adminRouter.HandleFunc("/read", h.handleSetRead).Methods("POST").Name("admin-messages-read")
	adminRouter.HandleFunc("/delete", h.handleDelete).Methods("POST").Name("admin-messages-delete")
}

func (h *Handler) handleContact(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "messagesHandler.contact")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	req, err := pkg.DecodeJSONBody[contactRequest](r)
	if err != nil {
		log.Tracef("contact, decode request: %s", err)
		pkg.WriteJSONError(w, http.StatusBadRequest, "All fields are required")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Message = strings.TrimSpace(req.Message)

	if invalid := pkg.Validate(req); len(invalid) > 0 {
		switch {
		case pkg.HasRule(invalid, "required"):
			pkg.WriteJSONError(w, http.StatusBadRequest, "All fields are required")
		case pkg.HasRule(invalid, "email"):
			pkg.WriteJSONError(w, http.StatusBadRequest, "Invalid email address")
		default:
			log.Tracef("contact, invalid fields: %v", invalid)
			pkg.WriteJSONError(w, http.StatusBadRequest, "Message is too long")
		}
		return
	}
	if !emailPattern.MatchString(req.Email) {
		pkg.WriteJSONError(w, http.StatusBadRequest, "Invalid email address")
		return
	}

	if h.guard != nil {
		seen, err := h.guard.Seen(ctx, req.Email, req.Message)
		if err != nil {
			log.Warnf("contact, duplicate check: %s", err)
		} else if seen {
			log.Debugf("contact, duplicate message from %s dropped", req.Email)
			pkg.WriteJSONOK(w, contactResponse{Response: pkg.OK("Message sent successfully!")})
			return
		}
	}

	message := &Message{
		Name:    req.Name,
		Email:   req.Email,
		Message: req.Message,
	}
	if err := h.repo.Add(ctx, message); err != nil {
		log.Errorf("save contact message from %s: %s", req.Email, err)
		span.SetStatus(codes.Error, "save")
		if h.guard != nil {
			if err := h.guard.Forget(ctx, req.Email, req.Message); err != nil {
				log.Warnf("contact, forget duplicate mark: %s", err)
			}
		}
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to save message")
		return
	}

	h.metricsManager.CounterContactMessages.Inc()
	h.notifier.NotifyInBackground(notifications.Contact{
		Name:       message.Name,
		Email:      message.Email,
		Message:    message.Message,
		ReceivedAt: message.CreatedAt,
	})

	pkg.WriteJSONOK(w, contactResponse{
		Response: pkg.OK("Message sent successfully!"),
		Data:     message,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "messagesHandler.list")
	defer span.End()

	messages, err := h.repo.List(ctx, 0)
	if err != nil {
		log.Errorf("list messages: %s", err)
		span.SetStatus(codes.Error, "list")
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}

	total, unread, err := h.repo.Counts(ctx)
	if err != nil {
		log.Errorf("count messages: %s", err)
		span.SetStatus(codes.Error, "counts")
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}

	pkg.WriteJSONOK(w, messagesResponse{
		Response: pkg.OK(""),
		Messages: messages,
		Total:    total,
		Unread:   unread,
	})
}

func (h *Handler) handleSetRead(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "messagesHandler.setRead")
	defer span.End()

	req, err := pkg.DecodeJSONBody[setReadRequest](r)
	if err != nil {
		pkg.WriteJSONError(w, http.StatusBadRequest, "Message ID is required")
		return
	}
	id, err := req.ID.Int64()
	if err != nil || id <= 0 {
		pkg.WriteJSONError(w, http.StatusBadRequest, "Message ID is required")
		return
	}
	read := true
	if req.Read != nil {
		read = *req.Read
	}

	if err := h.repo.SetRead(ctx, int(id), read); err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			pkg.WriteJSONError(w, http.StatusNotFound, "Message not found")
			return
		}
		log.Errorf("mark message %d read=%t: %s", id, read, err)
		span.SetStatus(codes.Error, "set-read")
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to update message")
		return
	}

	pkg.WriteJSONOK(w, pkg.OK("Message updated"))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "messagesHandler.delete")
	defer span.End()

	req, err := pkg.DecodeJSONBody[deleteRequest](r)
	if err != nil {
		pkg.WriteJSONError(w, http.StatusBadRequest, "Message ID is required")
		return
	}

	ids := req.IDs
	if req.ID != "" {
		id, err := req.ID.Int64()
		if err != nil {
			pkg.WriteJSONError(w, http.StatusBadRequest, "Message ID is required")
			return
		}
		ids = append(ids, int(id))
	}
	if len(ids) == 0 {
		pkg.WriteJSONError(w, http.StatusBadRequest, "Message ID is required")
		return
	}

	deleted, err := h.repo.Delete(ctx, ids)
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			pkg.WriteJSONError(w, http.StatusNotFound, "Message not found")
			return
		}
		log.Errorf("delete messages %v: %s", ids, err)
		span.SetStatus(codes.Error, "delete")
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to delete message")
		return
	}

	log.Tracef("deleted %d messages", deleted)
	pkg.WriteJSONOK(w, deleteResponse{
		Response: pkg.OK("Message deleted successfully"),
		Deleted:  deleted,
	})
}
