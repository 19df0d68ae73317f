package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/icheme/portfolio/internal/cv"
	"github.com/icheme/portfolio/internal/messages"
	"github.com/icheme/portfolio/internal/projects"
	"github.com/icheme/portfolio/internal/telemetry/tracing"
	"github.com/icheme/portfolio/pkg"
)

const (
	recentLimit       = 5
	homeProjectsLimit = 3
	homeCachePath     = "/"
)

type projectsRepo interface {
	List(ctx context.Context, limit int) ([]*projects.Project, error)
	Count(ctx context.Context) (int, error)
}

type messagesRepo interface {
	List(ctx context.Context, limit int) ([]*messages.Message, error)
	Counts(ctx context.Context) (total int, unread int, err error)
}

type cvRepo interface {
	Latest(ctx context.Context) (*cv.File, error)
	Count(ctx context.Context) (int, error)
}

type contentCache interface {
	Get(path string) ([]byte, error)
	Generation() uint64
	SetIfUnchanged(path string, content []byte, generation uint64) bool
}

type Stats struct {
	Projects       int `json:"projects"`
	Messages       int `json:"messages"`
	UnreadMessages int `json:"unread_messages"`
	CVs            int `json:"cvs"`
}

type dashboardResponse struct {
	pkg.Response
	Stats          Stats               `json:"stats"`
	RecentProjects []*projects.Project `json:"recent_projects"`
	RecentMessages []*messages.Message `json:"recent_messages"`
}

type homeResponse struct {
	pkg.Response
	// empty when no CV was uploaded yet
	CVURL    string              `json:"cv_url"`
	Projects []*projects.Project `json:"projects"`
}

type Handler struct {
	projectsRepo projectsRepo
	messagesRepo messagesRepo
	cvRepo       cvRepo
	cache        contentCache
}

func NewHandler(
	projectsRepo projectsRepo,
	messagesRepo messagesRepo,
	cvRepo cvRepo,
	cache contentCache,
) *Handler {
	return &Handler{
		projectsRepo: projectsRepo,
		messagesRepo: messagesRepo,
		cvRepo:       cvRepo,
		cache:        cache,
	}
}

func (h *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/api/admin/dashboard", h.handleDashboard).Methods("GET").Name("admin-dashboard")
	router.HandleFunc("/api/home", h.handleHome).Methods("GET").Name("home")
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "dashboardHandler.dashboard")
	defer span.End()

	resp := dashboardResponse{Response: pkg.OK("")}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		resp.Stats.Projects, err = h.projectsRepo.Count(gCtx)
		return err
	})
	g.Go(func() (err error) {
		resp.Stats.Messages, resp.Stats.UnreadMessages, err = h.messagesRepo.Counts(gCtx)
		return err
	})
	g.Go(func() (err error) {
		resp.Stats.CVs, err = h.cvRepo.Count(gCtx)
		return err
	})
	g.Go(func() (err error) {
		resp.RecentProjects, err = h.projectsRepo.List(gCtx, recentLimit)
		return err
	})
	g.Go(func() (err error) {
		resp.RecentMessages, err = h.messagesRepo.List(gCtx, recentLimit)
		return err
	})

	if err := g.Wait(); err != nil {
		log.Errorf("load dashboard: %s", err)
		span.SetStatus(codes.Error, "load")
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to load dashboard")
		return
	}

	pkg.WriteJSONOK(w, resp)
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "dashboardHandler.home")
	defer span.End()

	if content, err := h.cache.Get(homeCachePath); err == nil {
		pkg.WriteResponseBytes(w, pkg.ContentType.JSON, content, http.StatusOK)
		return
	}

	generation := h.cache.Generation()
	resp := homeResponse{Response: pkg.OK("")}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		latest, err := h.cvRepo.Latest(gCtx)
		if err != nil {
			if errors.Is(err, cv.ErrCVNotFound) {
				return nil
			}
			return err
		}
		resp.CVURL = latest.FileURL
		return nil
	})
	g.Go(func() (err error) {
		resp.Projects, err = h.projectsRepo.List(gCtx, homeProjectsLimit)
		return err
	})

	if err := g.Wait(); err != nil {
		log.Errorf("load home: %s", err)
		span.SetStatus(codes.Error, "load")
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to load home")
		return
	}

	content, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("marshal home: %s", err)
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Server error")
		return
	}
	h.cache.SetIfUnchanged(homeCachePath, content, generation)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, content, http.StatusOK)
}
