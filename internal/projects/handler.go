package projects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/icheme/portfolio/internal/images"
	"github.com/icheme/portfolio/internal/telemetry/tracing"
	"github.com/icheme/portfolio/pkg"
)

const (
	listCachePath = "/projects"
	homeCachePath = "/"
)

type projectsRepo interface {
	Add(ctx context.Context, project *Project) error
	Update(ctx context.Context, project *Project) error
	Delete(ctx context.Context, id int) (*Project, error)
	Get(ctx context.Context, id int) (*Project, error)
	List(ctx context.Context, limit int) ([]*Project, error)
}

type imageUploader interface {
	Upload(ctx context.Context, file io.Reader, header *multipart.FileHeader) (string, error)
	Delete(ctx context.Context, publicURL string) error
	SizeLimitMessage() string
}

type contentCache interface {
	Get(path string) ([]byte, error)
	Generation() uint64
	SetIfUnchanged(path string, content []byte, generation uint64) bool
	Invalidate(paths ...string)
}

type addProjectRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	GitHub      string   `json:"github"`
	URL         string   `json:"url"`
	Image       string   `json:"image"`
	Tags        []string `json:"tags"`
}

type deleteProjectRequest struct {
	ID json.Number `json:"id"`
}

type projectsResponse struct {
	pkg.Response
	Projects []*Project `json:"projects"`
}

type projectResponse struct {
	pkg.Response
	Project *Project `json:"project"`
}

type savedProjectResponse struct {
	pkg.Response
	Data     *Project `json:"data"`
	ImageURL string   `json:"imageUrl,omitempty"`
}

type Handler struct {
	repo          projectsRepo
	images        imageUploader
	cache         contentCache
	maxUploadSize int64
}

func NewHandler(
	repo projectsRepo,
	uploader imageUploader,
	cache contentCache,
	maxUploadSize int64,
) *Handler {
	return &Handler{
		repo:          repo,
		images:        uploader,
		cache:         cache,
		maxUploadSize: maxUploadSize,
	}
}

func (h *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/api/projects", h.handleList).Methods("GET").Name("projects")
	router.HandleFunc("/api/projects/get", h.handleGet).Methods("GET").Name("get-project")
	router.HandleFunc("/api/projects/add", h.handleAdd).Methods("POST").Name("add-project")
	router.HandleFunc("/api/projects/update", h.handleUpdate).Methods("POST").Name("update-project")
	router.HandleFunc("/api/projects/delete", h.handleDelete).Methods("POST").Name("delete-project")
}

func projectCachePath(id int) string {
	return fmt.Sprintf("/projects/%d", id)
}

func (h *Handler) invalidate(id int) {
	h.cache.Invalidate(homeCachePath, listCachePath, projectCachePath(id))
}

// writeCached answers from the content cache when possible, otherwise with the payload
// produced by load, which is cached on success.
func (h *Handler) writeCached(w http.ResponseWriter, cachePath string, load func() (any, int, error)) {
	if content, err := h.cache.Get(cachePath); err == nil {
		pkg.WriteResponseBytes(w, pkg.ContentType.JSON, content, http.StatusOK)
		return
	}

	generation := h.cache.Generation()
	payload, status, err := load()
	if err != nil {
		pkg.WriteJSON(w, status, payload)
		return
	}

	content, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("marshal [%s]: %s", cachePath, err)
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Server error")
		return
	}
	h.cache.SetIfUnchanged(cachePath, content, generation)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, content, http.StatusOK)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "projectsHandler.list")
	defer span.End()

	h.writeCached(w, listCachePath, func() (any, int, error) {
		projects, err := h.repo.List(ctx, 0)
		if err != nil {
			log.Errorf("list projects: %s", err)
			span.SetStatus(codes.Error, "list")
			return pkg.Fail("Failed to load projects"), http.StatusInternalServerError, err
		}
		return projectsResponse{
			Response: pkg.OK(""),
			Projects: projects,
		}, http.StatusOK, nil
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "projectsHandler.get")
	defer span.End()

	idStr := r.URL.Query().Get("id")
	if idStr == "" {
		pkg.WriteJSONError(w, http.StatusBadRequest, "Project ID is required")
		return
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		// ids are numeric, anything else cannot exist
		pkg.WriteJSONError(w, http.StatusNotFound, "Project not found")
		return
	}
	span.SetAttributes(attribute.Int("id", id))

	h.writeCached(w, projectCachePath(id), func() (any, int, error) {
		project, err := h.repo.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrProjectNotFound) {
				return pkg.Fail("Project not found"), http.StatusNotFound, err
			}
			log.Errorf("get project %d: %s", id, err)
			span.SetStatus(codes.Error, "get")
			return pkg.Fail("Server error"), http.StatusInternalServerError, err
		}
		return projectResponse{
			Response: pkg.OK(""),
			Project:  project,
		}, http.StatusOK, nil
	})
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "projectsHandler.add")
	defer span.End()

	var req addProjectRequest
	var imageFile multipart.File
	var imageHeader *multipart.FileHeader

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"):
		var err error
		req, err = pkg.DecodeJSONBody[addProjectRequest](r)
		if err != nil {
			log.Tracef("add project, decode json: %s", err)
			pkg.WriteJSONError(w, http.StatusBadRequest, "Invalid JSON in request body")
			return
		}
	case strings.Contains(contentType, "multipart/form-data"):
		if !h.parseForm(w, r) {
			return
		}
		req = addProjectRequest{
			Title:       r.FormValue("title"),
			Description: r.FormValue("description"),
			GitHub:      r.FormValue("github"),
			URL:         r.FormValue("url"),
			Tags:        parseTags(r.FormValue("tags")),
		}
		if file, header, err := r.FormFile("file"); err == nil {
			defer file.Close()
			if header.Size > 0 {
				imageFile, imageHeader = file, header
			}
		}
	default:
		pkg.WriteJSONError(w, http.StatusBadRequest, "Unsupported content type")
		return
	}

	project := &Project{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		GitHub:      strings.TrimSpace(req.GitHub),
		URL:         strings.TrimSpace(req.URL),
		Image:       strings.TrimSpace(req.Image),
		Tags:        cleanTags(req.Tags),
	}
	if project.Title == "" {
		pkg.WriteJSONError(w, http.StatusBadRequest, "Title is required")
		return
	}

	if imageFile != nil {
		imageURL, err := h.images.Upload(ctx, imageFile, imageHeader)
		if err != nil {
			h.writeImageError(w, err)
			return
		}
		project.Image = imageURL
	}

	if err := h.repo.Add(ctx, project); err != nil {
		log.Errorf("add project [%s]: %s", project.Title, err)
		span.SetStatus(codes.Error, "add")
		if project.Image != "" && imageFile != nil {
			h.deleteImage(ctx, project.Image)
		}
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}

	log.Tracef("new project %d: [%s] added", project.ID, project.Title)
	h.invalidate(project.ID)

	pkg.WriteJSONOK(w, savedProjectResponse{
		Response: pkg.OK("Project created successfully"),
		Data:     project,
		ImageURL: project.Image,
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "projectsHandler.update")
	defer span.End()

	if !h.parseForm(w, r) {
		return
	}

	idStr := r.FormValue("id")
	title := strings.TrimSpace(r.FormValue("title"))
	if idStr == "" || title == "" {
		pkg.WriteJSONError(w, http.StatusBadRequest, "ID and title are required")
		return
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		pkg.WriteJSONError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}
	span.SetAttributes(attribute.Int("id", id))

	project := &Project{
		ID:          id,
		Title:       title,
		Description: strings.TrimSpace(r.FormValue("description")),
		GitHub:      strings.TrimSpace(r.FormValue("github")),
		URL:         strings.TrimSpace(r.FormValue("url")),
		Tags:        parseTags(r.FormValue("tags")),
	}

	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		if header.Size > 0 {
			// a failed upload keeps the current image
			if imageURL, err := h.images.Upload(ctx, file, header); err != nil {
				log.Errorf("update project %d, upload image [%s]: %s", id, header.Filename, err)
				span.RecordError(err)
			} else {
				project.Image = imageURL
			}
		}
	}

	if err := h.repo.Update(ctx, project); err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			pkg.WriteJSONError(w, http.StatusNotFound, "Project not found")
			return
		}
		log.Errorf("update project %d: %s", id, err)
		span.SetStatus(codes.Error, "update")
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to update project")
		return
	}

	h.invalidate(id)

	pkg.WriteJSONOK(w, savedProjectResponse{
		Response: pkg.OK("Project updated successfully"),
		Data:     project,
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "projectsHandler.delete")
	defer span.End()

	req, err := pkg.DecodeJSONBody[deleteProjectRequest](r)
	if err != nil || req.ID == "" {
		pkg.WriteJSONError(w, http.StatusBadRequest, "Project ID is required")
		return
	}
	id64, err := req.ID.Int64()
	if err != nil {
		pkg.WriteJSONError(w, http.StatusBadRequest, "Project ID is required")
		return
	}
	id := int(id64)
	span.SetAttributes(attribute.Int("id", id))

	deleted, err := h.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			pkg.WriteJSONError(w, http.StatusNotFound, "Project not found")
			return
		}
		log.Errorf("delete project %d: %s", id, err)
		span.SetStatus(codes.Error, "delete")
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to delete project")
		return
	}

	if deleted.Image != "" {
		h.deleteImage(ctx, deleted.Image)
	}
	h.invalidate(id)

	pkg.WriteJSONOK(w, pkg.OK("Project deleted successfully"))
}

// parseForm accepts multipart and url encoded bodies.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			pkg.WriteJSONError(w, http.StatusBadRequest, h.images.SizeLimitMessage())
			return false
		}
		log.Tracef("parse project form: %s", err)
		pkg.WriteJSONError(w, http.StatusBadRequest, "Invalid form data")
		return false
	}
	return true
}

func (h *Handler) writeImageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, images.ErrNotImage):
		pkg.WriteJSONError(w, http.StatusBadRequest, "File must be an image")
	case errors.Is(err, images.ErrTooLarge):
		pkg.WriteJSONError(w, http.StatusBadRequest, h.images.SizeLimitMessage())
	default:
		log.Errorf("upload project image: %s", err)
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to upload image")
	}
}

func (h *Handler) deleteImage(ctx context.Context, imageURL string) {
	if err := h.images.Delete(ctx, imageURL); err != nil {
		log.Warnf("remove project image [%s]: %s", imageURL, err)
	}
}

// parseTags reads either a JSON array or a comma separated list.
func parseTags(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	if strings.HasPrefix(raw, "[") {
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err == nil {
			return cleanTags(tags)
		}
	}
	return cleanTags(strings.Split(raw, ","))
}

func cleanTags(tags []string) []string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			cleaned = append(cleaned, tag)
		}
	}
	return cleaned
}
