package cv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/icheme/portfolio/internal/storage"
	"github.com/icheme/portfolio/internal/telemetry/metrics"
	"github.com/icheme/portfolio/internal/telemetry/tracing"
	"github.com/icheme/portfolio/pkg"
)

const (
	pdfContentType = "application/pdf"
	homeCachePath  = "/"
)

type cvRepo interface {
	Add(ctx context.Context, file *File) error
	List(ctx context.Context) ([]*File, error)
	Latest(ctx context.Context) (*File, error)
	Delete(ctx context.Context, id int) (*File, error)
}

type contentInvalidator interface {
	Invalidate(paths ...string)
}

type uploadResponse struct {
	pkg.Response
	URL string `json:"url"`
	CV  *File  `json:"cv"`
}

type listResponse struct {
	pkg.Response
	CVs []*File `json:"cvs"`
}

type latestResponse struct {
	pkg.Response
	URL        string `json:"url"`
	UploadedAt string `json:"uploaded_at"`
}

type deleteRequest struct {
	ID json.Number `json:"id"`
}

type Handler struct {
	repo           cvRepo
	storage        storage.Api
	cache          contentInvalidator
	bucket         string
	maxUploadSize  int64
	metricsManager *metrics.Manager
}

func NewHandler(
	repo cvRepo,
	storageApi storage.Api,
	cache contentInvalidator,
	bucket string,
	maxUploadSize int64,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		repo:           repo,
		storage:        storageApi,
		cache:          cache,
		bucket:         bucket,
		maxUploadSize:  maxUploadSize,
		metricsManager: metricsManager,
	}
}

func (h *Handler) SetupRoutes(router *mux.Router) {
	cvRouter := router.PathPrefix("/api/cv").Subrouter()
	cvRouter.HandleFunc("/upload", h.handleUpload).Methods("POST").Name("cv-upload")
	cvRouter.HandleFunc("/list", h.handleList).Methods("GET").Name("cv-list")
	cvRouter.HandleFunc("/delete", h.handleDelete).Methods("POST").Name("cv-delete")
	cvRouter.HandleFunc("/latest", h.handleLatest).Methods("GET").Name("cv-latest")
}

// ObjectName returns the stored name of an uploaded CV: cv-<ulid>-<sanitized name>.
func ObjectName(filename string) string {
	return fmt.Sprintf("cv-%s-%s", ulid.Make().String(), storage.SanitizeFilename(filename))
}

func isPDF(contentType, filename string, head []byte) bool {
	if strings.HasPrefix(contentType, pdfContentType) || strings.EqualFold(path.Ext(filename), ".pdf") {
		return http.DetectContentType(head) == pdfContentType
	}
	return false
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "cvHandler.upload")
	defer span.End()

	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		pkg.WriteJSONError(w, http.StatusBadRequest, "Invalid content type")
		return
	}

	file, header, err := pkg.ReadFormFile(w, r, "file", h.maxUploadSize)
	if err != nil {
		switch {
		case errors.Is(err, pkg.ErrNoFormFile):
			pkg.WriteJSONError(w, http.StatusBadRequest, "Missing file")
		case errors.Is(err, pkg.ErrFormTooLarge):
			pkg.WriteJSONError(w, http.StatusBadRequest, h.sizeLimitMessage())
		default:
			log.Tracef("cv upload, read form: %s", err)
			pkg.WriteJSONError(w, http.StatusBadRequest, "Invalid content type")
		}
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		pkg.WriteJSONError(w, http.StatusBadRequest, h.sizeLimitMessage())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		log.Errorf("cv upload, read file [%s]: %s", header.Filename, err)
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if !isPDF(header.Header.Get("Content-Type"), header.Filename, data) {
		pkg.WriteJSONError(w, http.StatusBadRequest, "Only PDF files are allowed")
		return
	}

	objectPath := ObjectName(header.Filename)
	span.SetAttributes(attribute.String("object", objectPath))

	publicURL, err := h.storage.Upload(ctx, storage.UploadParams{
		Bucket:       h.bucket,
		Path:         objectPath,
		ContentType:  pdfContentType,
		Body:         bytes.NewReader(data),
		Size:         int64(len(data)),
		Upsert:       true,
		CacheControl: storage.DefaultCacheControl,
	})
	if err != nil {
		log.Errorf("cv upload, store [%s]: %s", objectPath, err)
		span.SetStatus(codes.Error, "storage")
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to upload CV")
		return
	}
	h.metricsManager.CounterUploads.WithLabelValues(h.bucket).Inc()

	cvFile := &File{
		FileURL:    publicURL,
		ObjectPath: objectPath,
	}
	if err := h.repo.Add(ctx, cvFile); err != nil {
		log.Errorf("cv upload, save [%s]: %s", objectPath, err)
		span.SetStatus(codes.Error, "save")
		h.deleteObject(ctx, objectPath)
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to save CV")
		return
	}

	log.Debugf("cv %d uploaded: %s, %s", cvFile.ID, objectPath, humanize.IBytes(uint64(len(data))))
	h.cache.Invalidate(homeCachePath)

	pkg.WriteJSONOK(w, uploadResponse{
		Response: pkg.OK("CV uploaded successfully"),
		URL:      publicURL,
		CV:       cvFile,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "cvHandler.list")
	defer span.End()

	files, err := h.repo.List(ctx)
	if err != nil {
		log.Errorf("list cvs: %s", err)
		span.SetStatus(codes.Error, "list")
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to fetch CVs")
		return
	}

	pkg.WriteJSONOK(w, listResponse{
		Response: pkg.OK(""),
		CVs:      files,
	})
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "cvHandler.latest")
	defer span.End()

	latest, err := h.repo.Latest(ctx)
	if err != nil {
		if errors.Is(err, ErrCVNotFound) {
			pkg.WriteJSONError(w, http.StatusNotFound, "CV not found")
			return
		}
		log.Errorf("latest cv: %s", err)
		span.SetStatus(codes.Error, "latest")
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Server error")
		return
	}

	pkg.WriteJSONOK(w, latestResponse{
		Response:   pkg.OK(""),
		URL:        latest.FileURL,
		UploadedAt: latest.UploadedAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "cvHandler.delete")
	defer span.End()

	req, err := pkg.DecodeJSONBody[deleteRequest](r)
	if err != nil || req.ID == "" {
		pkg.WriteJSONError(w, http.StatusBadRequest, "CV ID is required")
		return
	}
	id, err := req.ID.Int64()
	if err != nil {
		pkg.WriteJSONError(w, http.StatusBadRequest, "CV ID is required")
		return
	}
	span.SetAttributes(attribute.Int64("id", id))

	deleted, err := h.repo.Delete(ctx, int(id))
	if err != nil {
		if errors.Is(err, ErrCVNotFound) {
			pkg.WriteJSONError(w, http.StatusNotFound, "CV not found")
			return
		}
		log.Errorf("delete cv %d: %s", id, err)
		span.SetStatus(codes.Error, "delete")
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to delete CV")
		return
	}

	objectPath := deleted.ObjectPath
	if objectPath == "" {
		objectPath, _ = storage.ObjectPathFromURL(h.storage, h.bucket, deleted.FileURL)
	}
	if objectPath != "" {
		h.deleteObject(ctx, objectPath)
	}
	h.cache.Invalidate(homeCachePath)

	pkg.WriteJSONOK(w, pkg.OK("CV deleted successfully"))
}

func (h *Handler) deleteObject(ctx context.Context, objectPath string) {
	if err := h.storage.Delete(ctx, h.bucket, objectPath); err != nil {
		log.Warnf("remove cv object [%s/%s]: %s", h.bucket, objectPath, err)
	}
}

func (h *Handler) sizeLimitMessage() string {
	return fmt.Sprintf("File size must be less than %s", humanize.IBytes(uint64(h.maxUploadSize)))
}
