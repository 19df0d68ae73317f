package images

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"

	"github.com/icheme/portfolio/internal/telemetry/tracing"
	"github.com/icheme/portfolio/pkg"
)

type uploadResponse struct {
	pkg.Response
	URL string `json:"url"`
}

type Handler struct {
	uploader *Uploader
}

func NewHandler(uploader *Uploader) *Handler {
	return &Handler{
		uploader: uploader,
	}
}

func (h *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/api/upload-image", h.handleUpload).Methods("POST").Name("upload-image")
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "imagesHandler.upload")
	defer span.End()

	file, header, err := pkg.ReadFormFile(w, r, "file", h.uploader.maxSize)
	if err != nil {
		switch {
		case errors.Is(err, pkg.ErrFormTooLarge):
			pkg.WriteJSONError(w, http.StatusBadRequest, h.uploader.SizeLimitMessage())
		case errors.Is(err, pkg.ErrNoFormFile):
			pkg.WriteJSONError(w, http.StatusBadRequest, "No file provided")
		default:
			log.Tracef("upload image, read form: %s", err)
			pkg.WriteJSONError(w, http.StatusBadRequest, "Invalid content type")
		}
		return
	}
	defer file.Close()

	publicURL, err := h.uploader.Upload(ctx, file, header)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotImage):
			pkg.WriteJSONError(w, http.StatusBadRequest, "File must be an image")
		case errors.Is(err, ErrTooLarge):
			pkg.WriteJSONError(w, http.StatusBadRequest, h.uploader.SizeLimitMessage())
		default:
			log.Errorf("upload image [%s]: %s", header.Filename, err)
			span.SetStatus(codes.Error, "upload")
			pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to upload image")
		}
		return
	}

	pkg.WriteJSONOK(w, uploadResponse{
		Response: pkg.OK("Image uploaded successfully"),
		URL:      publicURL,
	})
}
