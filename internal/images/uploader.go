package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/gif"
	"io"
	"mime/multipart"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"github.com/icheme/portfolio/internal/storage"
	"github.com/icheme/portfolio/internal/telemetry/metrics"
	"github.com/icheme/portfolio/internal/telemetry/tracing"
)

const objectDir = "projects"

var (
	ErrNotImage = errors.New("file must be an image")
	ErrTooLarge = errors.New("file too large")
)

// Uploader stores project images, fitting jpeg and png images into maxDimension px first.
type Uploader struct {
	storage        storage.Api
	bucket         string
	maxDimension   int
	maxSize        int64
	metricsManager *metrics.Manager
}

func NewUploader(
	storageApi storage.Api,
	bucket string,
	maxDimension int,
	maxSize int64,
	metricsManager *metrics.Manager,
) *Uploader {
	return &Uploader{
		storage:        storageApi,
		bucket:         bucket,
		maxDimension:   maxDimension,
		maxSize:        maxSize,
		metricsManager: metricsManager,
	}
}

// SizeLimitMessage is the client facing message for files over the limit, e.g. "File size must be less than 10 MiB".
func (u *Uploader) SizeLimitMessage() string {
	return fmt.Sprintf("File size must be less than %s", humanize.IBytes(uint64(u.maxSize)))
}

// Upload validates the file, normalizes it and stores it under projects/<ulid>.<ext>.
func (u *Uploader) Upload(ctx context.Context, file io.Reader, header *multipart.FileHeader) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "imagesUploader.upload")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrNotImage
	}
	if header.Size > u.maxSize {
		return "", fmt.Errorf("%w: %s", ErrTooLarge, humanize.IBytes(uint64(header.Size)))
	}

	raw, err := io.ReadAll(io.LimitReader(file, u.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(raw)) > u.maxSize {
		return "", ErrTooLarge
	}

	body := raw
	if normalized, err := u.normalize(raw, header.Filename); err != nil {
		log.Warnf("image [%s] stored as is: %s", header.Filename, err)
	} else if normalized != nil {
		body = normalized
	}

	objectPath := storage.NewObjectPath(objectDir, header.Filename)
	publicURL, err := u.storage.Upload(ctx, storage.UploadParams{
		Bucket:       u.bucket,
		Path:         objectPath,
		ContentType:  contentType,
		Body:         bytes.NewReader(body),
		Size:         int64(len(body)),
		CacheControl: storage.DefaultCacheControl,
	})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	u.metricsManager.CounterUploads.WithLabelValues(u.bucket).Inc()
	log.Debugf("image [%s] uploaded to %s/%s, %s", header.Filename, u.bucket, objectPath, humanize.IBytes(uint64(len(body))))

	return publicURL, nil
}

// Delete removes an image previously stored by Upload, given its public URL.
func (u *Uploader) Delete(ctx context.Context, publicURL string) error {
	objectPath, ok := storage.ObjectPathFromURL(u.storage, u.bucket, publicURL)
	if !ok {
		return fmt.Errorf("not a stored image: %s", publicURL)
	}
	return u.storage.Delete(ctx, u.bucket, objectPath)
}

// normalize returns nil when the image can be stored unchanged.
func (u *Uploader) normalize(raw []byte, filename string) ([]byte, error) {
	format, err := imaging.FormatFromFilename(filename)
	if err != nil {
		// webp, svg & co.
		return nil, nil
	}
	if format == imaging.GIF {
		// re-encoding would drop the animation frames
		if _, err := gif.DecodeConfig(bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("decode gif: %w", err)
		}
		return nil, nil
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > u.maxDimension || bounds.Dy() > u.maxDimension {
		img = imaging.Fit(img, u.maxDimension, u.maxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}
