package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/icheme/portfolio/internal/telemetry/tracing"
	"github.com/icheme/portfolio/pkg"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// DiskApi keeps objects on the local disk, under <root>/<bucket>/<path>.
// Used in development, where the service itself serves the files.
type DiskApi struct {
	rootPath      string
	publicBaseURL string
	mutex         sync.Mutex
}

func NewDiskApi(rootPath, publicBaseURL string) (*DiskApi, error) {
	if rootPath == "" {
		return nil, errors.New("root path cannot be empty")
	}
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("create root folder: %w", err)
	}
	if exists, err := pkg.PathExists(rootPath, true); err != nil || !exists {
		return nil, fmt.Errorf("root folder [%s] unusable: %v", rootPath, err)
	}
	return &DiskApi{
		rootPath:      rootPath,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

func (da *DiskApi) objectFilePath(bucket, objectPath string) string {
	return filepath.Join(da.rootPath, bucket, filepath.FromSlash(objectPath))
}

func (da *DiskApi) PublicURL(bucket, objectPath string) string {
	return fmt.Sprintf("%s/%s/%s", da.publicBaseURL, url.PathEscape(bucket), escapePath(objectPath))
}

func (da *DiskApi) Upload(ctx context.Context, params UploadParams) (_ string, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "diskApi.upload")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("bucket", params.Bucket))
	span.SetAttributes(attribute.String("object.path", params.Path))

	if err := validateObject(params.Bucket, params.Path); err != nil {
		return "", err
	}

	dstPath := da.objectFilePath(params.Bucket, params.Path)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return "", fmt.Errorf("create object folder: %w", err)
	}

	// write to a temp file first, then move it in place while holding the lock
	tmp, err := os.CreateTemp(filepath.Dir(dstPath), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	written, err := io.Copy(tmp, params.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}

	da.mutex.Lock()
	defer da.mutex.Unlock()

	if !params.Upsert {
		if _, statErr := os.Stat(dstPath); statErr == nil {
			return "", fmt.Errorf("%s/%s: %w", params.Bucket, params.Path, ErrObjectExists)
		}
	}

	if err := os.Rename(tmp.Name(), dstPath); err != nil {
		return "", fmt.Errorf("move object in place: %w", err)
	}

	log.Debugf("disk api: saved [%s/%s], %d bytes", params.Bucket, params.Path, written)

	return da.PublicURL(params.Bucket, params.Path), nil
}

func (da *DiskApi) Delete(ctx context.Context, bucket, objectPath string) (err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "diskApi.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := validateObject(bucket, objectPath); err != nil {
		return err
	}

	da.mutex.Lock()
	defer da.mutex.Unlock()

	if err := os.Remove(da.objectFilePath(bucket, objectPath)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrObjectNotFound
		}
		return err
	}

	log.Debugf("disk api: deleted [%s/%s]", bucket, objectPath)
	return nil
}

// FileHandler serves stored objects; mount it with http.StripPrefix.
// Directory listings are not served.
func (da *DiskApi) FileHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		objectPath := strings.TrimPrefix(r.URL.Path, "/")
		bucket, rest, found := strings.Cut(objectPath, "/")
		if !found || validateObject(bucket, rest) != nil {
			http.NotFound(w, r)
			return
		}

		filePath := da.objectFilePath(bucket, rest)
		info, err := os.Stat(filePath)
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		http.ServeFile(w, r, filePath)
	})
}
