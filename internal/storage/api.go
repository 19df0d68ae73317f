package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var _ Api = (*BucketApi)(nil)
var _ Api = (*DiskApi)(nil)
var _ Api = (*MemoryApi)(nil)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectExists   = errors.New("object already exists")
	ErrInvalidPath    = errors.New("invalid object path")
)

const DefaultCacheControl = 3600 * time.Second

type UploadParams struct {
	Bucket      string
	Path        string
	ContentType string
	Body        io.Reader
	Size        int64
	// overwrite an existing object under the same path
	Upsert       bool
	CacheControl time.Duration
}

// Api stores public objects (project images, CVs) in buckets.
type Api interface {
	Upload(ctx context.Context, params UploadParams) (publicURL string, err error)
	Delete(ctx context.Context, bucket, objectPath string) error
	PublicURL(bucket, objectPath string) string
}

func validateObject(bucket, objectPath string) error {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return fmt.Errorf("%w: bucket [%s]", ErrInvalidPath, bucket)
	}
	if objectPath == "" || strings.HasPrefix(objectPath, "/") || strings.Contains(objectPath, `\`) {
		return fmt.Errorf("%w: [%s]", ErrInvalidPath, objectPath)
	}
	for _, segment := range strings.Split(objectPath, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return fmt.Errorf("%w: [%s]", ErrInvalidPath, objectPath)
		}
	}
	return nil
}

// SanitizeFilename keeps a client supplied file name safe to use as an object path segment.
func SanitizeFilename(filename string) string {
	filename = path.Base(strings.ReplaceAll(filename, `\`, "/"))
	var b strings.Builder
	for _, r := range filename {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	name := strings.TrimLeft(b.String(), ".")
	if name == "" {
		return "file"
	}
	return name
}

// NewObjectPath returns <dir>/<ulid><ext>, keeping the extension of the original file name.
func NewObjectPath(dir, filename string) string {
	ext := strings.ToLower(path.Ext(SanitizeFilename(filename)))
	return path.Join(dir, ulid.Make().String()+ext)
}

// ObjectPathFromURL recovers the object path from a public URL produced by api.PublicURL.
func ObjectPathFromURL(api Api, bucket, publicURL string) (string, bool) {
	objectPath, found := strings.CutPrefix(publicURL, api.PublicURL(bucket, ""))
	if !found || objectPath == "" {
		return "", false
	}
	unescaped, err := url.PathUnescape(objectPath)
	if err != nil {
		return "", false
	}
	return unescaped, true
}
