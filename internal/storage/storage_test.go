package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestValidateObject(t *testing.T) {
	assert.NoError(t, validateObject("cv", "cv-1.pdf"))
	assert.NoError(t, validateObject("project-images", "projects/01H.png"))
	assert.ErrorIs(t, validateObject("", "a.png"), ErrInvalidPath)
	assert.ErrorIs(t, validateObject("a/b", "a.png"), ErrInvalidPath)
	assert.ErrorIs(t, validateObject("cv", ""), ErrInvalidPath)
	assert.ErrorIs(t, validateObject("cv", "/etc/passwd"), ErrInvalidPath)
	assert.ErrorIs(t, validateObject("cv", "../secret"), ErrInvalidPath)
	assert.ErrorIs(t, validateObject("cv", "a//b"), ErrInvalidPath)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "my_cv.pdf", SanitizeFilename("my cv.pdf"))
	assert.Equal(t, "passwd", SanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "evil.png", SanitizeFilename(`C:\temp\evil.png`))
	assert.Equal(t, "file", SanitizeFilename(".."))
	assert.Equal(t, "rsum.pdf", SanitizeFilename("résumé.pdf"))
}

func TestNewObjectPath(t *testing.T) {
	p := NewObjectPath("projects", "Screen Shot.PNG")
	assert.True(t, strings.HasPrefix(p, "projects/"), p)
	assert.True(t, strings.HasSuffix(p, ".png"), p)
	assert.Len(t, strings.TrimSuffix(strings.TrimPrefix(p, "projects/"), ".png"), 26)
	assert.NotEqual(t, p, NewObjectPath("projects", "Screen Shot.PNG"))
}

func TestBucketApi_Upload(t *testing.T) {
	var gotReq *http.Request
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r
		gotBody, _ = io.ReadAll(r.Body)
		if strings.Contains(r.URL.Path, "exists.png") {
			w.WriteHeader(http.StatusConflict)
			return
		}
		if strings.Contains(r.URL.Path, "broken.png") {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
			return
		}
		_, _ = w.Write([]byte(`{"Key":"project-images/projects/a.png"}`))
	}))
	defer server.Close()

	api, err := NewBucketApi(server.URL+"/", "service-key", server.Client())
	require.NoError(t, err)

	publicURL, err := api.Upload(context.Background(), UploadParams{
		Bucket:      "project-images",
		Path:        "projects/a.png",
		ContentType: "image/png",
		Body:        strings.NewReader("png-bytes"),
		Upsert:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/storage/v1/object/public/project-images/projects/a.png", publicURL)

	require.NotNil(t, gotReq)
	assert.Equal(t, http.MethodPost, gotReq.Method)
	assert.Equal(t, "/storage/v1/object/project-images/projects/a.png", gotReq.URL.Path)
	assert.Equal(t, "Bearer service-key", gotReq.Header.Get("Authorization"))
	assert.Equal(t, "service-key", gotReq.Header.Get("apikey"))
	assert.Equal(t, "image/png", gotReq.Header.Get("Content-Type"))
	assert.Equal(t, "max-age=3600", gotReq.Header.Get("Cache-Control"))
	assert.Equal(t, "true", gotReq.Header.Get("x-upsert"))
	assert.Equal(t, "png-bytes", string(gotBody))

	_, err = api.Upload(context.Background(), UploadParams{
		Bucket: "project-images",
		Path:   "projects/exists.png",
		Body:   strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, ErrObjectExists)
	assert.Equal(t, "false", gotReq.Header.Get("x-upsert"))

	_, err = api.Upload(context.Background(), UploadParams{
		Bucket: "project-images",
		Path:   "projects/broken.png",
		Body:   strings.NewReader("x"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")

	_, err = api.Upload(context.Background(), UploadParams{
		Bucket: "project-images",
		Path:   "../x.png",
		Body:   strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestBucketApi_Delete(t *testing.T) {
	var prefixes []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/storage/v1/object/cv", r.URL.Path)
		var body struct {
			Prefixes []string `json:"prefixes"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		prefixes = body.Prefixes
		if len(body.Prefixes) == 1 && body.Prefixes[0] == "missing.pdf" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{"name":"cv-1.pdf"}]`))
	}))
	defer server.Close()

	api, err := NewBucketApi(server.URL, "service-key", server.Client())
	require.NoError(t, err)

	require.NoError(t, api.Delete(context.Background(), "cv", "cv-1.pdf"))
	assert.Equal(t, []string{"cv-1.pdf"}, prefixes)

	assert.ErrorIs(t, api.Delete(context.Background(), "cv", "missing.pdf"), ErrObjectNotFound)
}

func TestNewBucketApi_Errors(t *testing.T) {
	_, err := NewBucketApi("", "key", nil)
	assert.Error(t, err)
	_, err = NewBucketApi("http://storage", "", nil)
	assert.Error(t, err)
}

func TestDiskApi(t *testing.T) {
	root := t.TempDir()
	api, err := NewDiskApi(root, "http://localhost:9000/files/")
	require.NoError(t, err)

	ctx := context.Background()
	publicURL, err := api.Upload(ctx, UploadParams{
		Bucket:      "cv",
		Path:        "cv-1-my_cv.pdf",
		ContentType: "application/pdf",
		Body:        strings.NewReader("%PDF-1.4"),
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/files/cv/cv-1-my_cv.pdf", publicURL)

	content, err := os.ReadFile(filepath.Join(root, "cv", "cv-1-my_cv.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(content))

	// no upsert
	_, err = api.Upload(ctx, UploadParams{Bucket: "cv", Path: "cv-1-my_cv.pdf", Body: strings.NewReader("v2")})
	assert.ErrorIs(t, err, ErrObjectExists)

	// upsert
	_, err = api.Upload(ctx, UploadParams{Bucket: "cv", Path: "cv-1-my_cv.pdf", Body: strings.NewReader("v2"), Upsert: true})
	require.NoError(t, err)
	content, err = os.ReadFile(filepath.Join(root, "cv", "cv-1-my_cv.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))

	// served
	rr := httptest.NewRecorder()
	http.StripPrefix("/files", api.FileHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/files/cv/cv-1-my_cv.pdf", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "v2", rr.Body.String())

	rr = httptest.NewRecorder()
	http.StripPrefix("/files", api.FileHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/files/cv/", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	require.NoError(t, api.Delete(ctx, "cv", "cv-1-my_cv.pdf"))
	assert.ErrorIs(t, api.Delete(ctx, "cv", "cv-1-my_cv.pdf"), ErrObjectNotFound)
}

func TestMemoryApi(t *testing.T) {
	api := NewMemoryApi()
	ctx := context.Background()

	publicURL, err := api.Upload(ctx, UploadParams{Bucket: "cv", Path: "a.pdf", ContentType: "application/pdf", Body: strings.NewReader("x")})
	require.NoError(t, err)
	assert.Equal(t, "memory://cv/a.pdf", publicURL)

	obj, ok := api.Get("cv", "a.pdf")
	require.True(t, ok)
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.Equal(t, 1, api.Count())

	require.NoError(t, api.Delete(ctx, "cv", "a.pdf"))
	assert.ErrorIs(t, api.Delete(ctx, "cv", "a.pdf"), ErrObjectNotFound)
}

func TestObjectPathFromURL(t *testing.T) {
	bucketApi, err := NewBucketApi("https://store.example.com", "key", http.DefaultClient)
	require.NoError(t, err)

	publicURL := bucketApi.PublicURL("project-images", "projects/my shot.png")
	objectPath, ok := ObjectPathFromURL(bucketApi, "project-images", publicURL)
	require.True(t, ok)
	assert.Equal(t, "projects/my shot.png", objectPath)

	_, ok = ObjectPathFromURL(bucketApi, "cv", publicURL)
	assert.False(t, ok)
	_, ok = ObjectPathFromURL(bucketApi, "project-images", "https://elsewhere.com/a.png")
	assert.False(t, ok)

	memoryApi := NewMemoryApi()
	objectPath, ok = ObjectPathFromURL(memoryApi, "cv", "memory://cv/cv-01.pdf")
	require.True(t, ok)
	assert.Equal(t, "cv-01.pdf", objectPath)
}
