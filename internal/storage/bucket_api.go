package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/icheme/portfolio/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// BucketApi talks to a hosted object storage REST API (supabase storage compatible).
type BucketApi struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

func NewBucketApi(baseURL, serviceKey string, httpClient *http.Client) (*BucketApi, error) {
	if baseURL == "" {
		return nil, errors.New("storage base url empty")
	}
	if serviceKey == "" {
		return nil, errors.New("storage service key empty")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &BucketApi{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: httpClient,
	}, nil
}

func escapePath(objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func (api *BucketApi) setAuth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+api.serviceKey)
	req.Header.Set("apikey", api.serviceKey)
}

func (api *BucketApi) PublicURL(bucket, objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", api.baseURL, url.PathEscape(bucket), escapePath(objectPath))
}

func (api *BucketApi) Upload(ctx context.Context, params UploadParams) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "bucketApi.upload")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("bucket", params.Bucket))
	span.SetAttributes(attribute.String("object.path", params.Path))

	if err := validateObject(params.Bucket, params.Path); err != nil {
		return "", err
	}

	// single buffered request, the storage API needs the content length up front
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return "", fmt.Errorf("read upload body: %w", err)
	}
	span.SetAttributes(attribute.Int("object.size", len(body)))

	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", api.baseURL, url.PathEscape(params.Bucket), escapePath(params.Path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new upload request: %w", err)
	}
	api.setAuth(req)

	contentType := params.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	cacheControl := params.CacheControl
	if cacheControl <= 0 {
		cacheControl = DefaultCacheControl
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "max-age="+strconv.Itoa(int(cacheControl.Seconds())))
	req.Header.Set("x-upsert", strconv.FormatBool(params.Upsert))

	resp, err := api.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusConflict {
		return "", fmt.Errorf("%s/%s: %w", params.Bucket, params.Path, ErrObjectExists)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("upload [%s/%s]: %w", params.Bucket, params.Path, responseError(resp))
	}

	log.Debugf("bucket api: uploaded [%s/%s], %d bytes", params.Bucket, params.Path, len(body))

	return api.PublicURL(params.Bucket, params.Path), nil
}

func (api *BucketApi) Delete(ctx context.Context, bucket, objectPath string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "bucketApi.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("bucket", bucket))
	span.SetAttributes(attribute.String("object.path", objectPath))

	if err := validateObject(bucket, objectPath); err != nil {
		return err
	}

	reqBody, err := json.Marshal(struct {
		Prefixes []string `json:"prefixes"`
	}{
		Prefixes: []string{objectPath},
	})
	if err != nil {
		return fmt.Errorf("marshal delete request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/storage/v1/object/%s", api.baseURL, url.PathEscape(bucket))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("new delete request: %w", err)
	}
	api.setAuth(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := api.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return ErrObjectNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delete [%s/%s]: %w", bucket, objectPath, responseError(resp))
	}

	var deleted []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&deleted); err != nil {
		return fmt.Errorf("decode delete response: %w", err)
	}
	if len(deleted) == 0 {
		return ErrObjectNotFound
	}

	log.Debugf("bucket api: deleted [%s/%s]", bucket, objectPath)
	return nil
}

func responseError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
