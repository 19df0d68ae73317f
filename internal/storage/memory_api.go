package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

type MemoryObject struct {
	ContentType string
	Data        []byte
}

// MemoryApi keeps objects in memory; meant for tests and local tooling.
type MemoryApi struct {
	Objects map[string]*MemoryObject
	// when set, every Upload fails with it
	UploadErr error
	mutex     sync.Mutex
}

func NewMemoryApi() *MemoryApi {
	return &MemoryApi{
		Objects: make(map[string]*MemoryObject),
	}
}

func memoryKey(bucket, objectPath string) string {
	return bucket + "/" + objectPath
}

func (m *MemoryApi) PublicURL(bucket, objectPath string) string {
	return "memory://" + memoryKey(bucket, objectPath)
}

func (m *MemoryApi) Upload(_ context.Context, params UploadParams) (string, error) {
	if m.UploadErr != nil {
		return "", m.UploadErr
	}
	if err := validateObject(params.Bucket, params.Path); err != nil {
		return "", err
	}

	data, err := io.ReadAll(params.Body)
	if err != nil {
		return "", err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	key := memoryKey(params.Bucket, params.Path)
	if _, ok := m.Objects[key]; ok && !params.Upsert {
		return "", fmt.Errorf("%s: %w", key, ErrObjectExists)
	}
	m.Objects[key] = &MemoryObject{
		ContentType: params.ContentType,
		Data:        data,
	}

	return m.PublicURL(params.Bucket, params.Path), nil
}

func (m *MemoryApi) Delete(_ context.Context, bucket, objectPath string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	key := memoryKey(bucket, objectPath)
	if _, ok := m.Objects[key]; !ok {
		return ErrObjectNotFound
	}
	delete(m.Objects, key)
	return nil
}

func (m *MemoryApi) Get(bucket, objectPath string) (*MemoryObject, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	obj, ok := m.Objects[memoryKey(bucket, objectPath)]
	return obj, ok
}

func (m *MemoryApi) Count() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.Objects)
}
