package cv

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ cvRepo = (*repoMock)(nil)

type repoMock struct {
	Files  map[int]*File
	Err    error
	nextID int
	mutex  sync.Mutex
}

func newRepoMock() *repoMock {
	return &repoMock{
		Files:  make(map[int]*File),
		nextID: 1,
	}
}

func (r *repoMock) Add(_ context.Context, file *File) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.Err != nil {
		return r.Err
	}
	file.ID = r.nextID
	r.nextID++
	if file.UploadedAt.IsZero() {
		file.UploadedAt = time.Now()
	}
	stored := *file
	r.Files[file.ID] = &stored
	return nil
}

func (r *repoMock) List(_ context.Context) ([]*File, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.Err != nil {
		return nil, r.Err
	}
	files := make([]*File, 0, len(r.Files))
	for _, f := range r.Files {
		copied := *f
		files = append(files, &copied)
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].UploadedAt.After(files[j].UploadedAt)
	})
	return files, nil
}

func (r *repoMock) Latest(ctx context.Context) (*File, error) {
	files, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrCVNotFound
	}
	return files[0], nil
}

func (r *repoMock) Delete(_ context.Context, id int) (*File, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.Err != nil {
		return nil, r.Err
	}
	f, ok := r.Files[id]
	if !ok {
		return nil, ErrCVNotFound
	}
	delete(r.Files, id)
	return f, nil
}
