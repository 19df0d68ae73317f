package projects

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ projectsRepo = (*repoMock)(nil)

type repoMock struct {
	Projects map[int]*Project
	// when set, every call fails with it
	Err    error
	nextID int
	mutex  sync.Mutex
}

func newRepoMock() *repoMock {
	return &repoMock{
		Projects: make(map[int]*Project),
		nextID:   1,
	}
}

func (r *repoMock) Add(_ context.Context, project *Project) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.Err != nil {
		return r.Err
	}
	if project.Title == "" {
		return ErrTitleEmpty
	}

	project.ID = r.nextID
	r.nextID++
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now()
	}
	stored := *project
	r.Projects[project.ID] = &stored
	return nil
}

func (r *repoMock) Update(_ context.Context, project *Project) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.Err != nil {
		return r.Err
	}
	stored, ok := r.Projects[project.ID]
	if !ok {
		return ErrProjectNotFound
	}

	if project.Image == "" {
		project.Image = stored.Image
	}
	project.CreatedAt = stored.CreatedAt
	updated := *project
	r.Projects[project.ID] = &updated
	return nil
}

func (r *repoMock) Delete(_ context.Context, id int) (*Project, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.Err != nil {
		return nil, r.Err
	}
	project, ok := r.Projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	delete(r.Projects, id)
	return project, nil
}

func (r *repoMock) Get(_ context.Context, id int) (*Project, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.Err != nil {
		return nil, r.Err
	}
	project, ok := r.Projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	p := *project
	return &p, nil
}

func (r *repoMock) List(_ context.Context, limit int) ([]*Project, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.Err != nil {
		return nil, r.Err
	}

	projects := make([]*Project, 0, len(r.Projects))
	for id := range r.Projects {
		p := *r.Projects[id]
		projects = append(projects, &p)
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})

	if limit > 0 && len(projects) > limit {
		projects = projects[:limit]
	}
	return projects, nil
}
