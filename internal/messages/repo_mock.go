package messages

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ messagesRepo = (*repoMock)(nil)

type repoMock struct {
	Messages map[int]*Message
	Err      error
	nextID   int
	mutex    sync.Mutex
}

func newRepoMock() *repoMock {
	return &repoMock{
		Messages: make(map[int]*Message),
		nextID:   1,
	}
}

func (r *repoMock) Add(_ context.Context, message *Message) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.Err != nil {
		return r.Err
	}
	message.ID = r.nextID
	r.nextID++
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	stored := *message
	r.Messages[message.ID] = &stored
	return nil
}

func (r *repoMock) List(_ context.Context, limit int) ([]*Message, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.Err != nil {
		return nil, r.Err
	}
	messages := make([]*Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		copied := *m
		messages = append(messages, &copied)
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.After(messages[j].CreatedAt)
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func (r *repoMock) Counts(_ context.Context) (int, int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.Err != nil {
		return -1, -1, r.Err
	}
	unread := 0
	for _, m := range r.Messages {
		if !m.Read {
			unread++
		}
	}
	return len(r.Messages), unread, nil
}

func (r *repoMock) SetRead(_ context.Context, id int, read bool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.Err != nil {
		return r.Err
	}
	m, ok := r.Messages[id]
	if !ok {
		return ErrMessageNotFound
	}
	m.Read = read
	return nil
}

func (r *repoMock) Delete(_ context.Context, ids []int) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.Err != nil {
		return 0, r.Err
	}
	var deleted int64
	for _, id := range ids {
		if _, ok := r.Messages[id]; ok {
			delete(r.Messages, id)
			deleted++
		}
	}
	if deleted == 0 {
		return 0, ErrMessageNotFound
	}
	return deleted, nil
}
