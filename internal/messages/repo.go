package messages

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/icheme/portfolio/internal/telemetry/tracing"
)

var ErrMessageNotFound = errors.New("message not found")

type Message struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

var _ messagesRepo = (*Repo)(nil)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, message *Message) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.messages.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	return r.db.QueryRow(
		ctx,
		`INSERT INTO messages (name, email, message) VALUES ($1, $2, $3) RETURNING id, read, created_at`,
		message.Name, message.Email, message.Message,
	).Scan(&message.ID, &message.Read, &message.CreatedAt)
}

// List returns the messages newest first; limit <= 0 means all of them.
func (r *Repo) List(ctx context.Context, limit int) (_ []*Message, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.messages.list")
	span.SetAttributes(attribute.Int("limit", limit))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT id, name, email, message, read, created_at FROM messages ORDER BY created_at DESC, id DESC LIMIT $1`,
		limitArg,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Message, &m.Read, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// Counts returns the number of all and of unread messages.
func (r *Repo) Counts(ctx context.Context) (total int, unread int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.messages.counts")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	err = r.db.QueryRow(
		ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT read) FROM messages`,
	).Scan(&total, &unread)
	if err != nil {
		return -1, -1, err
	}
	return total, unread, nil
}

func (r *Repo) SetRead(ctx context.Context, id int, read bool) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.messages.setRead")
	span.SetAttributes(attribute.Int("id", id))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	tag, err := r.db.Exec(ctx, `UPDATE messages SET read = $1 WHERE id = $2`, read, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// Delete removes the given messages and returns how many were found.
func (r *Repo) Delete(ctx context.Context, ids []int) (_ int64, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.messages.delete")
	span.SetAttributes(attribute.IntSlice("ids", ids))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	tag, err := r.db.Exec(ctx, `DELETE FROM messages WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrMessageNotFound
	}
	return tag.RowsAffected(), nil
}

func (r *Repo) Get(ctx context.Context, id int) (_ *Message, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.messages.get")
	span.SetAttributes(attribute.Int("id", id))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	m := &Message{}
	err = r.db.QueryRow(
		ctx,
		`SELECT id, name, email, message, read, created_at FROM messages WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.Name, &m.Email, &m.Message, &m.Read, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return m, nil
}
