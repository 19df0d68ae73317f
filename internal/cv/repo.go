package cv

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/icheme/portfolio/internal/telemetry/tracing"
)

var ErrCVNotFound = errors.New("cv not found")

type File struct {
	ID         int       `json:"id"`
	FileURL    string    `json:"file_url"`
	ObjectPath string    `json:"object_path"`
	UploadedAt time.Time `json:"uploaded_at"`
}

const fileColumns = `id, file_url, COALESCE(object_path, ''), uploaded_at`

var _ cvRepo = (*Repo)(nil)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, file *File) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.cv.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	return r.db.QueryRow(
		ctx,
		`INSERT INTO cv_files (file_url, object_path) VALUES ($1, NULLIF($2, '')) RETURNING id, uploaded_at`,
		file.FileURL, file.ObjectPath,
	).Scan(&file.ID, &file.UploadedAt)
}

// List returns the uploaded CVs newest first.
func (r *Repo) List(ctx context.Context) (_ []*File, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.cv.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(ctx, `SELECT `+fileColumns+` FROM cv_files ORDER BY uploaded_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []*File{}
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.FileURL, &f.ObjectPath, &f.UploadedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	return files, rows.Err()
}

func (r *Repo) Latest(ctx context.Context) (_ *File, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.cv.latest")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	f := &File{}
	err = r.db.QueryRow(
		ctx,
		`SELECT `+fileColumns+` FROM cv_files ORDER BY uploaded_at DESC, id DESC LIMIT 1`,
	).Scan(&f.ID, &f.FileURL, &f.ObjectPath, &f.UploadedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCVNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes the row and returns it, so the stored object can be removed too.
func (r *Repo) Delete(ctx context.Context, id int) (_ *File, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.cv.delete")
	span.SetAttributes(attribute.Int("id", id))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	f := &File{}
	err = r.db.QueryRow(
		ctx,
		`DELETE FROM cv_files WHERE id = $1 RETURNING `+fileColumns,
		id,
	).Scan(&f.ID, &f.FileURL, &f.ObjectPath, &f.UploadedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCVNotFound
		}
		return nil, err
	}
	return f, nil
}

func (r *Repo) Count(ctx context.Context) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.cv.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM cv_files`).Scan(&count); err != nil {
		return -1, err
	}
	return count, nil
}
