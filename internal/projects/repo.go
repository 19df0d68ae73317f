package projects

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/icheme/portfolio/internal/telemetry/tracing"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrTitleEmpty      = errors.New("project title empty")
)

type Project struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	GitHub      string    `json:"github"`
	URL         string    `json:"url"`
	Image       string    `json:"image"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
}

const projectColumns = `id, title, COALESCE(description, ''), COALESCE(github, ''), COALESCE(url, ''), COALESCE(image, ''), tags, created_at`

var _ projectsRepo = (*Repo)(nil)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// Add inserts the project; empty optional fields are stored as NULL.
func (r *Repo) Add(ctx context.Context, project *Project) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.projects.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if project.Title == "" {
		return ErrTitleEmpty
	}
	if project.Tags == nil {
		project.Tags = []string{}
	}

	return r.db.QueryRow(
		ctx,
		`
			INSERT INTO projects (title, description, github, url, image, tags)
			VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6)
			RETURNING id, created_at;
		`,
		project.Title, project.Description, project.GitHub, project.URL, project.Image, project.Tags,
	).Scan(&project.ID, &project.CreatedAt)
}

// Update overwrites every field of the project but the image, which is only
// replaced when project.Image is set. The stored project is written back into project.
func (r *Repo) Update(ctx context.Context, project *Project) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.projects.update")
	span.SetAttributes(attribute.Int("id", project.ID))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if project.Title == "" {
		return ErrTitleEmpty
	}
	if project.Tags == nil {
		project.Tags = []string{}
	}

	row := r.db.QueryRow(
		ctx,
		`
			UPDATE projects
			SET title = $1,
				description = NULLIF($2, ''),
				github = NULLIF($3, ''),
				url = NULLIF($4, ''),
				image = COALESCE(NULLIF($5, ''), image),
				tags = $6
			WHERE id = $7
			RETURNING `+projectColumns+`;
		`,
		project.Title, project.Description, project.GitHub, project.URL, project.Image, project.Tags, project.ID,
	)
	if err := scanProject(row, project); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProjectNotFound
		}
		return err
	}

	return nil
}

// Delete removes the project and returns it, so its image can be cleaned up.
func (r *Repo) Delete(ctx context.Context, id int) (_ *Project, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.projects.delete")
	span.SetAttributes(attribute.Int("id", id))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	project := &Project{}
	row := r.db.QueryRow(ctx, `DELETE FROM projects WHERE id = $1 RETURNING `+projectColumns, id)
	if err := scanProject(row, project); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	return project, nil
}

func (r *Repo) Get(ctx context.Context, id int) (_ *Project, err error) {
	log.Tracef("getting project %d", id)

	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.projects.get")
	span.SetAttributes(attribute.Int("id", id))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	project := &Project{}
	row := r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	if err := scanProject(row, project); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	return project, nil
}

// List returns the projects newest first; limit <= 0 means all of them.
func (r *Repo) List(ctx context.Context, limit int) (_ []*Project, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.projects.list")
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
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id DESC LIMIT $1`,
		limitArg,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []*Project{}
	for rows.Next() {
		project := &Project{}
		if err := scanProject(rows, project); err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}

	return projects, rows.Err()
}

func (r *Repo) Count(ctx context.Context) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.projects.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM projects`).Scan(&count); err != nil {
		return -1, err
	}
	return count, nil
}

func scanProject(row pgx.Row, project *Project) error {
	return row.Scan(
		&project.ID,
		&project.Title,
		&project.Description,
		&project.GitHub,
		&project.URL,
		&project.Image,
		&project.Tags,
		&project.CreatedAt,
	)
}
