package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/rpansync/internal/models"
	"github.com/desertthunder/rpansync/internal/shared"
)

// ImportRunRepository records the history of follow-list imports.
type ImportRunRepository struct {
	db *sql.DB
}

// NewImportRunRepository creates a new [ImportRunRepository] with the given database connection
func NewImportRunRepository(db *sql.DB) *ImportRunRepository {
	return &ImportRunRepository{db: db}
}

// Create inserts a new run, generating its ID when empty.
func (r *ImportRunRepository) Create(ctx context.Context, run *models.ImportRun) error {
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO import_runs (id, state, pages, fetched, added, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.State, run.Pages, run.Fetched, run.Added, nullString(run.Error), run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert import run: %w", err)
	}
	return nil
}

// Update writes the mutable fields of an existing run.
func (r *ImportRunRepository) Update(ctx context.Context, run *models.ImportRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE import_runs
		SET state = ?, pages = ?, fetched = ?, added = ?, error = ?, finished_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		run.State, run.Pages, run.Fetched, run.Added, nullString(run.Error), run.FinishedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update import run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: import run %s", shared.ErrNotFound, run.ID)
	}
	return nil
}

// Get retrieves a run by ID.
func (r *ImportRunRepository) Get(ctx context.Context, id string) (*models.ImportRun, error) {
	query := `
		SELECT id, state, pages, fetched, added, error, started_at, finished_at
		FROM import_runs
		WHERE id = ?
	`
	run, err := scanImportRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: import run %s", shared.ErrNotFound, id)
	}
	return run, err
}

// Recent lists the newest runs first.
func (r *ImportRunRepository) Recent(ctx context.Context, limit int) ([]*models.ImportRun, error) {
	query := `
		SELECT id, state, pages, fetched, added, error, started_at, finished_at
		FROM import_runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query import runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ImportRun
	for rows.Next() {
		run, err := scanImportRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImportRun(row scanner) (*models.ImportRun, error) {
	var (
		run        models.ImportRun
		errorText  sql.NullString
		finishedAt sql.NullTime
	)
	err := row.Scan(&run.ID, &run.State, &run.Pages, &run.Fetched, &run.Added, &errorText, &run.StartedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan import run: %w", err)
	}

	run.Error = errorText.String
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
