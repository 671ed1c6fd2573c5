package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/desertthunder/rpansync/internal/shared"
)

const documentsSchema = `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data JSONB NOT NULL DEFAULT '{}'::jsonb,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (collection, id)
	)
`

// PostgresStore keeps each document as a jsonb row. Merge updates use the jsonb concatenation operator.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *log.Logger
}

// NewPostgresStore creates the connection pool, pings it and ensures the documents table exists.
func NewPostgresStore(ctx context.Context, databaseURL string, logger *log.Logger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse database URL: %w", shared.ErrInvalidConfig, err)
	}

	config.MaxConns = 4
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create connection pool: %w", shared.ErrNetwork, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", shared.ErrNetwork, err)
	}

	if _, err := pool.Exec(ctx, documentsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}

	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &PostgresStore{pool: pool, log: shared.WithLogger(logger, "store", "postgres")}, nil
}

// Close closes the database connection pool
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := validateKey(collection, id); err != nil {
		return Document{}, err
	}

	var data []byte
	err := s.pool.QueryRow(ctx, "SELECT data FROM documents WHERE collection = $1 AND id = $2", collection, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %s/%s", shared.ErrNotFound, collection, id)
	}
	if err != nil {
		return Document{}, classify(err)
	}
	return decodeRow(collection, id, data)
}

// Set implements [Store].
func (s *PostgresStore) Set(ctx context.Context, collection, id string, fields Fields, merge bool) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	query, args, err := upsert(Op{Kind: opKind(merge), Collection: collection, ID: id, Fields: fields})
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = s.pool.Exec(ctx, query, args...)
	s.log.Debug("pg_set", "collection", collection, "merge", merge, "duration", time.Since(start), "err", err)
	if err != nil {
		return classify(err)
	}
	return nil
}

// Delete implements [Store].
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, "DELETE FROM documents WHERE collection = $1 AND id = $2", collection, id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", shared.ErrNotFound, collection, id)
	}
	return nil
}

// Query implements [Store].
func (s *PostgresStore) Query(ctx context.Context, collection, field string, value any) ([]Document, error) {
	want, err := encodeValue(value)
	if err != nil {
		return nil, fmt.Errorf("%w: unencodable query value: %w", shared.ErrInvalidInput, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, data FROM documents
		WHERE collection = $1 AND data -> $2 = $3::jsonb
		ORDER BY id
	`, collection, field, want)
	if err != nil {
		return nil, classify(err)
	}
	return collectRows(collection, rows)
}

// List implements [Store].
func (s *PostgresStore) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, data FROM documents WHERE collection = $1 ORDER BY id", collection)
	if err != nil {
		return nil, classify(err)
	}
	return collectRows(collection, rows)
}

func collectRows(collection string, rows pgx.Rows) ([]Document, error) {
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeRow(collection, id, data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return docs, nil
}

// Commit implements [Store] with one transaction carrying a [pgx.Batch].
func (s *PostgresStore) Commit(ctx context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}
	if err := validateBatch(b); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, op := range b.ops {
		switch op.Kind {
		case OpDelete:
			batch.Queue("DELETE FROM documents WHERE collection = $1 AND id = $2", op.Collection, op.ID)
			continue
		case OpUpdate:
			query, args, err := update(op)
			if err != nil {
				return err
			}
			batch.Queue(query, args...)
			continue
		}
		query, args, err := upsert(op)
		if err != nil {
			return err
		}
		batch.Queue(query, args...)
	}

	start := time.Now()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	s.log.Debug("pg_commit", "ops", b.Len(), "duration", time.Since(start), "err", err)
	if err != nil {
		return fmt.Errorf("%w: batch of %d: %w", shared.ErrWrite, b.Len(), classify(err))
	}
	return nil
}

func opKind(merge bool) OpKind {
	if merge {
		return OpMerge
	}
	return OpSet
}

func upsert(op Op) (string, []any, error) {
	fields := op.Fields
	if fields == nil {
		fields = Fields{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s/%s: %w", shared.ErrInvalidInput, op.Collection, op.ID, err)
	}

	update := "data = EXCLUDED.data"
	if op.Kind == OpMerge {
		update = "data = documents.data || EXCLUDED.data"
	}
	query := `
		INSERT INTO documents (collection, id, data, updated_at) VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (collection, id) DO UPDATE SET ` + update + `, updated_at = now()
	`
	return query, []any{op.Collection, op.ID, string(data)}, nil
}

// update merges into an existing row and matches nothing when the document is missing.
func update(op Op) (string, []any, error) {
	fields := op.Fields
	if fields == nil {
		fields = Fields{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s/%s: %w", shared.ErrInvalidInput, op.Collection, op.ID, err)
	}
	query := `
		UPDATE documents SET data = data || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2
	`
	return query, []any{op.Collection, op.ID, string(data)}, nil
}

func decodeRow(collection, id string, data []byte) (Document, error) {
	fields := Fields{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return Document{}, fmt.Errorf("failed to decode document %s/%s: %w", collection, id, err)
	}
	return Document{Collection: collection, ID: id, Fields: fields}, nil
}

// classify maps driver errors onto the shared taxonomy: server-side rejections are write errors,
// everything else is treated as transport failure.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w: %s: %w", shared.ErrWrite, pgErr.Code, err)
	}
	return fmt.Errorf("%w: %w", shared.ErrNetwork, err)
}
