// Package docstore is a small collection-of-documents store, the hosted backend that subscription records are
// synced to.
//
// Documents are flat maps of JSON-encodable fields addressed by (collection, id). A [Store] supports point reads and
// writes, merge updates that leave unspecified fields untouched, equality queries on a single field, and atomic
// multi-document batches through [Batch].
//
// Two backends exist: [RedisStore] (go-redis, one hash per document) and [PostgresStore] (pgx, one jsonb row per
// document). [Open] selects one from configuration.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/rpansync/internal/shared"
)

// Fields is the content of a document.
type Fields map[string]any

// Document is a stored document.
type Document struct {
	Collection string
	ID         string
	Fields     Fields
}

// Decode copies the document fields into dst through their JSON form.
func (d Document) Decode(dst any) error {
	data, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", d.Collection, d.ID, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode document %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

// OpKind is the kind of a batched write.
type OpKind int

const (
	OpSet OpKind = iota
	OpMerge
	OpDelete
	OpUpdate
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpMerge:
		return "merge"
	case OpDelete:
		return "delete"
	case OpUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Op is a single write inside a [Batch].
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Fields     Fields
}

// Batch collects writes that are committed together or not at all.
//
// Deleting or updating a document that does not exist is not an error inside a batch: the op is skipped.
type Batch struct {
	ops []Op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Set queues a full replacement of the document.
func (b *Batch) Set(collection, id string, fields Fields) *Batch {
	b.ops = append(b.ops, Op{Kind: OpSet, Collection: collection, ID: id, Fields: fields})
	return b
}

// Merge queues an update of the given fields, creating the document if needed.
func (b *Batch) Merge(collection, id string, fields Fields) *Batch {
	b.ops = append(b.ops, Op{Kind: OpMerge, Collection: collection, ID: id, Fields: fields})
	return b
}

// Update queues a merge of fields into the document only if it already exists.
func (b *Batch) Update(collection, id string, fields Fields) *Batch {
	b.ops = append(b.ops, Op{Kind: OpUpdate, Collection: collection, ID: id, Fields: fields})
	return b
}

// Delete queues removal of the document.
func (b *Batch) Delete(collection, id string) *Batch {
	b.ops = append(b.ops, Op{Kind: OpDelete, Collection: collection, ID: id})
	return b
}

// Len is the number of queued writes.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Ops returns the queued writes in order.
func (b *Batch) Ops() []Op {
	return b.ops
}

// Store is the remote document store contract.
type Store interface {
	// Get returns the document or an error wrapping [shared.ErrNotFound].
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set writes fields to the document. With merge, fields not named are kept; without, they are dropped.
	Set(ctx context.Context, collection, id string, fields Fields, merge bool) error
	// Delete removes the document or returns an error wrapping [shared.ErrNotFound].
	Delete(ctx context.Context, collection, id string) error
	// Query returns every document of collection whose field equals value.
	Query(ctx context.Context, collection, field string, value any) ([]Document, error)
	// List returns every document of collection ordered by id.
	List(ctx context.Context, collection string) ([]Document, error)
	// Commit applies all writes of b atomically. On failure nothing is applied and the error wraps
	// [shared.ErrWrite].
	Commit(ctx context.Context, b *Batch) error
	Close() error
}

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg shared.RemoteConfig, logger *log.Logger) (Store, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedisStore(ctx, cfg.RedisURL, cfg.Environment, logger)
	case "postgres":
		return NewPostgresStore(ctx, cfg.PostgresURL, logger)
	default:
		return nil, fmt.Errorf("%w: unknown remote driver %q", shared.ErrInvalidConfig, cfg.Driver)
	}
}

func validateKey(collection, id string) error {
	if collection == "" || id == "" {
		return fmt.Errorf("%w: collection and id are required", shared.ErrInvalidInput)
	}
	return nil
}

func validateBatch(b *Batch) error {
	for _, op := range b.ops {
		if err := validateKey(op.Collection, op.ID); err != nil {
			return err
		}
	}
	return nil
}

// encodeValue is the canonical JSON form of a field value, used for storage and equality queries.
func encodeValue(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
