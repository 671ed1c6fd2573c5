package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/rpansync/internal/shared"
)

// metaField is written to every document hash so that a document with no fields still exists.
const metaField = "_id"

// RedisStore keeps each document in a hash of JSON-encoded field values, plus a set of IDs per collection.
//
// Batches run as MULTI/EXEC while WATCHing every document they touch, so a concurrent writer aborts the whole batch
// instead of interleaving with it.
type RedisStore struct {
	rdb  *redis.Client
	keys *KeyBuilder
	log  *log.Logger
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL, environment string, logger *log.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse Redis URL: %w", shared.ErrInvalidConfig, err)
	}

	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("%w: failed to connect to Redis: %w", shared.ErrNetwork, err)
	}

	return NewRedisStoreWithClient(rdb, environment, logger), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(rdb *redis.Client, environment string, logger *log.Logger) *RedisStore {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &RedisStore{
		rdb:  rdb,
		keys: NewKeyBuilder(environment),
		log:  shared.WithLogger(logger, "store", "redis"),
	}
}

// Keys exposes the key layout.
func (s *RedisStore) Keys() *KeyBuilder {
	return s.keys
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	if s.rdb != nil {
		return s.rdb.Close()
	}
	return nil
}

// Get implements [Store].
func (s *RedisStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := validateKey(collection, id); err != nil {
		return Document{}, err
	}

	key := s.keys.KeyDocument(collection, id)
	start := time.Now()
	raw, err := s.rdb.HGetAll(ctx, key).Result()
	s.observe("redis_hgetall", collection, start, err)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", shared.ErrNetwork, err)
	}
	if len(raw) == 0 {
		return Document{}, fmt.Errorf("%w: %s/%s", shared.ErrNotFound, collection, id)
	}
	return decodeHash(collection, id, raw)
}

// Set implements [Store].
func (s *RedisStore) Set(ctx context.Context, collection, id string, fields Fields, merge bool) error {
	b := NewBatch()
	if merge {
		b.Merge(collection, id, fields)
	} else {
		b.Set(collection, id, fields)
	}
	if err := validateBatch(b); err != nil {
		return err
	}

	if err := s.apply(ctx, b.ops); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("%w: %s/%s: %w", shared.ErrWrite, collection, id, err)
		}
		return fmt.Errorf("%w: %w", shared.ErrNetwork, err)
	}
	return nil
}

// Delete implements [Store].
func (s *RedisStore) Delete(ctx context.Context, collection, id string) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}

	var del *redis.IntCmd
	start := time.Now()
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.keys.KeyDocument(collection, id))
		pipe.SRem(ctx, s.keys.KeyCollection(collection), id)
		return nil
	})
	s.observe("redis_del", collection, start, err)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrNetwork, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s/%s", shared.ErrNotFound, collection, id)
	}
	return nil
}

// Query implements [Store]. It scans the collection's member set.
func (s *RedisStore) Query(ctx context.Context, collection, field string, value any) ([]Document, error) {
	want, err := encodeValue(value)
	if err != nil {
		return nil, fmt.Errorf("%w: unencodable query value: %w", shared.ErrInvalidInput, err)
	}
	return s.scan(ctx, "redis_query", collection, func(raw map[string]string) bool {
		return raw[field] == want
	})
}

// List implements [Store].
func (s *RedisStore) List(ctx context.Context, collection string) ([]Document, error) {
	return s.scan(ctx, "redis_list", collection, func(map[string]string) bool { return true })
}

// scan reads every member of collection in id order and keeps the documents match accepts.
func (s *RedisStore) scan(ctx context.Context, op, collection string, match func(map[string]string) bool) ([]Document, error) {
	start := time.Now()
	ids, err := s.rdb.SMembers(ctx, s.keys.KeyCollection(collection)).Result()
	if err != nil {
		s.observe(op, collection, start, err)
		return nil, fmt.Errorf("%w: %w", shared.ErrNetwork, err)
	}
	slices.Sort(ids)

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.keys.KeyDocument(collection, id))
		}
		return nil
	})
	s.observe(op, collection, start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrNetwork, err)
	}

	docs := []Document{}
	for i, cmd := range cmds {
		raw := cmd.Val()
		if len(raw) == 0 || !match(raw) {
			continue
		}
		doc, err := decodeHash(collection, ids[i], raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Commit implements [Store].
func (s *RedisStore) Commit(ctx context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}
	if err := validateBatch(b); err != nil {
		return err
	}

	if err := s.apply(ctx, b.ops); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("%w: batch of %d aborted: %w", shared.ErrWrite, b.Len(), err)
		}
		return fmt.Errorf("%w: %w: %w", shared.ErrWrite, shared.ErrNetwork, err)
	}
	return nil
}

type preparedOp struct {
	Op
	key    string
	values map[string]any
}

// apply runs ops in one MULTI/EXEC guarded by WATCH on every document key.
func (s *RedisStore) apply(ctx context.Context, ops []Op) error {
	prepared := make([]preparedOp, 0, len(ops))
	watched := make([]string, 0, len(ops))
	for _, op := range ops {
		p := preparedOp{Op: op, key: s.keys.KeyDocument(op.Collection, op.ID)}
		if op.Kind != OpDelete {
			values, err := encodeHash(op.ID, op.Fields)
			if err != nil {
				return fmt.Errorf("%w: %s/%s: %w", shared.ErrInvalidInput, op.Collection, op.ID, err)
			}
			p.values = values
		}
		prepared = append(prepared, p)
		if !slices.Contains(watched, p.key) {
			watched = append(watched, p.key)
		}
	}

	start := time.Now()
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := s.existing(ctx, tx, prepared)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, p := range prepared {
				members := s.keys.KeyCollection(p.Collection)
				switch p.Kind {
				case OpSet:
					pipe.Del(ctx, p.key)
					pipe.HSet(ctx, p.key, p.values)
					pipe.SAdd(ctx, members, p.ID)
					exists[p.key] = true
				case OpMerge:
					pipe.HSet(ctx, p.key, p.values)
					pipe.SAdd(ctx, members, p.ID)
					exists[p.key] = true
				case OpUpdate:
					if exists[p.key] {
						pipe.HSet(ctx, p.key, p.values)
					}
				case OpDelete:
					pipe.Del(ctx, p.key)
					pipe.SRem(ctx, members, p.ID)
					exists[p.key] = false
				}
			}
			return nil
		})
		return err
	}, watched...)

	s.log.Debug("redis_commit", "ops", len(prepared), "duration", time.Since(start), "err", err)
	return err
}

// existing reports which update targets are stored. The keys are watched, so the answer holds until EXEC.
func (s *RedisStore) existing(ctx context.Context, tx *redis.Tx, ops []preparedOp) (map[string]bool, error) {
	exists := make(map[string]bool)
	for _, p := range ops {
		if p.Kind != OpUpdate {
			continue
		}
		if _, checked := exists[p.key]; checked {
			continue
		}
		n, err := tx.Exists(ctx, p.key).Result()
		if err != nil {
			return nil, err
		}
		exists[p.key] = n > 0
	}
	return exists, nil
}

func (s *RedisStore) observe(op, collection string, start time.Time, err error) {
	dur := time.Since(start)
	if err != nil {
		s.log.Info(op, "collection", collection, "duration", dur, "err", err)
		return
	}
	s.log.Debug(op, "collection", collection, "duration", dur)
}

func encodeHash(id string, fields Fields) (map[string]any, error) {
	values := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		if k == metaField {
			continue
		}
		enc, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		values[k] = enc
	}
	values[metaField] = id
	return values, nil
}

func decodeHash(collection, id string, raw map[string]string) (Document, error) {
	fields := make(Fields, len(raw))
	for k, v := range raw {
		if k == metaField {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return Document{}, fmt.Errorf("failed to decode field %s of %s/%s: %w", k, collection, id, err)
		}
		fields[k] = decoded
	}
	return Document{Collection: collection, ID: id, Fields: fields}, nil
}
