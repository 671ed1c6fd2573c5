package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/rpansync/internal/models"
	"github.com/desertthunder/rpansync/internal/shared"
)

// Settings keys.
const (
	KeySubscriptions   = "user_subscriptions"
	KeyUnsubscribed    = "unsubscribed_users"
	KeyUserID          = "user_id"
	KeyUsername        = "username"
	KeyNotificationsOn = "notifications_on"
)

// LocalStore is the device-side cache of favorited broadcasters and related settings.
//
// Every value is a JSON document in the settings table, one row per key. Writes are serialized.
type LocalStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewLocalStore creates a [LocalStore] over a migrated database.
func NewLocalStore(db *sql.DB) *LocalStore {
	return &LocalStore{db: db}
}

// Get returns the stored subscriptions in last-write order. A missing key yields an empty list.
func (s *LocalStore) Get(ctx context.Context) ([]models.UserSubscription, error) {
	subs := []models.UserSubscription{}
	if _, err := s.load(ctx, KeySubscriptions, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// Set replaces the stored subscriptions wholesale. Later duplicates of a username are dropped.
func (s *LocalStore) Set(ctx context.Context, subs []models.UserSubscription) error {
	for _, sub := range subs {
		if err := sub.Validate(); err != nil {
			return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
		}
	}
	return s.store(ctx, KeySubscriptions, models.Dedupe(subs))
}

// IsSubscribedTo reports exact-match membership of username in list.
func (s *LocalStore) IsSubscribedTo(username string, list []models.UserSubscription) bool {
	return models.IsSubscribedTo(username, list)
}

// Unsubscribed returns the usernames the user explicitly removed. They are never re-imported.
func (s *LocalStore) Unsubscribed(ctx context.Context) ([]string, error) {
	names := []string{}
	if _, err := s.load(ctx, KeyUnsubscribed, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// AddUnsubscribed appends username to the exclusion list unless it is already there.
func (s *LocalStore) AddUnsubscribed(ctx context.Context, username string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("%w: username is required", shared.ErrInvalidInput)
	}
	return s.updateUnsubscribed(ctx, func(names []string) []string {
		if slices.Contains(names, username) {
			return names
		}
		return append(names, username)
	})
}

// RemoveUnsubscribed takes username off the exclusion list, used when it is favorited again by hand.
func (s *LocalStore) RemoveUnsubscribed(ctx context.Context, username string) error {
	return s.updateUnsubscribed(ctx, func(names []string) []string {
		return slices.DeleteFunc(names, func(n string) bool { return n == username })
	})
}

func (s *LocalStore) updateUnsubscribed(ctx context.Context, fn func([]string) []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := []string{}
	if _, err := s.load(ctx, KeyUnsubscribed, &names); err != nil {
		return err
	}
	return s.storeLocked(ctx, KeyUnsubscribed, fn(names))
}

// String returns a string setting and whether it was present.
func (s *LocalStore) String(ctx context.Context, key string) (string, bool, error) {
	var v string
	ok, err := s.load(ctx, key, &v)
	return v, ok, err
}

// SetString stores a string setting.
func (s *LocalStore) SetString(ctx context.Context, key, value string) error {
	return s.store(ctx, key, value)
}

// Bool returns a boolean setting, or def when it was never written.
func (s *LocalStore) Bool(ctx context.Context, key string, def bool) (bool, error) {
	v := def
	if _, err := s.load(ctx, key, &v); err != nil {
		return def, err
	}
	return v, nil
}

// SetBool stores a boolean setting.
func (s *LocalStore) SetBool(ctx context.Context, key string, value bool) error {
	return s.store(ctx, key, value)
}

// Raw returns the stored bytes for key, or nil when absent.
func (s *LocalStore) Raw(ctx context.Context, key string) ([]byte, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", shared.ErrLocalStore, key, err)
	}
	return []byte(raw), nil
}

// RemoveAll deletes every setting except the listed keys.
func (s *LocalStore) RemoveAll(ctx context.Context, except ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := "DELETE FROM settings"
	args := make([]any, 0, len(except))
	if len(except) > 0 {
		query += " WHERE key NOT IN (?" + strings.Repeat(", ?", len(except)-1) + ")"
		for _, k := range except {
			args = append(args, k)
		}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: failed to clear settings: %w", shared.ErrLocalStore, err)
	}
	return nil
}

// load decodes key into dst and reports whether the key exists.
func (s *LocalStore) load(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.Raw(ctx, key)
	if err != nil || raw == nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("%w: failed to decode %s: %w", shared.ErrLocalStore, key, err)
	}
	return true, nil
}

func (s *LocalStore) store(ctx context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(ctx, key, value)
}

func (s *LocalStore) storeLocked(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: failed to encode %s: %w", shared.ErrLocalStore, key, err)
	}

	query := `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: failed to write %s: %w", shared.ErrLocalStore, key, err)
	}
	return nil
}
