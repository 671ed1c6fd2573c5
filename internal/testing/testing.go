// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/desertthunder/rpansync/internal/docstore"
	"github.com/desertthunder/rpansync/internal/models"
	"github.com/desertthunder/rpansync/internal/shared"
)

// MustDatabase opens a migrated in-memory SQLite database closed at the end of the test.
func MustDatabase(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if _, err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// MustRedisStore starts an in-process Redis and returns a [docstore.RedisStore] on it.
func MustRedisStore(t *testing.T) (*miniredis.Miniredis, *docstore.RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := docstore.NewRedisStore(context.Background(), "redis://"+mr.Addr(), "test", nil)
	if err != nil {
		t.Fatalf("failed to connect to test redis: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return mr, store
}

// FlakyStore wraps a [docstore.Store] and fails selected operations on demand.
type FlakyStore struct {
	docstore.Store

	mu        sync.Mutex
	commitErr error
	setErr    error
	deleteErr error
	queryErr  error
	commits   []int
}

func NewFlakyStore(inner docstore.Store) *FlakyStore {
	return &FlakyStore{Store: inner}
}

func (f *FlakyStore) FailCommit(err error) { f.mu.Lock(); f.commitErr = err; f.mu.Unlock() }
func (f *FlakyStore) FailSet(err error)    { f.mu.Lock(); f.setErr = err; f.mu.Unlock() }
func (f *FlakyStore) FailDelete(err error) { f.mu.Lock(); f.deleteErr = err; f.mu.Unlock() }
func (f *FlakyStore) FailQuery(err error)  { f.mu.Lock(); f.queryErr = err; f.mu.Unlock() }

// Commits returns the op count of every Commit call, failed ones included.
func (f *FlakyStore) Commits() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.commits...)
}

func (f *FlakyStore) Commit(ctx context.Context, b *docstore.Batch) error {
	f.mu.Lock()
	if b != nil && b.Len() > 0 {
		f.commits = append(f.commits, b.Len())
	}
	err := f.commitErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Commit(ctx, b)
}

func (f *FlakyStore) Set(ctx context.Context, collection, id string, fields docstore.Fields, merge bool) error {
	f.mu.Lock()
	err := f.setErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Set(ctx, collection, id, fields, merge)
}

func (f *FlakyStore) Delete(ctx context.Context, collection, id string) error {
	f.mu.Lock()
	err := f.deleteErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Delete(ctx, collection, id)
}

func (f *FlakyStore) Query(ctx context.Context, collection, field string, value any) ([]docstore.Document, error) {
	f.mu.Lock()
	err := f.queryErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.Query(ctx, collection, field, value)
}

func (f *FlakyStore) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	f.mu.Lock()
	err := f.queryErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.List(ctx, collection)
}

// FakeFollows serves a fixed sequence of follow-list pages.
//
// With Endless set, every page after the scripted ones repeats the last page with a fresh non-vacant cursor.
type FakeFollows struct {
	Pages   []models.Page
	Endless bool
	FailAt  int // 1-based request number that fails; 0 never fails
	Err     error

	mu      sync.Mutex
	Cursors []models.Cursor
}

func (f *FakeFollows) FollowedPage(ctx context.Context, cursor models.Cursor) (models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Cursors = append(f.Cursors, cursor)
	n := len(f.Cursors)
	if f.FailAt > 0 && n == f.FailAt {
		return models.Page{}, f.Err
	}
	if n <= len(f.Pages) {
		return f.Pages[n-1], nil
	}
	if f.Endless && len(f.Pages) > 0 {
		page := f.Pages[len(f.Pages)-1]
		page.Next = models.Cursor(fmt.Sprintf("t5_page%d", n))
		return page, nil
	}
	return models.Page{}, nil
}

// Calls is the number of page requests made.
func (f *FakeFollows) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Cursors)
}

// FakeProfiles resolves icons from a map; names in Fail return Err.
type FakeProfiles struct {
	Icons map[string]string
	Fail  map[string]bool
	Err   error

	mu     sync.Mutex
	Lookup []string
}

func (f *FakeProfiles) UserProfile(ctx context.Context, username string) (models.RedditProfile, error) {
	f.mu.Lock()
	f.Lookup = append(f.Lookup, username)
	f.mu.Unlock()

	if f.Fail[username] {
		err := f.Err
		if err == nil {
			err = errors.New("profile lookup failed")
		}
		return models.RedditProfile{}, err
	}
	icon, ok := f.Icons[username]
	if !ok {
		icon = models.DefaultIcons[0]
	}
	return models.RedditProfile{Username: username, IconURL: icon}, nil
}

// Lookups is the number of profile requests made.
func (f *FakeProfiles) Lookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Lookup)
}

// UserPage builds a page of user-profile entries, each with an icon, followed by next.
func UserPage(next models.Cursor, usernames ...string) models.Page {
	items := make([]models.FollowedAccount, 0, len(usernames))
	for _, name := range usernames {
		items = append(items, models.FollowedAccount{
			DisplayName:   "u_" + name,
			SubredditType: "user",
			IconImg:       "https://styles.redditmedia.com/" + name + ".png",
		})
	}
	return models.Page{Items: items, Next: next}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
