package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/rpansync/internal/models"
	"github.com/desertthunder/rpansync/internal/shared"
)

func TestLocalStoreErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("ClosedDatabase", func(t *testing.T) {
		db := setupTestDB(t)
		store := NewLocalStore(db)
		db.Close()

		if _, err := store.Get(ctx); !errors.Is(err, shared.ErrLocalStore) {
			t.Errorf("Get: expected ErrLocalStore, got %v", err)
		}
		if err := store.Set(ctx, []models.UserSubscription{models.NewUserSubscription("alice", "")}); !errors.Is(err, shared.ErrLocalStore) {
			t.Errorf("Set: expected ErrLocalStore, got %v", err)
		}
		if err := store.AddUnsubscribed(ctx, "alice"); !errors.Is(err, shared.ErrLocalStore) {
			t.Errorf("AddUnsubscribed: expected ErrLocalStore, got %v", err)
		}
		if err := store.RemoveAll(ctx); !errors.Is(err, shared.ErrLocalStore) {
			t.Errorf("RemoveAll: expected ErrLocalStore, got %v", err)
		}
		if v, err := store.Bool(ctx, KeyNotificationsOn, true); err == nil || !v {
			t.Errorf("Bool: expected default and an error, got %v, %v", v, err)
		}
	})

	t.Run("CorruptValue", func(t *testing.T) {
		db := setupTestDB(t)
		store := NewLocalStore(db)

		if _, err := db.ExecContext(ctx, "INSERT INTO settings (key, value) VALUES (?, ?)", KeySubscriptions, "{not json"); err != nil {
			t.Fatalf("failed to seed corrupt value: %v", err)
		}

		_, err := store.Get(ctx)
		if !errors.Is(err, shared.ErrLocalStore) {
			t.Fatalf("expected ErrLocalStore, got %v", err)
		}
	})

	t.Run("InvalidSubscription", func(t *testing.T) {
		store := NewLocalStore(setupTestDB(t))

		err := store.Set(ctx, []models.UserSubscription{{Username: ""}})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("EmptyUnsubscribedName", func(t *testing.T) {
		store := NewLocalStore(setupTestDB(t))

		if err := store.AddUnsubscribed(ctx, "  "); !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestImportRunRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("ValidationError", func(t *testing.T) {
		repo := NewImportRunRepository(setupTestDB(t))

		if err := repo.Create(ctx, models.NewImportRun("", "")); err == nil {
			t.Fatal("expected validation error for empty state")
		}
	})

	t.Run("DuplicateID", func(t *testing.T) {
		repo := NewImportRunRepository(setupTestDB(t))

		if err := repo.Create(ctx, models.NewImportRun("run-1", "importing")); err != nil {
			t.Fatalf("failed to create first run: %v", err)
		}
		if err := repo.Create(ctx, models.NewImportRun("run-1", "importing")); err == nil {
			t.Fatal("expected error when creating run with duplicate id")
		}
	})

	t.Run("ClosedDatabase", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewImportRunRepository(db)
		db.Close()

		if err := repo.Create(ctx, models.NewImportRun("", "importing")); err == nil {
			t.Error("Create: expected error on closed database")
		}
		if _, err := repo.Get(ctx, "run-1"); err == nil {
			t.Error("Get: expected error on closed database")
		}
		if _, err := repo.Recent(ctx, 5); err == nil {
			t.Error("Recent: expected error on closed database")
		}
	})
}
