package repositories

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/desertthunder/rpansync/internal/models"
	"github.com/desertthunder/rpansync/internal/shared"
)

func TestImportRunRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create generates ID", func(t *testing.T) {
		repo := NewImportRunRepository(setupTestDB(t))
		run := models.NewImportRun("", "importing")

		if err := repo.Create(ctx, run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
		if run.ID == "" {
			t.Error("run ID should be set after creation")
		}
	})

	t.Run("Update and Get", func(t *testing.T) {
		repo := NewImportRunRepository(setupTestDB(t))
		run := models.NewImportRun("", "importing")
		if err := repo.Create(ctx, run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		run.Pages = 2
		run.Fetched = 3
		run.Added = 1
		run.Finish("failed", fmt.Errorf("boom"))
		if err := repo.Update(ctx, run); err != nil {
			t.Fatalf("failed to update run: %v", err)
		}

		got, err := repo.Get(ctx, run.ID)
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.State != "failed" || got.Pages != 2 || got.Fetched != 3 || got.Added != 1 {
			t.Errorf("unexpected run: %+v", got)
		}
		if got.Error != "boom" {
			t.Errorf("expected error text boom, got %q", got.Error)
		}
		if got.FinishedAt == nil {
			t.Error("expected finished_at to be set")
		}
	})

	t.Run("Get not found", func(t *testing.T) {
		repo := NewImportRunRepository(setupTestDB(t))
		if _, err := repo.Get(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Update not found", func(t *testing.T) {
		repo := NewImportRunRepository(setupTestDB(t))
		run := models.NewImportRun("missing", "done")
		if err := repo.Update(ctx, run); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Recent newest first", func(t *testing.T) {
		repo := NewImportRunRepository(setupTestDB(t))
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		for i, id := range []string{"old", "mid", "new"} {
			run := models.NewImportRun(id, "done")
			run.StartedAt = base.Add(time.Duration(i) * time.Hour)
			if err := repo.Create(ctx, run); err != nil {
				t.Fatalf("failed to create %s: %v", id, err)
			}
		}

		runs, err := repo.Recent(ctx, 2)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "mid" {
			t.Errorf("unexpected order: %v", runs)
		}
		if runs[0].FinishedAt != nil {
			t.Error("unfinished run should have nil finished_at")
		}
	})

	t.Run("Validate", func(t *testing.T) {
		repo := NewImportRunRepository(setupTestDB(t))
		run := &models.ImportRun{ID: "x"}
		if err := repo.Create(ctx, run); err == nil {
			t.Error("expected validation error")
		}
	})
}
