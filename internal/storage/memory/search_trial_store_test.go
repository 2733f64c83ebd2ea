package memory

import (
	"context"
	"errors"
	"testing"

	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/storage"
)

func TestSearchTrialStore_GetBest(t *testing.T) {
	store := NewSearchTrialStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.SearchTrial{
		{RunID: "run1", TrialID: 0, Family: "logistic", Loss: -0.61, Status: domain.TrialStatusOK},
		{RunID: "run1", TrialID: 1, Family: "logistic", Loss: -0.70, Status: domain.TrialStatusOK},
		{RunID: "run1", TrialID: 2, Family: "logistic", Loss: -0.99, Status: domain.TrialStatusFail, Error: "boom"},
		{RunID: "run1", TrialID: 3, Family: "logistic", Loss: -0.70, Status: domain.TrialStatusOK},
	})
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	best, err := store.GetBest(ctx, "run1")
	if err != nil {
		t.Fatalf("GetBest failed: %v", err)
	}
	if best.TrialID != 1 {
		t.Errorf("expected trial 1 (lowest ok loss, earliest on tie), got %d", best.TrialID)
	}
}

func TestSearchTrialStore_GetBestNoOKTrials(t *testing.T) {
	store := NewSearchTrialStore()
	ctx := context.Background()

	_ = store.InsertBulk(ctx, []*domain.SearchTrial{
		{RunID: "run1", TrialID: 0, Status: domain.TrialStatusFail},
	})

	_, err := store.GetBest(ctx, "run1")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchTrialStore_GetByRunOrderAndCopies(t *testing.T) {
	store := NewSearchTrialStore()
	ctx := context.Background()

	_ = store.InsertBulk(ctx, []*domain.SearchTrial{
		{RunID: "run1", TrialID: 1, Params: map[string]any{"C": 1.0}, Status: domain.TrialStatusOK},
		{RunID: "run1", TrialID: 0, Params: map[string]any{"C": 0.5}, Status: domain.TrialStatusOK},
		{RunID: "run2", TrialID: 0, Status: domain.TrialStatusOK},
	})

	got, err := store.GetByRun(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRun failed: %v", err)
	}
	if len(got) != 2 || got[0].TrialID != 0 || got[1].TrialID != 1 {
		t.Fatalf("unexpected trials: %+v", got)
	}

	got[0].Params["C"] = 100.0
	again, _ := store.GetByRun(ctx, "run1")
	if again[0].Params["C"] != 0.5 {
		t.Errorf("store aliased params map: %v", again[0].Params["C"])
	}
}

func TestSearchTrialStore_DuplicateKey(t *testing.T) {
	store := NewSearchTrialStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.SearchTrial{
		{RunID: "run1", TrialID: 0},
		{RunID: "run1", TrialID: 0},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}
