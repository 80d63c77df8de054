package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_UpsertContact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first := time.UnixMilli(1_700_000_000_000)

	prev, isNew, err := s.UpsertContact(ctx, "t1", "hash", first)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !isNew || prev != nil {
		t.Fatalf("Expected new customer, got isNew=%v prev=%+v", isNew, prev)
	}

	second := first.Add(2 * time.Hour)
	prev, isNew, err = s.UpsertContact(ctx, "t1", "hash", second)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if isNew {
		t.Error("Expected existing customer")
	}
	if prev == nil || !prev.LastContactAt.Equal(first) {
		t.Fatalf("Expected previous last contact %v, got %+v", first, prev)
	}
	if prev.Status != domain.StatusLead {
		t.Errorf("Expected status LEAD, got %s", prev.Status)
	}

	got, err := s.Get(ctx, "t1", "hash")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !got.LastContactAt.Equal(second) {
		t.Errorf("Expected last contact %v, got %v", second, got.LastContactAt)
	}
	if !got.CreatedAt.Equal(first) {
		t.Errorf("Expected created %v, got %v", first, got.CreatedAt)
	}

	// Same hash under another tenant is a different customer
	if _, isNew, _ := s.UpsertContact(ctx, "t2", "hash", second); !isNew {
		t.Error("Expected tenant isolation")
	}
}

func TestSQLiteStore_UpdateStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.UpsertContact(ctx, "t1", "hash", time.Now()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := s.UpdateStatus(ctx, "t1", "hash", domain.StatusHuman); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, _ := s.Get(ctx, "t1", "hash")
	if got.Status != domain.StatusHuman {
		t.Errorf("Expected HUMAN, got %s", got.Status)
	}

	missing, err := s.Get(ctx, "t1", "other")
	if err != nil || missing != nil {
		t.Errorf("Expected nil customer without error, got %+v, %v", missing, err)
	}
}

func TestSQLiteStore_Recent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	for i := 0; i < 12; i++ {
		dir := domain.DirectionIn
		if i%2 == 1 {
			dir = domain.DirectionOut
		}
		turn := domain.NewTurn("t1", "hash", dir, string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
		if err := s.Append(ctx, turn); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	// Another customer's turns never leak into the history
	s.Append(ctx, domain.NewTurn("t1", "other", domain.DirectionIn, "x", base.Add(time.Hour)))

	turns, err := s.Recent(ctx, "t1", "hash", base, 10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(turns) != 10 {
		t.Fatalf("Expected 10 turns, got %d", len(turns))
	}
	if turns[0].Content != "c" || turns[9].Content != "l" {
		t.Errorf("Expected oldest-first c..l, got %s..%s", turns[0].Content, turns[9].Content)
	}

	turns, _ = s.Recent(ctx, "t1", "hash", base.Add(10*time.Minute), 10)
	if len(turns) != 2 {
		t.Errorf("Expected 2 turns after cutoff, got %d", len(turns))
	}
}

func TestSQLiteStore_RecentSameTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.UnixMilli(1_700_000_000_000)

	s.Append(ctx, domain.NewTurn("t1", "hash", domain.DirectionIn, "first", ts))
	s.Append(ctx, domain.NewTurn("t1", "hash", domain.DirectionOut, "second", ts))

	turns, err := s.Recent(ctx, "t1", "hash", ts.Add(-time.Minute), 10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(turns) != 2 || turns[0].Content != "first" || turns[1].Content != "second" {
		t.Errorf("Expected insertion order for equal timestamps, got %+v", turns)
	}
}

func TestSQLiteStore_Catalog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Replace(ctx, "t1", []domain.CatalogItem{
		{Name: "Heineken", Category: "Cervejas", Price: 7.5, Available: true},
		{Name: "Gelo", Price: 10, Available: true},
		{Name: "Absolut", Category: "Destilados", Price: 99.9, Available: false},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	items, err := s.ListAvailable(ctx, "t1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 available items, got %d", len(items))
	}

	// Replace drops the previous set
	s.Replace(ctx, "t1", []domain.CatalogItem{{Name: "Skol", Price: 4, Available: true}})
	items, _ = s.ListAvailable(ctx, "t1")
	if len(items) != 1 || items[0].Name != "Skol" {
		t.Errorf("Expected only Skol, got %+v", items)
	}

	other, _ := s.ListAvailable(ctx, "t2")
	if len(other) != 0 {
		t.Errorf("Expected empty catalog for t2, got %d", len(other))
	}
}

func TestSQLiteStore_TenantStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SetStatus(ctx, "b", domain.StateConnected)
	s.SetStatus(ctx, "a", domain.StateConnected)
	s.SetStatus(ctx, "c", domain.StateConnected)
	s.SetStatus(ctx, "c", domain.StateDisconnected)

	ids, err := s.ListByStatus(ctx, domain.StateConnected)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("Expected [a b], got %v", ids)
	}
}
