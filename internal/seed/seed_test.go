package seed_test

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/johnwards/prefmigrate/internal/domain"
	"github.com/johnwards/prefmigrate/internal/mapping"
	"github.com/johnwards/prefmigrate/internal/seed"
	"github.com/johnwards/prefmigrate/internal/store"
	"github.com/johnwards/prefmigrate/internal/testhelpers"
	"github.com/johnwards/prefmigrate/internal/value"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	db := testhelpers.NewMigratedDB(t)
	return store.New(db, testclock.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
}

func TestSeedInsertsDefaults(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	items := []domain.Item{
		{OriginalKey: "a", TargetKey: "app.a", Type: domain.TypeNumber, Default: value.NewNumber(3), Source: domain.Flat()},
		{OriginalKey: "b", TargetKey: "app.b", Type: domain.TypeString, Source: domain.Flat()},
		{OriginalKey: "c", TargetKey: "app.c", Type: domain.TypeBoolean, Default: value.NewBool(true), Source: domain.Flat()},
	}

	n, err := seed.Seed(ctx, s.DB, s.Preferences, items)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	p, err := s.Preferences.Get(ctx, "app.a")
	if err != nil {
		t.Fatalf("Get app.a: %v", err)
	}
	if p.Value.String() != "3" {
		t.Errorf("app.a = %s, want 3", p.Value)
	}
	if _, err := s.Preferences.Get(ctx, "app.b"); err == nil {
		t.Error("app.b has no default and must not be seeded")
	}
}

func TestSeedNeverOverwrites(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	items := []domain.Item{
		{OriginalKey: "a", TargetKey: "app.a", Type: domain.TypeNumber, Default: value.NewNumber(3), Source: domain.Flat()},
	}
	if _, err := s.Preferences.InsertMissing(ctx, map[string]value.Value{"app.a": value.NewNumber(9)}); err != nil {
		t.Fatalf("InsertMissing: %v", err)
	}

	n, err := seed.Seed(ctx, s.DB, s.Preferences, items)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if n != 0 {
		t.Errorf("inserted = %d, want 0", n)
	}
	p, err := s.Preferences.Get(ctx, "app.a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Value.String() != "9" {
		t.Errorf("app.a = %s, want 9", p.Value)
	}
}

func TestSeedIsIdempotentWithBundledTable(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	items, err := mapping.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	first, err := seed.Seed(ctx, s.DB, s.Preferences, items)
	if err != nil {
		t.Fatalf("first Seed: %v", err)
	}
	if want := len(mapping.Defaults(items)); first != want {
		t.Errorf("first seed inserted %d, want %d", first, want)
	}

	second, err := seed.Seed(ctx, s.DB, s.Preferences, items)
	if err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	if second != 0 {
		t.Errorf("second seed inserted %d, want 0", second)
	}
}

func TestSeedWithoutDefaults(t *testing.T) {
	s := newStore(t)
	n, err := seed.Seed(context.Background(), s.DB, s.Preferences, nil)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if n != 0 {
		t.Errorf("inserted = %d, want 0", n)
	}
}
