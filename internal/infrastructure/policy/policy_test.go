package policy

import (
	"context"
	"testing"
	"time"

	domain "seatalloc/internal/domain/enrollment"
	"seatalloc/internal/infrastructure/repository"

	"github.com/google/uuid"
)

func seedTerm(t *testing.T, store *repository.MemStore) *domain.Term {
	t.Helper()
	term := &domain.Term{
		TermID:             uuid.New(),
		TermCode:           "2026-1",
		StartDate:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:            time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		RemoveDeadline:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PointsLimitInitial: 15,
		PointsLimitFinal:   30,
		LimitRelaxedAt:     time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.Terms().Create(context.Background(), term); err != nil {
		t.Fatalf("Failed to create term: %v", err)
	}
	return term
}

func TestTermBudgetPolicy_TwoPhaseCeiling(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemStore()
	term := seedTerm(t, store)
	policy := NewTermBudgetPolicy(store)

	before := term.LimitRelaxedAt.Add(-time.Hour)
	after := term.LimitRelaxedAt.Add(time.Hour)

	ceiling, err := policy.CurrentCeiling(ctx, term.TermID, before)
	if err != nil {
		t.Fatalf("CurrentCeiling failed: %v", err)
	}
	if ceiling != 15 {
		t.Errorf("Expected initial ceiling 15, got %d", ceiling)
	}

	ceiling, err = policy.CurrentCeiling(ctx, term.TermID, after)
	if err != nil {
		t.Fatalf("CurrentCeiling failed: %v", err)
	}
	if ceiling != 30 {
		t.Errorf("Expected final ceiling 30, got %d", ceiling)
	}

	final, err := policy.FinalCeiling(ctx, term.TermID)
	if err != nil {
		t.Fatalf("FinalCeiling failed: %v", err)
	}
	if final != 30 {
		t.Errorf("Expected final ceiling 30, got %d", final)
	}

	initial, err := policy.InInitialPhase(ctx, term.TermID, before)
	if err != nil {
		t.Fatalf("InInitialPhase failed: %v", err)
	}
	if !initial {
		t.Error("Expected initial phase before the relax instant")
	}
	initial, err = policy.InInitialPhase(ctx, term.TermID, after)
	if err != nil {
		t.Fatalf("InInitialPhase failed: %v", err)
	}
	if initial {
		t.Error("Expected final phase after the relax instant")
	}
}

func TestTermBudgetPolicy_UnknownTerm(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemStore()
	policy := NewTermBudgetPolicy(store)

	if _, err := policy.FinalCeiling(ctx, uuid.New()); err == nil {
		t.Fatal("Expected error for unknown term")
	}
}

func TestTermWindowOracle_OpensWithTheTerm(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemStore()
	term := seedTerm(t, store)
	oracle := NewTermWindowOracle(store)

	group := &domain.Group{GroupID: uuid.New(), TermID: term.TermID}
	student := &domain.Student{StudentID: uuid.New(), Active: true}

	cases := []struct {
		at   time.Time
		open bool
	}{
		{term.StartDate.Add(-time.Hour), false},
		{term.StartDate, true},
		{term.StartDate.Add(24 * time.Hour), true},
		{term.EndDate, false},
	}
	for _, c := range cases {
		open, err := oracle.GroupWindowOpen(ctx, group, c.at)
		if err != nil {
			t.Fatalf("GroupWindowOpen failed: %v", err)
		}
		if open != c.open {
			t.Errorf("GroupWindowOpen at %s = %v, want %v", c.at, open, c.open)
		}

		open, err = oracle.StudentWindowOpen(ctx, student, group, c.at)
		if err != nil {
			t.Fatalf("StudentWindowOpen failed: %v", err)
		}
		if open != c.open {
			t.Errorf("StudentWindowOpen at %s = %v, want %v", c.at, open, c.open)
		}
	}
}
