package policy

import (
	"context"
	"fmt"
	"time"

	interfaces "seatalloc/internal/interfaces/infrastructure"

	"github.com/google/uuid"
)

// TermBudgetPolicy reads the two-phase points ceiling off the term row:
// the initial ceiling applies until the term's limit_relaxed_at instant,
// the final ceiling after it.
type TermBudgetPolicy struct {
	terms interfaces.TermRepository
}

func NewTermBudgetPolicy(store interfaces.Store) *TermBudgetPolicy {
	return &TermBudgetPolicy{terms: store.Terms()}
}

func (p *TermBudgetPolicy) CurrentCeiling(ctx context.Context, termID uuid.UUID, at time.Time) (int, error) {
	term, err := p.terms.GetByID(ctx, termID)
	if err != nil {
		return 0, err
	}
	if term == nil {
		return 0, fmt.Errorf("term %s not found", termID)
	}
	if at.Before(term.LimitRelaxedAt) {
		return term.PointsLimitInitial, nil
	}
	return term.PointsLimitFinal, nil
}

func (p *TermBudgetPolicy) FinalCeiling(ctx context.Context, termID uuid.UUID) (int, error) {
	term, err := p.terms.GetByID(ctx, termID)
	if err != nil {
		return 0, err
	}
	if term == nil {
		return 0, fmt.Errorf("term %s not found", termID)
	}
	return term.PointsLimitFinal, nil
}

func (p *TermBudgetPolicy) InInitialPhase(ctx context.Context, termID uuid.UUID, at time.Time) (bool, error) {
	term, err := p.terms.GetByID(ctx, termID)
	if err != nil {
		return false, err
	}
	if term == nil {
		return false, fmt.Errorf("term %s not found", termID)
	}
	return at.Before(term.LimitRelaxedAt), nil
}

var _ interfaces.BudgetPolicy = (*TermBudgetPolicy)(nil)
