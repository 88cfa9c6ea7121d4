package policy

import (
	"context"
	"fmt"
	"time"

	domain "seatalloc/internal/domain/enrollment"
	interfaces "seatalloc/internal/interfaces/infrastructure"
)

// TermWindowOracle opens every enrollment window with its term: both the
// group window and each student's personal window run from the term's start
// date to its end date. Deployments with staggered per-student opening times
// substitute their own oracle.
type TermWindowOracle struct {
	terms interfaces.TermRepository
}

func NewTermWindowOracle(store interfaces.Store) *TermWindowOracle {
	return &TermWindowOracle{terms: store.Terms()}
}

func (o *TermWindowOracle) StudentWindowOpen(ctx context.Context, student *domain.Student, group *domain.Group, at time.Time) (bool, error) {
	return o.GroupWindowOpen(ctx, group, at)
}

func (o *TermWindowOracle) GroupWindowOpen(ctx context.Context, group *domain.Group, at time.Time) (bool, error) {
	term, err := o.terms.GetByID(ctx, group.TermID)
	if err != nil {
		return false, err
	}
	if term == nil {
		return false, fmt.Errorf("term %s not found", group.TermID)
	}
	return !at.Before(term.StartDate) && at.Before(term.EndDate), nil
}

var _ interfaces.WindowOracle = (*TermWindowOracle)(nil)
