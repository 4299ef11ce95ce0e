package usecase

import (
	"context"

	"github.com/zodiya/funnel-api/internal/domain/plan"
)

// PlanService exposes the static pricing catalog.
type PlanService struct{}

func NewPlanService() *PlanService {
	return &PlanService{}
}

// List returns the catalog in display order plus the pre-highlighted default.
func (s *PlanService) List(ctx context.Context) ([]plan.Plan, string) {
	_, span := startUsecaseSpan(ctx, "usecase.PlanService.List")
	defer span.End()

	return plan.Catalog(), plan.DefaultPlanID
}
