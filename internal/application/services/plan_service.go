package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application"
	"github.com/sweenu/pretix-postfinance-sub000/internal/domain"
)

// PlanService manages the per-event installment plans and computes the
// installment offer shown at checkout.
type PlanService struct {
	plans  application.PlanRepository
	orders application.OrderStore
	logger *slog.Logger
	now    func() time.Time
}

func NewPlanService(plans application.PlanRepository, orders application.OrderStore, logger *slog.Logger) *PlanService {
	return &PlanService{
		plans:  plans,
		orders: orders,
		logger: logger,
		now:    time.Now,
	}
}

// CreatePlan validates and stores a new plan for an event.
func (s *PlanService) CreatePlan(ctx context.Context, plan *domain.InstallmentPlan) error {
	if err := plan.Validate(); err != nil {
		return application.NewInvalidInputError(err)
	}

	plan.ID = uuid.New().String()
	now := s.now()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	if err := s.plans.Create(ctx, plan); err != nil {
		return application.NewInternalError(err)
	}

	s.logger.Info("installment plan created", "event", plan.EventSlug, "plan_id", plan.ID)
	return nil
}

// UpdatePlan validates and stores changes to an existing plan.
func (s *PlanService) UpdatePlan(ctx context.Context, plan *domain.InstallmentPlan) error {
	if err := plan.Validate(); err != nil {
		return application.NewInvalidInputError(err)
	}

	existing, err := s.plans.FindByID(ctx, plan.ID)
	if err != nil {
		return err
	}

	plan.CreatedAt = existing.CreatedAt
	plan.UpdatedAt = s.now()
	if err := s.plans.Update(ctx, plan); err != nil {
		return application.NewInternalError(err)
	}
	return nil
}

// GetPlan retrieves a plan by id.
func (s *PlanService) GetPlan(ctx context.Context, id string) (*domain.InstallmentPlan, error) {
	return s.plans.FindByID(ctx, id)
}

// PlanForEvent retrieves the plan configured for an event.
func (s *PlanService) PlanForEvent(ctx context.Context, eventSlug string) (*domain.InstallmentPlan, error) {
	return s.plans.FindByEvent(ctx, eventSlug)
}

// OfferForOrder returns the installment counts available for an order, or
// nil when installments are not offered.
func (s *PlanService) OfferForOrder(ctx context.Context, orderCode string) ([]int, error) {
	order, err := s.orders.FindByCode(ctx, orderCode)
	if err != nil {
		return nil, err
	}

	plan, err := s.plans.FindByEvent(ctx, order.EventSlug)
	if err != nil {
		if application.IsErrorNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	return plan.Offer(order.Total, order.EventDate, s.now()), nil
}
