package billing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kelolahq/kelola-backend/internal/orgs"
	"github.com/kelolahq/kelola-backend/internal/plans"
	"github.com/kelolahq/kelola-backend/pkg/db/models"
	"github.com/kelolahq/kelola-backend/pkg/enums"
	pkgerrors "github.com/kelolahq/kelola-backend/pkg/errors"
	"github.com/kelolahq/kelola-backend/pkg/logger"
	"github.com/kelolahq/kelola-backend/pkg/stripe"
)

const day = 24 * time.Hour

// Fallback period assumed when the gateway cannot be reached. A deliberate
// degraded-mode estimate, not a silent failure; every use is logged so
// support can reconcile manually.
const (
	fallbackTotalDays = 30
	fallbackDaysLeft  = 15
)

// BillingPeriodFetcher looks up the live billing-cycle boundaries.
type BillingPeriodFetcher interface {
	CurrentBillingPeriod(ctx context.Context, subscriptionID string) (*stripe.BillingPeriod, error)
}

// ProrationInput identifies the plan change being previewed.
type ProrationInput struct {
	CurrentPlanID uuid.UUID
	NewPlanID     uuid.UUID
}

// ProrationBreakdown is returned to the caller for rendering; previewing
// never mutates billing state.
type ProrationBreakdown struct {
	CurrentPlanName   string          `json:"current_plan_name"`
	NewPlanName       string          `json:"new_plan_name"`
	Currency          string          `json:"currency"`
	DaysLeft          int             `json:"days_left"`
	TotalDaysInPeriod int             `json:"total_days_in_period"`
	Credit            decimal.Decimal `json:"credit"`
	Charge            decimal.Decimal `json:"charge"`
	AmountDue         decimal.Decimal `json:"amount_due"`
	Estimated         bool            `json:"estimated"`
}

// ProrationServiceParams groups dependencies for the proration service.
type ProrationServiceParams struct {
	OrgRepo  orgs.Repository
	PlanRepo plans.Repository
	Gateway  BillingPeriodFetcher
	Logger   *logger.Logger
	Now      func() time.Time
}

// ProrationService previews prorated charges for mid-cycle plan changes.
type ProrationService struct {
	orgRepo  orgs.Repository
	planRepo plans.Repository
	gateway  BillingPeriodFetcher
	logg     *logger.Logger
	now      func() time.Time
}

// NewProrationService builds a proration service.
func NewProrationService(params ProrationServiceParams) (*ProrationService, error) {
	if params.OrgRepo == nil {
		return nil, fmt.Errorf("org repo required")
	}
	if params.PlanRepo == nil {
		return nil, fmt.Errorf("plan repo required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &ProrationService{
		orgRepo:  params.OrgRepo,
		planRepo: params.PlanRepo,
		gateway:  params.Gateway,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// Preview computes the prorated amount due for switching plans mid-cycle.
func (s *ProrationService) Preview(ctx context.Context, orgID uuid.UUID, input ProrationInput) (*ProrationBreakdown, error) {
	if orgID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization id is required")
	}
	if input.NewPlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "new_plan_id is required")
	}

	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load organization")
	}
	if org == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
	}

	newPlan, err := s.planRepo.FindByID(ctx, input.NewPlanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load new plan")
	}
	if newPlan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "new plan not found")
	}

	// No active external subscription: full price, no credit.
	if !hasActiveSubscription(org) {
		return &ProrationBreakdown{
			NewPlanName: newPlan.Name,
			Currency:    newPlan.Currency,
			Credit:      decimal.Zero,
			Charge:      newPlan.Price,
			AmountDue:   newPlan.Price,
		}, nil
	}

	if input.CurrentPlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "current_plan_id is required")
	}
	currentPlan, err := s.planRepo.FindByID(ctx, input.CurrentPlanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load current plan")
	}
	if currentPlan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "current plan not found")
	}

	daysLeft, totalDays, estimated := s.resolvePeriod(ctx, org)

	credit := prorate(currentPlan.Price, daysLeft, totalDays)
	charge := prorate(newPlan.Price, daysLeft, totalDays)
	amountDue := charge.Sub(credit)
	if amountDue.IsNegative() {
		amountDue = decimal.Zero
	}

	return &ProrationBreakdown{
		CurrentPlanName:   currentPlan.Name,
		NewPlanName:       newPlan.Name,
		Currency:          newPlan.Currency,
		DaysLeft:          daysLeft,
		TotalDaysInPeriod: totalDays,
		Credit:            credit,
		Charge:            charge,
		AmountDue:         amountDue,
		Estimated:         estimated,
	}, nil
}

// resolvePeriod fetches real billing-period boundaries, degrading to the
// documented estimate when the gateway is unavailable.
func (s *ProrationService) resolvePeriod(ctx context.Context, org *models.Organization) (daysLeft, totalDays int, estimated bool) {
	if s.gateway == nil || org.StripeSubscriptionID == nil {
		return fallbackDaysLeft, fallbackTotalDays, true
	}

	period, err := s.gateway.CurrentBillingPeriod(ctx, *org.StripeSubscriptionID)
	if err != nil {
		if s.logg != nil {
			lctx := s.logg.WithFields(ctx, map[string]any{
				"org_id":          org.ID.String(),
				"subscription_id": *org.StripeSubscriptionID,
			})
			s.logg.Warn(lctx, "proration.fallback: gateway period lookup failed, using 30-day estimate")
		}
		return fallbackDaysLeft, fallbackTotalDays, true
	}

	now := s.now().UTC()
	daysLeft = int(math.Ceil(float64(period.End.Sub(now)) / float64(day)))
	if daysLeft < 0 {
		daysLeft = 0
	}
	totalDays = int(math.Round(float64(period.End.Sub(period.Start)) / float64(day)))
	if totalDays <= 0 {
		return fallbackDaysLeft, fallbackTotalDays, true
	}
	if daysLeft > totalDays {
		daysLeft = totalDays
	}
	return daysLeft, totalDays, false
}

func hasActiveSubscription(org *models.Organization) bool {
	return org.SubscriptionStatus == enums.SubscriptionStatusActive &&
		org.StripeSubscriptionID != nil
}

// prorate computes price * daysLeft / totalDays rounded to two places.
func prorate(price decimal.Decimal, daysLeft, totalDays int) decimal.Decimal {
	if totalDays <= 0 || daysLeft <= 0 {
		return decimal.Zero
	}
	return price.
		Mul(decimal.NewFromInt(int64(daysLeft))).
		Div(decimal.NewFromInt(int64(totalDays))).
		Round(2)
}
