package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kelolahq/kelola-backend/internal/orgs"
	"github.com/kelolahq/kelola-backend/pkg/db/models"
	"github.com/kelolahq/kelola-backend/pkg/enums"
	pkgerrors "github.com/kelolahq/kelola-backend/pkg/errors"
	"github.com/kelolahq/kelola-backend/pkg/stripe"
)

type fakeOrgRepo struct {
	org *models.Organization
}

func (f *fakeOrgRepo) WithTx(_ *gorm.DB) orgs.Repository { return f }

func (f *fakeOrgRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	if f.org == nil || f.org.ID != id {
		return nil, nil
	}
	return f.org, nil
}

func (f *fakeOrgRepo) Update(_ context.Context, org *models.Organization) error {
	f.org = org
	return nil
}

func (f *fakeOrgRepo) SetStripeCustomerID(_ context.Context, _ uuid.UUID, customerID string) error {
	if f.org != nil {
		f.org.StripeCustomerID = &customerID
	}
	return nil
}

func (f *fakeOrgRepo) ListOverdueTrials(_ context.Context, _ time.Time, _ int) ([]models.Organization, error) {
	return nil, nil
}

func (f *fakeOrgRepo) SoftDelete(_ context.Context, _ uuid.UUID) error { return nil }

type stubPlanRepo struct {
	plans map[uuid.UUID]*models.SubscriptionPlan
}

func (s *stubPlanRepo) FindByID(_ context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	return s.plans[id], nil
}

func (s *stubPlanRepo) FindBySlug(_ context.Context, slug string) (*models.SubscriptionPlan, error) {
	for _, p := range s.plans {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, nil
}

func (s *stubPlanRepo) List(_ context.Context) ([]models.SubscriptionPlan, error) {
	out := make([]models.SubscriptionPlan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, *p)
	}
	return out, nil
}

type stubGateway struct {
	period *stripe.BillingPeriod
	err    error
	calls  int
}

func (s *stubGateway) CurrentBillingPeriod(_ context.Context, _ string) (*stripe.BillingPeriod, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.period, nil
}

func strPtr(s string) *string { return &s }

func uuidPtr(id uuid.UUID) *uuid.UUID { return &id }

func newProrationFixture(t *testing.T, org *models.Organization, gateway BillingPeriodFetcher, now time.Time) (*ProrationService, uuid.UUID, uuid.UUID) {
	t.Helper()

	currentID := uuid.New()
	newID := uuid.New()
	planRepo := &stubPlanRepo{plans: map[uuid.UUID]*models.SubscriptionPlan{
		currentID: {
			ID:       currentID,
			Name:     "Team",
			Slug:     "team",
			Price:    decimal.NewFromInt(100000),
			Currency: "IDR",
			Interval: enums.BillingIntervalMonthly,
		},
		newID: {
			ID:       newID,
			Name:     "Business",
			Slug:     "business",
			Price:    decimal.NewFromInt(200000),
			Currency: "IDR",
			Interval: enums.BillingIntervalMonthly,
		},
	}}

	svc, err := NewProrationService(ProrationServiceParams{
		OrgRepo:  &fakeOrgRepo{org: org},
		PlanRepo: planRepo,
		Gateway:  gateway,
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc, currentID, newID
}

func TestProrationPreviewHalfCycle(t *testing.T) {
	now := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	org := &models.Organization{
		ID:                   uuid.New(),
		SubscriptionStatus:   enums.SubscriptionStatusActive,
		StripeSubscriptionID: strPtr("sub_123"),
	}
	gateway := &stubGateway{period: &stripe.BillingPeriod{
		Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}}
	svc, currentID, newID := newProrationFixture(t, org, gateway, now)
	org.SubscriptionPlanID = uuidPtr(currentID)

	breakdown, err := svc.Preview(context.Background(), org.ID, ProrationInput{
		CurrentPlanID: currentID,
		NewPlanID:     newID,
	})
	require.NoError(t, err)

	assert.Equal(t, 15, breakdown.DaysLeft)
	assert.Equal(t, 30, breakdown.TotalDaysInPeriod)
	assert.True(t, breakdown.Credit.Equal(decimal.NewFromInt(50000)), "credit = %s", breakdown.Credit)
	assert.True(t, breakdown.Charge.Equal(decimal.NewFromInt(100000)), "charge = %s", breakdown.Charge)
	assert.True(t, breakdown.AmountDue.Equal(decimal.NewFromInt(50000)), "amount due = %s", breakdown.AmountDue)
	assert.False(t, breakdown.Estimated)
	assert.Equal(t, 1, gateway.calls)
}

func TestProrationPreviewDowngradeNeverNegative(t *testing.T) {
	now := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	org := &models.Organization{
		ID:                   uuid.New(),
		SubscriptionStatus:   enums.SubscriptionStatusActive,
		StripeSubscriptionID: strPtr("sub_123"),
	}
	gateway := &stubGateway{period: &stripe.BillingPeriod{
		Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}}
	svc, currentID, newID := newProrationFixture(t, org, gateway, now)

	// Swap direction: moving to the cheaper plan.
	breakdown, err := svc.Preview(context.Background(), org.ID, ProrationInput{
		CurrentPlanID: newID,
		NewPlanID:     currentID,
	})
	require.NoError(t, err)

	assert.True(t, breakdown.AmountDue.IsZero(), "amount due = %s", breakdown.AmountDue)
	assert.True(t, breakdown.Credit.GreaterThan(breakdown.Charge))
}

func TestProrationPreviewGatewayFallback(t *testing.T) {
	now := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	org := &models.Organization{
		ID:                   uuid.New(),
		SubscriptionStatus:   enums.SubscriptionStatusActive,
		StripeSubscriptionID: strPtr("sub_123"),
	}
	gateway := &stubGateway{err: errors.New("stripe unreachable")}
	svc, currentID, newID := newProrationFixture(t, org, gateway, now)

	breakdown, err := svc.Preview(context.Background(), org.ID, ProrationInput{
		CurrentPlanID: currentID,
		NewPlanID:     newID,
	})
	require.NoError(t, err)

	assert.True(t, breakdown.Estimated)
	assert.Equal(t, 15, breakdown.DaysLeft)
	assert.Equal(t, 30, breakdown.TotalDaysInPeriod)
	assert.True(t, breakdown.AmountDue.Equal(decimal.NewFromInt(50000)), "amount due = %s", breakdown.AmountDue)
}

func TestProrationPreviewNoActiveSubscriptionChargesFullPrice(t *testing.T) {
	now := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	org := &models.Organization{
		ID:                 uuid.New(),
		SubscriptionStatus: enums.SubscriptionStatusTrial,
	}
	svc, _, newID := newProrationFixture(t, org, nil, now)

	breakdown, err := svc.Preview(context.Background(), org.ID, ProrationInput{NewPlanID: newID})
	require.NoError(t, err)

	assert.True(t, breakdown.Credit.IsZero())
	assert.True(t, breakdown.AmountDue.Equal(decimal.NewFromInt(200000)), "amount due = %s", breakdown.AmountDue)
	assert.Equal(t, 0, breakdown.DaysLeft)
}

func TestProrationPreviewUnknownOrg(t *testing.T) {
	now := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	svc, currentID, newID := newProrationFixture(t, nil, nil, now)

	_, err := svc.Preview(context.Background(), uuid.New(), ProrationInput{
		CurrentPlanID: currentID,
		NewPlanID:     newID,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestProrationPreviewUnknownPlan(t *testing.T) {
	now := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	org := &models.Organization{
		ID:                 uuid.New(),
		SubscriptionStatus: enums.SubscriptionStatusTrial,
	}
	svc, _, _ := newProrationFixture(t, org, nil, now)

	_, err := svc.Preview(context.Background(), org.ID, ProrationInput{NewPlanID: uuid.New()})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}
