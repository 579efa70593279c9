package stripe

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripesdk "github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/kelolahq/kelola-backend/internal/billing"
	"github.com/kelolahq/kelola-backend/internal/notifications"
	"github.com/kelolahq/kelola-backend/internal/orgs"
	"github.com/kelolahq/kelola-backend/pkg/db/models"
	"github.com/kelolahq/kelola-backend/pkg/enums"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

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

func (f *fakeOrgRepo) SetStripeCustomerID(_ context.Context, _ uuid.UUID, _ string) error {
	return nil
}

func (f *fakeOrgRepo) ListOverdueTrials(_ context.Context, _ time.Time, _ int) ([]models.Organization, error) {
	return nil, nil
}

func (f *fakeOrgRepo) SoftDelete(_ context.Context, _ uuid.UUID) error { return nil }

type fakePlanRepo struct {
	plan *models.SubscriptionPlan
}

func (f *fakePlanRepo) FindByID(_ context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	if f.plan == nil || f.plan.ID != id {
		return nil, nil
	}
	return f.plan, nil
}

func (f *fakePlanRepo) FindBySlug(_ context.Context, _ string) (*models.SubscriptionPlan, error) {
	return nil, nil
}

func (f *fakePlanRepo) List(_ context.Context) ([]models.SubscriptionPlan, error) { return nil, nil }

type fakeBillingRepo struct {
	audits []*models.SubscriptionAuditLog
}

func (f *fakeBillingRepo) WithTx(_ *gorm.DB) billing.Repository { return f }

func (f *fakeBillingRepo) CreateTransaction(_ context.Context, _ *models.PaymentTransaction) error {
	return nil
}

func (f *fakeBillingRepo) UpdateTransaction(_ context.Context, _ *models.PaymentTransaction) error {
	return nil
}

func (f *fakeBillingRepo) FindTransactionByOrderID(_ context.Context, _ string) (*models.PaymentTransaction, error) {
	return nil, nil
}

func (f *fakeBillingRepo) AppendTransactionLog(_ context.Context, _ *models.PaymentTransactionLog) error {
	return nil
}

func (f *fakeBillingRepo) CreateAuditLog(_ context.Context, entry *models.SubscriptionAuditLog) error {
	f.audits = append(f.audits, entry)
	return nil
}

type fakeUserRepo struct {
	admins []models.Profile
}

func (f *fakeUserRepo) FindByID(_ context.Context, _ uuid.UUID) (*models.Profile, error) {
	return nil, nil
}

func (f *fakeUserRepo) CountOtherSuperAdmins(_ context.Context, _, _ uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeUserRepo) ListAdminsByOrg(_ context.Context, _ uuid.UUID) ([]models.Profile, error) {
	return f.admins, nil
}

func (f *fakeUserRepo) Delete(_ context.Context, _ uuid.UUID) error { return nil }

type fakeNotifier struct {
	sent []enums.NotificationType
}

func (f *fakeNotifier) List(_ context.Context, _ notifications.ListParams) (*notifications.ListResult, error) {
	return nil, nil
}

func (f *fakeNotifier) MarkRead(_ context.Context, _, _ uuid.UUID) error { return nil }

func (f *fakeNotifier) MarkAllRead(_ context.Context, _ uuid.UUID) (int64, error) { return 0, nil }

func (f *fakeNotifier) NotifyUsers(_ context.Context, _ uuid.UUID, userIDs []uuid.UUID, kind enums.NotificationType, _, _ string) error {
	for range userIDs {
		f.sent = append(f.sent, kind)
	}
	return nil
}

func checkoutCompletedEvent(t *testing.T, session stripesdk.CheckoutSession) stripesdk.Event {
	t.Helper()
	raw, err := json.Marshal(session)
	require.NoError(t, err)
	return stripesdk.Event{
		Type: "checkout.session.completed",
		Data: &stripesdk.EventData{Raw: raw},
	}
}

func newStripeFixture(t *testing.T) (*Service, *fakeOrgRepo, *fakeBillingRepo, *fakeNotifier, *models.Organization, *models.SubscriptionPlan) {
	t.Helper()

	org := &models.Organization{
		ID:                 uuid.New(),
		Name:               "PT Kelola Test",
		SubscriptionStatus: enums.SubscriptionStatusTrial,
	}
	plan := &models.SubscriptionPlan{
		ID:       uuid.New(),
		Name:     "Premium",
		Slug:     "premium",
		Interval: enums.BillingIntervalMonthly,
	}
	orgRepo := &fakeOrgRepo{org: org}
	billingRepo := &fakeBillingRepo{}
	notifier := &fakeNotifier{}

	svc, err := NewService(ServiceParams{
		Tx:          fakeTxRunner{},
		OrgRepo:     orgRepo,
		PlanRepo:    &fakePlanRepo{plan: plan},
		BillingRepo: billingRepo,
		UserRepo: &fakeUserRepo{admins: []models.Profile{
			{ID: uuid.New(), Role: enums.UserRoleSuperAdmin},
		}},
		Notifications: notifier,
		Now:           func() time.Time { return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc, orgRepo, billingRepo, notifier, org, plan
}

func TestHandleEventCheckoutCompletedActivates(t *testing.T) {
	svc, orgRepo, billingRepo, notifier, org, plan := newStripeFixture(t)

	event := checkoutCompletedEvent(t, stripesdk.CheckoutSession{
		ID: "cs_sub",
		Metadata: map[string]string{
			"org_id":  org.ID.String(),
			"plan_id": plan.ID.String(),
		},
		Subscription: &stripesdk.Subscription{ID: "sub_new"},
	})
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	assert.Equal(t, enums.SubscriptionStatusActive, orgRepo.org.SubscriptionStatus)
	require.NotNil(t, orgRepo.org.SubscriptionPlanID)
	assert.Equal(t, plan.ID, *orgRepo.org.SubscriptionPlanID)
	require.NotNil(t, orgRepo.org.StripeSubscriptionID)
	assert.Equal(t, "sub_new", *orgRepo.org.StripeSubscriptionID)

	require.Len(t, billingRepo.audits, 1)
	assert.Equal(t, enums.AuditActionSubscriptionActivated, billingRepo.audits[0].Action)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, enums.NotificationTypePaymentSuccess, notifier.sent[0])
}

func TestHandleEventPlanChange(t *testing.T) {
	svc, orgRepo, billingRepo, notifier, org, plan := newStripeFixture(t)
	oldPlan := uuid.New()
	sub := "sub_live"
	org.SubscriptionStatus = enums.SubscriptionStatusActive
	org.SubscriptionPlanID = &oldPlan
	org.StripeSubscriptionID = &sub

	event := checkoutCompletedEvent(t, stripesdk.CheckoutSession{
		ID: "cs_setup",
		Metadata: map[string]string{
			"intent":      "plan_change",
			"org_id":      org.ID.String(),
			"new_plan_id": plan.ID.String(),
			"prorated":    "true",
		},
	})
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	require.NotNil(t, orgRepo.org.SubscriptionPlanID)
	assert.Equal(t, plan.ID, *orgRepo.org.SubscriptionPlanID)
	require.Len(t, billingRepo.audits, 1)
	assert.Equal(t, enums.AuditActionPlanChanged, billingRepo.audits[0].Action)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, enums.NotificationTypePlanChanged, notifier.sent[0])
}

func TestHandleEventSubscriptionDeletedExpires(t *testing.T) {
	svc, orgRepo, _, _, org, _ := newStripeFixture(t)
	sub := "sub_live"
	org.SubscriptionStatus = enums.SubscriptionStatusActive
	org.StripeSubscriptionID = &sub

	raw, err := json.Marshal(stripesdk.Subscription{
		ID:       "sub_live",
		Metadata: map[string]string{"org_id": org.ID.String()},
	})
	require.NoError(t, err)

	require.NoError(t, svc.HandleEvent(context.Background(), stripesdk.Event{
		Type: "customer.subscription.deleted",
		Data: &stripesdk.EventData{Raw: raw},
	}))

	assert.Equal(t, enums.SubscriptionStatusExpired, orgRepo.org.SubscriptionStatus)
	assert.Nil(t, orgRepo.org.StripeSubscriptionID)
}

func TestHandleEventUnknownTypeIsAcknowledged(t *testing.T) {
	svc, orgRepo, billingRepo, notifier, _, _ := newStripeFixture(t)

	require.NoError(t, svc.HandleEvent(context.Background(), stripesdk.Event{
		Type: "invoice.created",
		Data: &stripesdk.EventData{Raw: json.RawMessage(`{}`)},
	}))

	assert.Equal(t, enums.SubscriptionStatusTrial, orgRepo.org.SubscriptionStatus)
	assert.Empty(t, billingRepo.audits)
	assert.Empty(t, notifier.sent)
}
