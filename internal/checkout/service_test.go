package checkout

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kelolahq/kelola-backend/internal/billing"
	"github.com/kelolahq/kelola-backend/internal/orgs"
	"github.com/kelolahq/kelola-backend/pkg/db/models"
	"github.com/kelolahq/kelola-backend/pkg/enums"
	pkgerrors "github.com/kelolahq/kelola-backend/pkg/errors"
	"github.com/kelolahq/kelola-backend/pkg/midtrans"
	"github.com/kelolahq/kelola-backend/pkg/stripe"
)

type fakeOrgRepo struct {
	org         *models.Organization
	setCustomer []string
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
	f.setCustomer = append(f.setCustomer, customerID)
	if f.org != nil {
		f.org.StripeCustomerID = &customerID
	}
	return nil
}

func (f *fakeOrgRepo) ListOverdueTrials(_ context.Context, _ time.Time, _ int) ([]models.Organization, error) {
	return nil, nil
}

func (f *fakeOrgRepo) SoftDelete(_ context.Context, _ uuid.UUID) error { return nil }

type fakePlanRepo struct {
	plans map[uuid.UUID]*models.SubscriptionPlan
}

func (f *fakePlanRepo) FindByID(_ context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	return f.plans[id], nil
}

func (f *fakePlanRepo) FindBySlug(_ context.Context, slug string) (*models.SubscriptionPlan, error) {
	for _, p := range f.plans {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakePlanRepo) List(_ context.Context) ([]models.SubscriptionPlan, error) {
	return nil, nil
}

type fakeUserRepo struct {
	profile *models.Profile
}

func (f *fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	if f.profile == nil || f.profile.ID != id {
		return nil, nil
	}
	return f.profile, nil
}

func (f *fakeUserRepo) CountOtherSuperAdmins(_ context.Context, _, _ uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeUserRepo) ListAdminsByOrg(_ context.Context, _ uuid.UUID) ([]models.Profile, error) {
	return nil, nil
}

func (f *fakeUserRepo) Delete(_ context.Context, _ uuid.UUID) error { return nil }

type fakeBillingRepo struct {
	created []*models.PaymentTransaction
}

func (f *fakeBillingRepo) WithTx(_ *gorm.DB) billing.Repository { return f }

func (f *fakeBillingRepo) CreateTransaction(_ context.Context, txn *models.PaymentTransaction) error {
	f.created = append(f.created, txn)
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

func (f *fakeBillingRepo) CreateAuditLog(_ context.Context, _ *models.SubscriptionAuditLog) error {
	return nil
}

type fakeStripe struct {
	customers     int
	subscription  map[string]string
	setupMetadata map[string]string
}

func (f *fakeStripe) CreateCustomer(_ context.Context, _, _, _ string) (string, error) {
	f.customers++
	return "cus_test", nil
}

func (f *fakeStripe) CreateSubscriptionCheckout(_ context.Context, customerID, priceID string, metadata map[string]string) (*stripe.CheckoutSession, error) {
	f.subscription = map[string]string{"customer": customerID, "price": priceID}
	for k, v := range metadata {
		f.subscription[k] = v
	}
	return &stripe.CheckoutSession{ID: "cs_sub", RedirectURL: "https://checkout.stripe.com/cs_sub"}, nil
}

func (f *fakeStripe) CreateSetupCheckout(_ context.Context, _ string, metadata map[string]string) (*stripe.CheckoutSession, error) {
	f.setupMetadata = metadata
	return &stripe.CheckoutSession{ID: "cs_setup", RedirectURL: "https://checkout.stripe.com/cs_setup"}, nil
}

type fakeMidtrans struct {
	lastParams midtrans.SnapTransactionParams
}

func (f *fakeMidtrans) CreateSnapTransaction(_ context.Context, params midtrans.SnapTransactionParams) (*midtrans.SnapTransaction, error) {
	f.lastParams = params
	return &midtrans.SnapTransaction{Token: "snap-token", RedirectURL: "https://app.midtrans.com/snap/v4/redirection/snap-token"}, nil
}

type fixture struct {
	svc      *Service
	orgRepo  *fakeOrgRepo
	billing  *fakeBillingRepo
	stripe   *fakeStripe
	midtrans *fakeMidtrans
	org      *models.Organization
	profile  *models.Profile
	planID   uuid.UUID
	basicID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	org := &models.Organization{
		ID:                 uuid.New(),
		Name:               "PT Kelola Test",
		SubscriptionStatus: enums.SubscriptionStatusTrial,
	}
	profile := &models.Profile{
		ID:             uuid.New(),
		OrganizationID: org.ID,
		Role:           enums.UserRoleSuperAdmin,
		FullName:       "Ayu Lestari",
		Email:          "ayu@kelola.test",
	}
	planID := uuid.New()
	basicID := uuid.New()
	priceID := "price_premium"

	orgRepo := &fakeOrgRepo{org: org}
	billingRepo := &fakeBillingRepo{}
	stripeGW := &fakeStripe{}
	midtransGW := &fakeMidtrans{}

	svc, err := NewService(ServiceParams{
		OrgRepo: orgRepo,
		PlanRepo: &fakePlanRepo{plans: map[uuid.UUID]*models.SubscriptionPlan{
			planID: {
				ID:            planID,
				Name:          "Premium",
				Slug:          "premium",
				Price:         decimal.NewFromInt(200000),
				Currency:      "IDR",
				Interval:      enums.BillingIntervalMonthly,
				StripePriceID: &priceID,
			},
			basicID: {
				ID:       basicID,
				Name:     "Basic",
				Slug:     "basic",
				Price:    decimal.Zero,
				Currency: "IDR",
				Interval: enums.BillingIntervalMonthly,
			},
		}},
		UserRepo:    &fakeUserRepo{profile: profile},
		BillingRepo: billingRepo,
		Stripe:      stripeGW,
		Midtrans:    midtransGW,
	})
	require.NoError(t, err)

	return &fixture{
		svc:      svc,
		orgRepo:  orgRepo,
		billing:  billingRepo,
		stripe:   stripeGW,
		midtrans: midtransGW,
		org:      org,
		profile:  profile,
		planID:   planID,
		basicID:  basicID,
	}
}

func TestCreateMidtransCheckout(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Create(context.Background(), Input{
		OrganizationID: f.org.ID,
		UserID:         f.profile.ID,
		PlanID:         f.planID,
		Gateway:        enums.PaymentGatewayMidtrans,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentGatewayMidtrans, result.Gateway)
	assert.True(t, strings.HasPrefix(result.OrderID, "KLO-"))
	assert.Equal(t, "snap-token", result.Token)
	assert.NotEmpty(t, result.RedirectURL)

	// A pending transaction is recorded before the gateway is called.
	require.Len(t, f.billing.created, 1)
	txn := f.billing.created[0]
	assert.Equal(t, result.OrderID, txn.OrderID)
	assert.Equal(t, enums.TransactionStatusPending, txn.Status)
	assert.Equal(t, f.org.ID, txn.OrganizationID)
	assert.True(t, txn.Amount.Equal(decimal.NewFromInt(200000)))

	assert.Equal(t, int64(200000), f.midtrans.lastParams.GrossAmount)
	assert.Equal(t, "ayu@kelola.test", f.midtrans.lastParams.CustomerEmail)
}

func TestCreateStripeCheckoutNewSubscriber(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Create(context.Background(), Input{
		OrganizationID: f.org.ID,
		UserID:         f.profile.ID,
		PlanID:         f.planID,
		Gateway:        enums.PaymentGatewayStripe,
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_sub", result.SessionID)
	assert.Equal(t, 1, f.stripe.customers)
	assert.Equal(t, []string{"cus_test"}, f.orgRepo.setCustomer)
	assert.Equal(t, "price_premium", f.stripe.subscription["price"])
	assert.Equal(t, f.org.ID.String(), f.stripe.subscription["org_id"])

	// Retry reuses the persisted customer instead of creating another one.
	_, err = f.svc.Create(context.Background(), Input{
		OrganizationID: f.org.ID,
		UserID:         f.profile.ID,
		PlanID:         f.planID,
		Gateway:        enums.PaymentGatewayStripe,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.stripe.customers)
}

func TestCreateStripeCheckoutPlanChangeUsesSetupMode(t *testing.T) {
	f := newFixture(t)
	sub := "sub_live"
	cus := "cus_existing"
	f.org.SubscriptionStatus = enums.SubscriptionStatusActive
	f.org.StripeSubscriptionID = &sub
	f.org.StripeCustomerID = &cus

	result, err := f.svc.Create(context.Background(), Input{
		OrganizationID: f.org.ID,
		UserID:         f.profile.ID,
		PlanID:         f.planID,
		Gateway:        enums.PaymentGatewayStripe,
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_setup", result.SessionID)
	assert.Equal(t, 0, f.stripe.customers)
	assert.Equal(t, "plan_change", f.stripe.setupMetadata["intent"])
	assert.Equal(t, f.planID.String(), f.stripe.setupMetadata["new_plan_id"])
	assert.Equal(t, f.org.ID.String(), f.stripe.setupMetadata["org_id"])
}

func TestCreateRejectsBasicPlan(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), Input{
		OrganizationID: f.org.ID,
		UserID:         f.profile.ID,
		PlanID:         f.basicID,
		Gateway:        enums.PaymentGatewayMidtrans,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestCreateUnknownPlan(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), Input{
		OrganizationID: f.org.ID,
		UserID:         f.profile.ID,
		PlanID:         uuid.New(),
		Gateway:        enums.PaymentGatewayStripe,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestCreateInvalidGateway(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), Input{
		OrganizationID: f.org.ID,
		UserID:         f.profile.ID,
		PlanID:         f.planID,
		Gateway:        enums.PaymentGateway("paypal"),
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}
