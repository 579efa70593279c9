package cron

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kelolahq/kelola-backend/internal/billing"
	"github.com/kelolahq/kelola-backend/internal/notifications"
	"github.com/kelolahq/kelola-backend/internal/orgs"
	"github.com/kelolahq/kelola-backend/pkg/db/models"
	"github.com/kelolahq/kelola-backend/pkg/enums"
	"github.com/kelolahq/kelola-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeOrgRepo struct {
	overdue []models.Organization
	updated []*models.Organization
	listed  int
}

func (f *fakeOrgRepo) WithTx(_ *gorm.DB) orgs.Repository { return f }

func (f *fakeOrgRepo) FindByID(_ context.Context, _ uuid.UUID) (*models.Organization, error) {
	return nil, nil
}

func (f *fakeOrgRepo) Update(_ context.Context, org *models.Organization) error {
	f.updated = append(f.updated, org)
	return nil
}

func (f *fakeOrgRepo) SetStripeCustomerID(_ context.Context, _ uuid.UUID, _ string) error {
	return nil
}

func (f *fakeOrgRepo) ListOverdueTrials(_ context.Context, _ time.Time, _ int) ([]models.Organization, error) {
	f.listed++
	out := f.overdue
	f.overdue = nil
	return out, nil
}

func (f *fakeOrgRepo) SoftDelete(_ context.Context, _ uuid.UUID) error { return nil }

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

func TestTrialReconcileJobSettlesOverdueTrials(t *testing.T) {
	now := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	trialEnd := now.Add(-48 * time.Hour)
	grace := 72 * time.Hour

	orgRepo := &fakeOrgRepo{overdue: []models.Organization{
		{
			ID:                 uuid.New(),
			Name:               "Overdue One",
			SubscriptionStatus: enums.SubscriptionStatusTrial,
			TrialEndDate:       &trialEnd,
		},
		{
			ID:                 uuid.New(),
			Name:               "Overdue Two",
			SubscriptionStatus: enums.SubscriptionStatusTrial,
			TrialEndDate:       &trialEnd,
		},
	}}
	billingRepo := &fakeBillingRepo{}
	notifier := &fakeNotifier{}

	job, err := NewTrialReconcileJob(TrialReconcileJobParams{
		Logger:        testLogger(),
		DB:            fakeTxRunner{},
		OrgRepo:       orgRepo,
		BillingRepo:   billingRepo,
		UserRepo:      &fakeUserRepo{admins: []models.Profile{{ID: uuid.New()}}},
		Notifications: notifier,
		GracePeriod:   grace,
		BatchSize:     10,
		Now:           func() time.Time { return now },
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	require.Len(t, orgRepo.updated, 2)
	for _, org := range orgRepo.updated {
		assert.True(t, org.TrialExpired)
		assert.Equal(t, enums.SubscriptionStatusExpired, org.SubscriptionStatus)
		require.NotNil(t, org.GracePeriodEnd)
		assert.Equal(t, trialEnd.Add(grace), *org.GracePeriodEnd)
	}

	require.Len(t, billingRepo.audits, 2)
	assert.Equal(t, enums.AuditActionTrialExpired, billingRepo.audits[0].Action)

	require.Len(t, notifier.sent, 2)
	assert.Equal(t, enums.NotificationTypeTrialExpired, notifier.sent[0])
}

func TestTrialReconcileJobNoCandidates(t *testing.T) {
	orgRepo := &fakeOrgRepo{}
	job, err := NewTrialReconcileJob(TrialReconcileJobParams{
		Logger:      testLogger(),
		DB:          fakeTxRunner{},
		OrgRepo:     orgRepo,
		BillingRepo: &fakeBillingRepo{},
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, orgRepo.updated)
	assert.Equal(t, 1, orgRepo.listed)
}

func TestRegistryIgnoresDuplicatesAndNil(t *testing.T) {
	job, err := NewTrialReconcileJob(TrialReconcileJobParams{
		Logger:      testLogger(),
		DB:          fakeTxRunner{},
		OrgRepo:     &fakeOrgRepo{},
		BillingRepo: &fakeBillingRepo{},
	})
	require.NoError(t, err)

	registry := NewRegistry(job, nil, job)
	assert.Len(t, registry.Jobs(), 1)
}
