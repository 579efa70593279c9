package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/kelolahq/kelola-backend/internal/billing"
	"github.com/kelolahq/kelola-backend/internal/notifications"
	"github.com/kelolahq/kelola-backend/internal/orgs"
	"github.com/kelolahq/kelola-backend/internal/users"
	"github.com/kelolahq/kelola-backend/pkg/db/models"
	"github.com/kelolahq/kelola-backend/pkg/enums"
	"github.com/kelolahq/kelola-backend/pkg/logger"
)

const defaultReconcileBatch = 250

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// TrialReconcileJobParams configures the trial flag reconciliation.
type TrialReconcileJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	OrgRepo       orgs.Repository
	BillingRepo   billing.Repository
	UserRepo      users.Repository
	Notifications notifications.Service
	GracePeriod   time.Duration
	BatchSize     int
	Now           func() time.Time
}

// NewTrialReconcileJob builds the job that settles stale trial_expired flags.
func NewTrialReconcileJob(params TrialReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.OrgRepo == nil {
		return nil, fmt.Errorf("org repository required")
	}
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &trialReconcileJob{
		logg:          params.Logger,
		db:            params.DB,
		orgRepo:       params.OrgRepo,
		billingRepo:   params.BillingRepo,
		userRepo:      params.UserRepo,
		notifications: params.Notifications,
		grace:         params.GracePeriod,
		batch:         batch,
		now:           now,
	}, nil
}

// trialReconcileJob settles the denormalized trial_expired flag for tenants
// whose trial end date has passed. Readers never wait for this job: the date
// comparison always wins, so this is cache invalidation, not enforcement.
type trialReconcileJob struct {
	logg          *logger.Logger
	db            txRunner
	orgRepo       orgs.Repository
	billingRepo   billing.Repository
	userRepo      users.Repository
	notifications notifications.Service
	grace         time.Duration
	batch         int
	now           func() time.Time
}

func (j *trialReconcileJob) Name() string { return "trial-reconcile" }

func (j *trialReconcileJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error
	reconciled := 0

	// Each reconciled row drops out of the candidate set, so paging repeats
	// the same query until it drains.
	for {
		batch, err := j.orgRepo.ListOverdueTrials(ctx, now, j.batch)
		if err != nil {
			return fmt.Errorf("list overdue trials: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		progressed := 0
		for i := range batch {
			if err := j.reconcileOrg(ctx, &batch[i], now); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			progressed++
			reconciled++
		}
		// Every row in the batch failed; bail instead of spinning on them.
		if progressed == 0 {
			break
		}
		if len(batch) < j.batch {
			break
		}
	}

	logCtx := j.logg.WithField(ctx, "count", reconciled)
	j.logg.Info(logCtx, "trial reconcile loop complete")
	return errs
}

func (j *trialReconcileJob) reconcileOrg(ctx context.Context, org *models.Organization, now time.Time) error {
	if org.TrialEndDate == nil {
		return nil
	}
	graceEnd := org.TrialEndDate.Add(j.grace)

	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		orgRepo := j.orgRepo.WithTx(tx)

		org.TrialExpired = true
		org.SubscriptionStatus = enums.SubscriptionStatusExpired
		org.GracePeriodEnd = &graceEnd
		if err := orgRepo.Update(ctx, org); err != nil {
			return fmt.Errorf("update organization: %w", err)
		}

		detail, _ := json.Marshal(map[string]string{
			"trial_end_date":   org.TrialEndDate.Format(time.RFC3339),
			"grace_period_end": graceEnd.Format(time.RFC3339),
		})
		return j.billingRepo.WithTx(tx).CreateAuditLog(ctx, &models.SubscriptionAuditLog{
			OrganizationID: org.ID,
			Action:         enums.AuditActionTrialExpired,
			Detail:         detail,
		})
	})
	if err != nil {
		return fmt.Errorf("reconcile org %s: %w", org.ID, err)
	}

	j.notifyTrialExpired(ctx, org, now)
	return nil
}

// notifyTrialExpired fans out to admins after the flag is settled. Failures
// are logged only; the reconciliation itself already committed.
func (j *trialReconcileJob) notifyTrialExpired(ctx context.Context, org *models.Organization, now time.Time) {
	if j.notifications == nil || j.userRepo == nil {
		return
	}
	admins, err := j.userRepo.ListAdminsByOrg(ctx, org.ID)
	if err != nil {
		j.logg.Error(j.logg.WithOrgID(ctx, org.ID.String()), "admin lookup for trial notification failed", err)
		return
	}
	ids := make([]uuid.UUID, 0, len(admins))
	for _, admin := range admins {
		ids = append(ids, admin.ID)
	}

	message := "Your trial has ended. Subscribe to keep premium access."
	if org.GracePeriodEnd != nil && org.GracePeriodEnd.After(now) {
		message = fmt.Sprintf("Your trial has ended. Premium access continues until %s.",
			org.GracePeriodEnd.Format("2 January 2006"))
	}
	if err := j.notifications.NotifyUsers(ctx, org.ID, ids, enums.NotificationTypeTrialExpired, "Trial ended", message); err != nil {
		j.logg.Error(j.logg.WithOrgID(ctx, org.ID.String()), "trial notification fan-out failed", err)
	}
}
