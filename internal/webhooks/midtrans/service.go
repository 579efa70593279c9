package midtrans

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kelolahq/kelola-backend/internal/billing"
	"github.com/kelolahq/kelola-backend/internal/notifications"
	"github.com/kelolahq/kelola-backend/internal/orgs"
	"github.com/kelolahq/kelola-backend/internal/plans"
	"github.com/kelolahq/kelola-backend/internal/users"
	"github.com/kelolahq/kelola-backend/pkg/db"
	"github.com/kelolahq/kelola-backend/pkg/db/models"
	"github.com/kelolahq/kelola-backend/pkg/enums"
	pkgerrors "github.com/kelolahq/kelola-backend/pkg/errors"
	"github.com/kelolahq/kelola-backend/pkg/logger"
)

// TxRunner executes fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups webhook-handler dependencies.
type ServiceParams struct {
	Tx            TxRunner
	BillingRepo   billing.Repository
	OrgRepo       orgs.Repository
	PlanRepo      plans.Repository
	UserRepo      users.Repository
	Notifications notifications.Service
	Logger        *logger.Logger
	Now           func() time.Time
}

// Service applies Midtrans payment notifications to billing state.
type Service struct {
	tx            TxRunner
	billingRepo   billing.Repository
	orgRepo       orgs.Repository
	planRepo      plans.Repository
	userRepo      users.Repository
	notifications notifications.Service
	logg          *logger.Logger
	now           func() time.Time
}

// NewService validates and wires the webhook handler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
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
	return &Service{
		tx:            params.Tx,
		billingRepo:   params.BillingRepo,
		orgRepo:       params.OrgRepo,
		planRepo:      params.PlanRepo,
		userRepo:      params.UserRepo,
		notifications: params.Notifications,
		logg:          params.Logger,
		now:           now,
	}, nil
}

// HandleNotification processes one gateway notification. Redeliveries of a
// terminal transaction are acknowledged without touching state.
func (s *Service) HandleNotification(ctx context.Context, notif Notification) error {
	if notif.OrderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order_id is required")
	}

	txn, err := s.billingRepo.FindTransactionByOrderID(ctx, notif.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if txn == nil {
		if s.logg != nil {
			lctx := s.logg.WithField(ctx, "order_id", notif.OrderID)
			s.logg.Warn(lctx, "webhook for unknown order")
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "unknown order")
	}

	if txn.Status.IsTerminal() {
		if s.logg != nil {
			lctx := s.logg.WithFields(ctx, map[string]any{
				"order_id": notif.OrderID,
				"status":   txn.Status.String(),
			})
			s.logg.Info(lctx, "webhook redelivery for settled transaction ignored")
		}
		return nil
	}

	mapped := MapStatus(notif.TransactionStatus, notif.FraudStatus)
	payload, err := json.Marshal(notif)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode notification payload")
	}

	var plan *models.SubscriptionPlan
	duplicate := false

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		billingRepo := s.billingRepo.WithTx(tx)

		logEntry := &models.PaymentTransactionLog{
			TransactionID:        txn.ID,
			OrderID:              notif.OrderID,
			GatewayTransactionID: notif.TransactionID,
			Status:               mapped,
			Payload:              payload,
		}
		if err := billingRepo.AppendTransactionLog(ctx, logEntry); err != nil {
			if db.IsUniqueViolation(err, "idx_payment_logs_delivery") {
				// Concurrent duplicate delivery; the other worker wins and
				// owns the fan-out too.
				duplicate = true
				return nil
			}
			return fmt.Errorf("append transaction log: %w", err)
		}

		txn.Status = mapped
		if notif.TransactionID != "" {
			txn.GatewayTransactionID = &notif.TransactionID
		}
		txn.GatewayPayload = payload
		if err := billingRepo.UpdateTransaction(ctx, txn); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}

		switch mapped {
		case enums.TransactionStatusSuccess:
			pl, err := s.activateSubscription(ctx, tx, txn)
			if err != nil {
				return err
			}
			plan = pl
		case enums.TransactionStatusFailed:
			if err := billingRepo.CreateAuditLog(ctx, &models.SubscriptionAuditLog{
				OrganizationID: txn.OrganizationID,
				Action:         enums.AuditActionPaymentFailed,
				Detail:         payload,
			}); err != nil {
				return fmt.Errorf("audit payment failure: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply payment notification")
	}
	if duplicate {
		return nil
	}

	// Notifications ride outside the transaction: a failed insert must never
	// roll back a recorded payment.
	s.notifyOutcome(ctx, txn, mapped, plan)
	return nil
}

// activateSubscription flips the tenant onto the purchased plan. Runs inside
// the same transaction that settles the payment.
func (s *Service) activateSubscription(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction) (*models.SubscriptionPlan, error) {
	orgRepo := s.orgRepo.WithTx(tx)

	org, err := orgRepo.FindByID(ctx, txn.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	if org == nil {
		return nil, fmt.Errorf("organization %s not found", txn.OrganizationID)
	}

	plan, err := s.planRepo.FindByID(ctx, txn.PlanID)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	if plan == nil {
		return nil, fmt.Errorf("plan %s not found", txn.PlanID)
	}

	now := s.now().UTC()
	endsAt := now.Add(plan.Interval.Duration())

	org.SubscriptionStatus = enums.SubscriptionStatusActive
	org.SubscriptionPlanID = &plan.ID
	org.SubscriptionEndsAt = &endsAt
	org.TrialExpired = false
	org.GracePeriodEnd = nil
	if err := orgRepo.Update(ctx, org); err != nil {
		return nil, fmt.Errorf("activate organization: %w", err)
	}

	detail, _ := json.Marshal(map[string]string{
		"order_id": txn.OrderID,
		"plan_id":  plan.ID.String(),
		"plan":     plan.Slug,
	})
	if err := s.billingRepo.WithTx(tx).CreateAuditLog(ctx, &models.SubscriptionAuditLog{
		OrganizationID: org.ID,
		Action:         enums.AuditActionSubscriptionActivated,
		Detail:         detail,
	}); err != nil {
		return nil, fmt.Errorf("audit activation: %w", err)
	}

	return plan, nil
}

func (s *Service) notifyOutcome(ctx context.Context, txn *models.PaymentTransaction, mapped enums.TransactionStatus, plan *models.SubscriptionPlan) {
	if s.notifications == nil || s.userRepo == nil {
		return
	}

	var kind enums.NotificationType
	var title, message string
	switch mapped {
	case enums.TransactionStatusSuccess:
		kind = enums.NotificationTypePaymentSuccess
		title = "Payment received"
		planName := "your plan"
		if plan != nil {
			planName = plan.Name
		}
		message = fmt.Sprintf("Payment for order %s was received. %s is now active.", txn.OrderID, planName)
	case enums.TransactionStatusFailed:
		kind = enums.NotificationTypePaymentFailed
		title = "Payment failed"
		message = fmt.Sprintf("Payment for order %s did not go through. Please try again.", txn.OrderID)
	default:
		return
	}

	admins, err := s.userRepo.ListAdminsByOrg(ctx, txn.OrganizationID)
	if err != nil {
		s.logNotifyFailure(ctx, txn.OrderID, err)
		return
	}
	ids := make([]uuid.UUID, 0, len(admins))
	for _, admin := range admins {
		ids = append(ids, admin.ID)
	}
	if err := s.notifications.NotifyUsers(ctx, txn.OrganizationID, ids, kind, title, message); err != nil {
		s.logNotifyFailure(ctx, txn.OrderID, err)
	}
}

func (s *Service) logNotifyFailure(ctx context.Context, orderID string, err error) {
	if s.logg == nil {
		return
	}
	lctx := s.logg.WithField(ctx, "order_id", orderID)
	s.logg.Error(lctx, "payment notification fan-out failed", err)
}
