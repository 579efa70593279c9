package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	stripesdk "github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/kelolahq/kelola-backend/internal/billing"
	"github.com/kelolahq/kelola-backend/internal/notifications"
	"github.com/kelolahq/kelola-backend/internal/orgs"
	"github.com/kelolahq/kelola-backend/internal/plans"
	"github.com/kelolahq/kelola-backend/internal/users"
	"github.com/kelolahq/kelola-backend/pkg/db/models"
	"github.com/kelolahq/kelola-backend/pkg/enums"
	pkgerrors "github.com/kelolahq/kelola-backend/pkg/errors"
	"github.com/kelolahq/kelola-backend/pkg/logger"
)

// TxRunner executes fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups Stripe webhook dependencies.
type ServiceParams struct {
	Tx            TxRunner
	OrgRepo       orgs.Repository
	PlanRepo      plans.Repository
	BillingRepo   billing.Repository
	UserRepo      users.Repository
	Notifications notifications.Service
	Logger        *logger.Logger
	Now           func() time.Time
}

// Service applies Stripe events to billing state. Unknown event types are
// acknowledged so Stripe stops retrying them.
type Service struct {
	tx            TxRunner
	orgRepo       orgs.Repository
	planRepo      plans.Repository
	billingRepo   billing.Repository
	userRepo      users.Repository
	notifications notifications.Service
	logg          *logger.Logger
	now           func() time.Time
}

// NewService validates and wires the Stripe event handler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.OrgRepo == nil {
		return nil, fmt.Errorf("org repo required")
	}
	if params.PlanRepo == nil {
		return nil, fmt.Errorf("plan repo required")
	}
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		tx:            params.Tx,
		orgRepo:       params.OrgRepo,
		planRepo:      params.PlanRepo,
		billingRepo:   params.BillingRepo,
		userRepo:      params.UserRepo,
		notifications: params.Notifications,
		logg:          params.Logger,
		now:           now,
	}, nil
}

// HandleEvent dispatches one verified Stripe event.
func (s *Service) HandleEvent(ctx context.Context, event stripesdk.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var session stripesdk.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		return s.handleCheckoutCompleted(ctx, &session)
	case "customer.subscription.deleted":
		var sub stripesdk.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
		}
		return s.handleSubscriptionDeleted(ctx, &sub)
	default:
		if s.logg != nil {
			lctx := s.logg.WithField(ctx, "event_type", string(event.Type))
			s.logg.Info(lctx, "stripe event acknowledged without action")
		}
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, session *stripesdk.CheckoutSession) error {
	if session.Metadata["intent"] == "plan_change" {
		return s.applyPlanChange(ctx, session)
	}
	return s.activateSubscription(ctx, session)
}

// activateSubscription handles a first-time subscription checkout.
func (s *Service) activateSubscription(ctx context.Context, session *stripesdk.CheckoutSession) error {
	orgID, err := uuid.Parse(session.Metadata["org_id"])
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session missing org_id metadata")
	}
	planID, err := uuid.Parse(session.Metadata["plan_id"])
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session missing plan_id metadata")
	}

	plan, err := s.planRepo.FindByID(ctx, planID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orgRepo := s.orgRepo.WithTx(tx)
		org, err := orgRepo.FindByID(ctx, orgID)
		if err != nil {
			return fmt.Errorf("load organization: %w", err)
		}
		if org == nil {
			return fmt.Errorf("organization %s not found", orgID)
		}

		now := s.now().UTC()
		endsAt := now.Add(plan.Interval.Duration())
		org.SubscriptionStatus = enums.SubscriptionStatusActive
		org.SubscriptionPlanID = &plan.ID
		org.SubscriptionEndsAt = &endsAt
		org.TrialExpired = false
		org.GracePeriodEnd = nil
		if session.Subscription != nil && session.Subscription.ID != "" {
			subID := session.Subscription.ID
			org.StripeSubscriptionID = &subID
		}
		if err := orgRepo.Update(ctx, org); err != nil {
			return fmt.Errorf("activate organization: %w", err)
		}

		detail, _ := json.Marshal(map[string]string{
			"session_id": session.ID,
			"plan_id":    plan.ID.String(),
			"plan":       plan.Slug,
		})
		return s.billingRepo.WithTx(tx).CreateAuditLog(ctx, &models.SubscriptionAuditLog{
			OrganizationID: orgID,
			Action:         enums.AuditActionSubscriptionActivated,
			Detail:         detail,
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply stripe activation")
	}

	s.notifyAdmins(ctx, orgID, enums.NotificationTypePaymentSuccess,
		"Subscription active",
		fmt.Sprintf("Your %s subscription is now active.", plan.Name))
	return nil
}

// applyPlanChange finalizes the plan switch a setup-mode checkout confirmed.
func (s *Service) applyPlanChange(ctx context.Context, session *stripesdk.CheckoutSession) error {
	orgID, err := uuid.Parse(session.Metadata["org_id"])
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan change missing org_id metadata")
	}
	newPlanID, err := uuid.Parse(session.Metadata["new_plan_id"])
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan change missing new_plan_id metadata")
	}

	plan, err := s.planRepo.FindByID(ctx, newPlanID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orgRepo := s.orgRepo.WithTx(tx)
		org, err := orgRepo.FindByID(ctx, orgID)
		if err != nil {
			return fmt.Errorf("load organization: %w", err)
		}
		if org == nil {
			return fmt.Errorf("organization %s not found", orgID)
		}

		previous := ""
		if org.SubscriptionPlanID != nil {
			previous = org.SubscriptionPlanID.String()
		}
		org.SubscriptionPlanID = &plan.ID
		if err := orgRepo.Update(ctx, org); err != nil {
			return fmt.Errorf("update organization plan: %w", err)
		}

		detail, _ := json.Marshal(map[string]string{
			"session_id":    session.ID,
			"previous_plan": previous,
			"new_plan_id":   plan.ID.String(),
			"prorated":      session.Metadata["prorated"],
		})
		return s.billingRepo.WithTx(tx).CreateAuditLog(ctx, &models.SubscriptionAuditLog{
			OrganizationID: orgID,
			Action:         enums.AuditActionPlanChanged,
			Detail:         detail,
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply plan change")
	}

	s.notifyAdmins(ctx, orgID, enums.NotificationTypePlanChanged,
		"Plan changed",
		fmt.Sprintf("Your subscription was switched to %s.", plan.Name))
	return nil
}

// handleSubscriptionDeleted marks the tenant expired when Stripe cancels the
// underlying subscription.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, sub *stripesdk.Subscription) error {
	orgID, err := uuid.Parse(sub.Metadata["org_id"])
	if err != nil {
		// Subscriptions created before metadata stamping; nothing to map to.
		if s.logg != nil {
			lctx := s.logg.WithField(ctx, "subscription_id", sub.ID)
			s.logg.Warn(lctx, "subscription deletion without org metadata ignored")
		}
		return nil
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orgRepo := s.orgRepo.WithTx(tx)
		org, err := orgRepo.FindByID(ctx, orgID)
		if err != nil {
			return fmt.Errorf("load organization: %w", err)
		}
		if org == nil {
			return nil
		}
		org.SubscriptionStatus = enums.SubscriptionStatusExpired
		org.StripeSubscriptionID = nil
		return orgRepo.Update(ctx, org)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire organization subscription")
	}
	return nil
}

func (s *Service) notifyAdmins(ctx context.Context, orgID uuid.UUID, kind enums.NotificationType, title, message string) {
	if s.notifications == nil || s.userRepo == nil {
		return
	}
	admins, err := s.userRepo.ListAdminsByOrg(ctx, orgID)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithOrgID(ctx, orgID.String()), "admin lookup for notification failed", err)
		}
		return
	}
	ids := make([]uuid.UUID, 0, len(admins))
	for _, admin := range admins {
		ids = append(ids, admin.ID)
	}
	if err := s.notifications.NotifyUsers(ctx, orgID, ids, kind, title, message); err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithOrgID(ctx, orgID.String()), "notification fan-out failed", err)
		}
	}
}
