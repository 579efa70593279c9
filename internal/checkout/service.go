package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kelolahq/kelola-backend/internal/billing"
	"github.com/kelolahq/kelola-backend/internal/orgs"
	"github.com/kelolahq/kelola-backend/internal/plans"
	"github.com/kelolahq/kelola-backend/internal/users"
	"github.com/kelolahq/kelola-backend/pkg/db/models"
	"github.com/kelolahq/kelola-backend/pkg/enums"
	pkgerrors "github.com/kelolahq/kelola-backend/pkg/errors"
	"github.com/kelolahq/kelola-backend/pkg/logger"
	"github.com/kelolahq/kelola-backend/pkg/midtrans"
	"github.com/kelolahq/kelola-backend/pkg/stripe"
)

// orderIDPrefix namespaces gateway order ids so support can trace them back here.
const orderIDPrefix = "KLO"

// StripeGateway is the slice of the Stripe wrapper checkout needs.
type StripeGateway interface {
	CreateCustomer(ctx context.Context, orgID, name, email string) (string, error)
	CreateSubscriptionCheckout(ctx context.Context, customerID, priceID string, metadata map[string]string) (*stripe.CheckoutSession, error)
	CreateSetupCheckout(ctx context.Context, customerID string, metadata map[string]string) (*stripe.CheckoutSession, error)
}

// MidtransGateway is the slice of the Midtrans wrapper checkout needs.
type MidtransGateway interface {
	CreateSnapTransaction(ctx context.Context, params midtrans.SnapTransactionParams) (*midtrans.SnapTransaction, error)
}

// Input describes a checkout request for one plan via one gateway.
type Input struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	PlanID         uuid.UUID
	Gateway        enums.PaymentGateway
}

// Result is the hosted-checkout handle handed back to the client.
type Result struct {
	Gateway     enums.PaymentGateway `json:"gateway"`
	OrderID     string               `json:"order_id,omitempty"`
	SessionID   string               `json:"session_id,omitempty"`
	Token       string               `json:"token,omitempty"`
	RedirectURL string               `json:"redirect_url"`
}

// ServiceParams groups checkout dependencies.
type ServiceParams struct {
	OrgRepo     orgs.Repository
	PlanRepo    plans.Repository
	UserRepo    users.Repository
	BillingRepo billing.Repository
	Stripe      StripeGateway
	Midtrans    MidtransGateway
	Logger      *logger.Logger
	Now         func() time.Time
}

// Service starts hosted checkout sessions and records pending transactions.
type Service struct {
	orgRepo     orgs.Repository
	planRepo    plans.Repository
	userRepo    users.Repository
	billingRepo billing.Repository
	stripe      StripeGateway
	midtrans    MidtransGateway
	logg        *logger.Logger
	now         func() time.Time
}

// NewService validates and wires checkout dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.OrgRepo == nil {
		return nil, fmt.Errorf("org repo required")
	}
	if params.PlanRepo == nil {
		return nil, fmt.Errorf("plan repo required")
	}
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repo required")
	}
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		orgRepo:     params.OrgRepo,
		planRepo:    params.PlanRepo,
		userRepo:    params.UserRepo,
		billingRepo: params.BillingRepo,
		stripe:      params.Stripe,
		midtrans:    params.Midtrans,
		logg:        params.Logger,
		now:         now,
	}, nil
}

// Create starts a hosted checkout for the requested plan. Nothing is charged
// here; activation only happens when the gateway webhook confirms payment.
func (s *Service) Create(ctx context.Context, input Input) (*Result, error) {
	if input.OrganizationID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization and user ids are required")
	}
	if input.PlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan_id is required")
	}
	if !input.Gateway.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment gateway")
	}

	org, err := s.orgRepo.FindByID(ctx, input.OrganizationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load organization")
	}
	if org == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
	}

	plan, err := s.planRepo.FindByID(ctx, input.PlanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if plan.IsBasic() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "the basic plan cannot be purchased")
	}

	profile, err := s.userRepo.FindByID(ctx, input.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	if profile == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
	}

	switch input.Gateway {
	case enums.PaymentGatewayStripe:
		return s.createStripeCheckout(ctx, org, plan, profile)
	case enums.PaymentGatewayMidtrans:
		return s.createMidtransCheckout(ctx, org, plan, profile)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment gateway")
	}
}

func (s *Service) createStripeCheckout(ctx context.Context, org *models.Organization, plan *models.SubscriptionPlan, profile *models.Profile) (*Result, error) {
	if s.stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe gateway is not configured")
	}
	if plan.StripePriceID == nil || *plan.StripePriceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan is not available via stripe")
	}

	customerID, err := s.ensureStripeCustomer(ctx, org, profile)
	if err != nil {
		return nil, err
	}

	// Tenants already on a paid subscription confirm a card via a setup-mode
	// session; the plan change is applied by the webhook using this metadata.
	if org.SubscriptionStatus == enums.SubscriptionStatusActive && org.StripeSubscriptionID != nil {
		sess, err := s.stripe.CreateSetupCheckout(ctx, customerID, map[string]string{
			"intent":      "plan_change",
			"org_id":      org.ID.String(),
			"new_plan_id": plan.ID.String(),
			"prorated":    "true",
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe setup session")
		}
		return &Result{
			Gateway:     enums.PaymentGatewayStripe,
			SessionID:   sess.ID,
			RedirectURL: sess.RedirectURL,
		}, nil
	}

	sess, err := s.stripe.CreateSubscriptionCheckout(ctx, customerID, *plan.StripePriceID, map[string]string{
		"org_id":  org.ID.String(),
		"plan_id": plan.ID.String(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe checkout session")
	}
	return &Result{
		Gateway:     enums.PaymentGatewayStripe,
		SessionID:   sess.ID,
		RedirectURL: sess.RedirectURL,
	}, nil
}

// ensureStripeCustomer creates the Stripe customer once per tenant and
// persists the id so retries reuse it.
func (s *Service) ensureStripeCustomer(ctx context.Context, org *models.Organization, profile *models.Profile) (string, error) {
	if org.StripeCustomerID != nil && *org.StripeCustomerID != "" {
		return *org.StripeCustomerID, nil
	}

	customerID, err := s.stripe.CreateCustomer(ctx, org.ID.String(), org.Name, profile.Email)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe customer")
	}
	if err := s.orgRepo.SetStripeCustomerID(ctx, org.ID, customerID); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist stripe customer id")
	}
	org.StripeCustomerID = &customerID
	return customerID, nil
}

func (s *Service) createMidtransCheckout(ctx context.Context, org *models.Organization, plan *models.SubscriptionPlan, profile *models.Profile) (*Result, error) {
	if s.midtrans == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "midtrans gateway is not configured")
	}

	orderID := newOrderID()
	txn := &models.PaymentTransaction{
		OrderID:        orderID,
		OrganizationID: org.ID,
		UserID:         profile.ID,
		PlanID:         plan.ID,
		Gateway:        enums.PaymentGatewayMidtrans,
		Amount:         plan.Price,
		Status:         enums.TransactionStatusPending,
	}
	if err := s.billingRepo.CreateTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record pending transaction")
	}

	snapTxn, err := s.midtrans.CreateSnapTransaction(ctx, midtrans.SnapTransactionParams{
		OrderID:       orderID,
		GrossAmount:   plan.Price.Round(0).IntPart(),
		CustomerName:  profile.FullName,
		CustomerEmail: profile.Email,
		ItemName:      plan.Name,
	})
	if err != nil {
		if s.logg != nil {
			lctx := s.logg.WithFields(ctx, map[string]any{"order_id": orderID, "org_id": org.ID.String()})
			s.logg.Error(lctx, "snap transaction failed; pending order left for reconciliation", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create snap transaction")
	}

	return &Result{
		Gateway:     enums.PaymentGatewayMidtrans,
		OrderID:     orderID,
		Token:       snapTxn.Token,
		RedirectURL: snapTxn.RedirectURL,
	}, nil
}

func newOrderID() string {
	return fmt.Sprintf("%s-%s", orderIDPrefix, uuid.NewString())
}
