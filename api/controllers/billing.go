package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/kelolahq/kelola-backend/api/middleware"
	"github.com/kelolahq/kelola-backend/api/responses"
	"github.com/kelolahq/kelola-backend/api/validators"
	"github.com/kelolahq/kelola-backend/internal/billing"
	"github.com/kelolahq/kelola-backend/internal/checkout"
	"github.com/kelolahq/kelola-backend/internal/plans"
	"github.com/kelolahq/kelola-backend/pkg/enums"
	pkgerrors "github.com/kelolahq/kelola-backend/pkg/errors"
	"github.com/kelolahq/kelola-backend/pkg/logger"
)

// ProrationPreviewer previews prorated plan changes.
type ProrationPreviewer interface {
	Preview(ctx context.Context, orgID uuid.UUID, input billing.ProrationInput) (*billing.ProrationBreakdown, error)
}

// CheckoutCreator starts hosted checkout sessions.
type CheckoutCreator interface {
	Create(ctx context.Context, input checkout.Input) (*checkout.Result, error)
}

type prorationRequest struct {
	CurrentPlanID string `json:"current_plan_id" validate:"omitempty,uuid"`
	NewPlanID     string `json:"new_plan_id" validate:"required,uuid"`
}

// ProrationPreview handles POST /billing/proration.
func ProrationPreview(svc ProrationPreviewer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req prorationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := billing.ProrationInput{}
		if req.CurrentPlanID != "" {
			input.CurrentPlanID = uuid.MustParse(req.CurrentPlanID)
		}
		input.NewPlanID = uuid.MustParse(req.NewPlanID)

		breakdown, err := svc.Preview(r.Context(), orgID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, breakdown)
	}
}

type checkoutRequest struct {
	PlanID  string `json:"plan_id" validate:"required,uuid"`
	Gateway string `json:"gateway" validate:"required,oneof=stripe midtrans"`
}

// CreateCheckout handles POST /billing/checkout.
func CreateCheckout(svc CheckoutCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		gateway, err := enums.ParsePaymentGateway(req.Gateway)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid gateway"))
			return
		}

		result, err := svc.Create(r.Context(), checkout.Input{
			OrganizationID: orgID,
			UserID:         userID,
			PlanID:         uuid.MustParse(req.PlanID),
			Gateway:        gateway,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ListPlans handles GET /billing/plans.
func ListPlans(repo plans.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := repo.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list plans"))
			return
		}
		responses.WriteSuccess(w, items)
	}
}

func orgIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.OrgIDFromContext(r.Context())
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing organization context")
	}
	return id, nil
}

func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context")
	}
	return id, nil
}
