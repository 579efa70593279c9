package controllers

import (
	"net/http"
	"time"

	"github.com/kelolahq/kelola-backend/api/responses"
	"github.com/kelolahq/kelola-backend/internal/orgs"
	"github.com/kelolahq/kelola-backend/internal/plans"
	"github.com/kelolahq/kelola-backend/internal/trial"
	"github.com/kelolahq/kelola-backend/pkg/db/models"
	pkgerrors "github.com/kelolahq/kelola-backend/pkg/errors"
	"github.com/kelolahq/kelola-backend/pkg/logger"
)

// TrialStatus handles GET /organizations/me/trial. The summary is computed
// from the live timestamps, never from the cached trial_expired flag.
func TrialStatus(orgRepo orgs.Repository, planRepo plans.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := orgIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		org, err := orgRepo.FindByID(r.Context(), orgID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load organization"))
			return
		}
		if org == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found"))
			return
		}

		var plan *models.SubscriptionPlan
		if org.SubscriptionPlanID != nil {
			plan, err = planRepo.FindByID(r.Context(), *org.SubscriptionPlanID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan"))
				return
			}
		}

		responses.WriteSuccess(w, trial.Summarize(org, plan, time.Now().UTC()))
	}
}
