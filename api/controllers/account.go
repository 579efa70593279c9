package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/kelolahq/kelola-backend/api/responses"
	"github.com/kelolahq/kelola-backend/internal/accounts"
	"github.com/kelolahq/kelola-backend/pkg/logger"
)

// AccountDeleter coordinates account removal.
type AccountDeleter interface {
	DeleteAccount(ctx context.Context, userID uuid.UUID) (*accounts.Result, error)
}

// DeleteAccount handles DELETE /account for the authenticated user.
func DeleteAccount(svc AccountDeleter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.DeleteAccount(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
