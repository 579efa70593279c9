package accounts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/kelolahq/kelola-backend/internal/billing"
	"github.com/kelolahq/kelola-backend/internal/orgs"
	"github.com/kelolahq/kelola-backend/internal/users"
	"github.com/kelolahq/kelola-backend/pkg/db/models"
	"github.com/kelolahq/kelola-backend/pkg/enums"
	pkgerrors "github.com/kelolahq/kelola-backend/pkg/errors"
	"github.com/kelolahq/kelola-backend/pkg/logger"
)

// Result reports what account deletion actually removed. CleanupErrors list
// the best-effort steps that failed; the deletion itself still succeeded.
type Result struct {
	ProfileDeleted      bool     `json:"profile_deleted"`
	OrganizationDeleted bool     `json:"organization_deleted"`
	CleanupErrors       []string `json:"cleanup_errors,omitempty"`
}

// ServiceParams groups account-deletion dependencies.
type ServiceParams struct {
	UserRepo    users.Repository
	OrgRepo     orgs.Repository
	BillingRepo billing.Repository
	Cleanup     CleanupRepository
	Logger      *logger.Logger
}

// Service coordinates account deletion across billing and tenant data.
type Service struct {
	userRepo    users.Repository
	orgRepo     orgs.Repository
	billingRepo billing.Repository
	cleanup     CleanupRepository
	logg        *logger.Logger
}

// NewService validates and wires the deletion coordinator.
func NewService(params ServiceParams) (*Service, error) {
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repo required")
	}
	if params.OrgRepo == nil {
		return nil, fmt.Errorf("org repo required")
	}
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.Cleanup == nil {
		return nil, fmt.Errorf("cleanup repo required")
	}
	return &Service{
		userRepo:    params.UserRepo,
		orgRepo:     params.OrgRepo,
		billingRepo: params.BillingRepo,
		cleanup:     params.Cleanup,
		logg:        params.Logger,
	}, nil
}

// DeleteAccount removes the profile and, when it was the tenant's last super
// admin, retires the organization with it. Cleanup steps are best-effort; the
// profile delete runs last so a partial failure can be retried.
func (s *Service) DeleteAccount(ctx context.Context, userID uuid.UUID) (*Result, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	profile, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	if profile == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
	}

	lastSuperAdmin := false
	if profile.Role == enums.UserRoleSuperAdmin {
		others, err := s.userRepo.CountOtherSuperAdmins(ctx, profile.OrganizationID, profile.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count super admins")
		}
		lastSuperAdmin = others == 0
	}

	var cleanupErr error
	result := &Result{}

	// The user's own rows go regardless of role; logs first, they reference
	// the transactions.
	cleanupErr = multierr.Append(cleanupErr, s.cleanupStep(ctx, "user notifications",
		func() error { return s.cleanup.DeleteNotificationsByUser(ctx, profile.ID) }))
	cleanupErr = multierr.Append(cleanupErr, s.cleanupStep(ctx, "user transaction logs",
		func() error { return s.cleanup.DeleteTransactionLogsByUser(ctx, profile.ID) }))
	cleanupErr = multierr.Append(cleanupErr, s.cleanupStep(ctx, "user payment transactions",
		func() error { return s.cleanup.DeletePaymentTransactionsByUser(ctx, profile.ID) }))

	if lastSuperAdmin {
		orgID := profile.OrganizationID

		cleanupErr = multierr.Append(cleanupErr, s.cleanupStep(ctx, "org notifications",
			func() error { return s.cleanup.DeleteNotificationsByOrg(ctx, orgID) }))
		cleanupErr = multierr.Append(cleanupErr, s.cleanupStep(ctx, "transaction logs",
			func() error { return s.cleanup.DeleteTransactionLogsByOrg(ctx, orgID) }))
		cleanupErr = multierr.Append(cleanupErr, s.cleanupStep(ctx, "payment transactions",
			func() error { return s.cleanup.DeletePaymentTransactionsByOrg(ctx, orgID) }))
		cleanupErr = multierr.Append(cleanupErr, s.cleanupStep(ctx, "audit logs",
			func() error { return s.cleanup.DeleteAuditLogsByOrg(ctx, orgID) }))

		if err := s.orgRepo.SoftDelete(ctx, orgID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retire organization")
		}
		result.OrganizationDeleted = true

		// Written after the org-scoped cleanup so the deletion itself leaves
		// a trace.
		detail, _ := json.Marshal(map[string]string{"deleted_by": profile.ID.String()})
		cleanupErr = multierr.Append(cleanupErr, s.cleanupStep(ctx, "deletion audit",
			func() error {
				return s.billingRepo.CreateAuditLog(ctx, &models.SubscriptionAuditLog{
					OrganizationID: orgID,
					Action:         enums.AuditActionOrganizationDeleted,
					Detail:         detail,
				})
			}))
	}

	// The profile goes last: while it exists the user can retry deletion.
	if err := s.userRepo.Delete(ctx, profile.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete profile")
	}
	result.ProfileDeleted = true

	for _, stepErr := range multierr.Errors(cleanupErr) {
		result.CleanupErrors = append(result.CleanupErrors, stepErr.Error())
	}
	return result, nil
}

func (s *Service) cleanupStep(ctx context.Context, name string, fn func() error) error {
	if err := fn(); err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, fmt.Sprintf("account cleanup step %q failed", name), err)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
