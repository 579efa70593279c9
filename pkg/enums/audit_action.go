package enums

// AuditAction names the subscription lifecycle events worth an audit row.
type AuditAction string

const (
	AuditActionSubscriptionActivated AuditAction = "subscription_activated"
	AuditActionPlanChanged           AuditAction = "plan_changed"
	AuditActionPaymentFailed         AuditAction = "payment_failed"
	AuditActionTrialExpired          AuditAction = "trial_expired"
	AuditActionOrganizationDeleted   AuditAction = "organization_deleted"
)

// String implements fmt.Stringer.
func (a AuditAction) String() string {
	return string(a)
}
