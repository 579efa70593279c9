package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kelolahq/kelola-backend/api/controllers"
	"github.com/kelolahq/kelola-backend/api/middleware"
	"github.com/kelolahq/kelola-backend/internal/notifications"
	"github.com/kelolahq/kelola-backend/internal/orgs"
	"github.com/kelolahq/kelola-backend/internal/plans"
	midtranswh "github.com/kelolahq/kelola-backend/internal/webhooks/midtrans"
	"github.com/kelolahq/kelola-backend/pkg/config"
	"github.com/kelolahq/kelola-backend/pkg/logger"
)

// NewRouter assembles the HTTP surface: public health and webhook endpoints,
// and the authenticated billing/account routes behind JWT auth.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	pingers map[string]controllers.Pinger,
	orgsRepo orgs.Repository,
	plansRepo plans.Repository,
	notificationsService notifications.Service,
	prorationService controllers.ProrationPreviewer,
	checkoutService controllers.CheckoutCreator,
	accountsService controllers.AccountDeleter,
	midtransVerifier controllers.MidtransVerifier,
	midtransGuard *midtranswh.Guard,
	midtransWebhookService controllers.MidtransNotificationHandler,
	stripeConstructor controllers.StripeEventConstructor,
	stripeWebhookService controllers.StripeEventHandler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pingers))
	})

	// Gateways authenticate with signatures, not JWTs.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/midtrans", controllers.MidtransWebhook(midtransVerifier, midtransGuard, midtransWebhookService, logg))
		r.Post("/stripe", controllers.StripeWebhook(stripeConstructor, stripeWebhookService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/billing", func(r chi.Router) {
			r.Get("/plans", controllers.ListPlans(plansRepo, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin(logg))
				r.Post("/proration", controllers.ProrationPreview(prorationService, logg))
				r.Post("/checkout", controllers.CreateCheckout(checkoutService, logg))
			})
		})

		r.Get("/organizations/me/trial", controllers.TrialStatus(orgsRepo, plansRepo, logg))
		r.Delete("/account", controllers.DeleteAccount(accountsService, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{id}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})
	})

	return r
}
