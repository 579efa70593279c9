package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/kelolahq/kelola-backend/api/controllers"
	"github.com/kelolahq/kelola-backend/api/routes"
	"github.com/kelolahq/kelola-backend/internal/accounts"
	"github.com/kelolahq/kelola-backend/internal/billing"
	"github.com/kelolahq/kelola-backend/internal/checkout"
	"github.com/kelolahq/kelola-backend/internal/notifications"
	"github.com/kelolahq/kelola-backend/internal/orgs"
	"github.com/kelolahq/kelola-backend/internal/plans"
	"github.com/kelolahq/kelola-backend/internal/users"
	midtranswh "github.com/kelolahq/kelola-backend/internal/webhooks/midtrans"
	stripewh "github.com/kelolahq/kelola-backend/internal/webhooks/stripe"
	"github.com/kelolahq/kelola-backend/pkg/config"
	"github.com/kelolahq/kelola-backend/pkg/db"
	"github.com/kelolahq/kelola-backend/pkg/logger"
	"github.com/kelolahq/kelola-backend/pkg/midtrans"
	"github.com/kelolahq/kelola-backend/pkg/migrate"
	"github.com/kelolahq/kelola-backend/pkg/redis"
	"github.com/kelolahq/kelola-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if cfg.App.IsDev() {
		sqlDB, err := dbClient.DB().DB()
		if err != nil {
			logg.Error(context.Background(), "failed to unwrap sql database", err)
			os.Exit(1)
		}
		if err := migrate.Up(context.Background(), sqlDB, migrate.DefaultDir); err != nil {
			logg.Error(context.Background(), "failed to run dev migrations", err)
			os.Exit(1)
		}
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	midtransClient, err := midtrans.NewClient(context.Background(), cfg.Midtrans, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap midtrans", err)
		os.Exit(1)
	}

	orgsRepo := orgs.NewRepository(dbClient.DB())
	plansRepo := plans.NewRepository(dbClient.DB())
	usersRepo := users.NewRepository(dbClient.DB())
	billingRepo := billing.NewRepository(dbClient.DB())

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	prorationService, err := billing.NewProrationService(billing.ProrationServiceParams{
		OrgRepo:  orgsRepo,
		PlanRepo: plansRepo,
		Gateway:  stripeClient,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create proration service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		OrgRepo:     orgsRepo,
		PlanRepo:    plansRepo,
		UserRepo:    usersRepo,
		BillingRepo: billingRepo,
		Stripe:      stripeClient,
		Midtrans:    midtransClient,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	accountsService, err := accounts.NewService(accounts.ServiceParams{
		UserRepo:    usersRepo,
		OrgRepo:     orgsRepo,
		BillingRepo: billingRepo,
		Cleanup:     accounts.NewCleanupRepository(dbClient.DB()),
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create accounts service", err)
		os.Exit(1)
	}

	midtransWebhookService, err := midtranswh.NewService(midtranswh.ServiceParams{
		Tx:            dbClient,
		BillingRepo:   billingRepo,
		OrgRepo:       orgsRepo,
		PlanRepo:      plansRepo,
		UserRepo:      usersRepo,
		Notifications: notificationsService,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create midtrans webhook service", err)
		os.Exit(1)
	}

	stripeWebhookService, err := stripewh.NewService(stripewh.ServiceParams{
		Tx:            dbClient,
		OrgRepo:       orgsRepo,
		PlanRepo:      plansRepo,
		BillingRepo:   billingRepo,
		UserRepo:      usersRepo,
		Notifications: notificationsService,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			orgsRepo,
			plansRepo,
			notificationsService,
			prorationService,
			checkoutService,
			accountsService,
			midtransClient,
			midtranswh.NewGuard(redisClient),
			midtransWebhookService,
			stripeClient,
			stripeWebhookService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
