package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelolahq/kelola-backend/api/controllers"
	pkgauth "github.com/kelolahq/kelola-backend/pkg/auth"
	"github.com/kelolahq/kelola-backend/pkg/config"
	"github.com/kelolahq/kelola-backend/pkg/db/models"
	"github.com/kelolahq/kelola-backend/pkg/enums"
	"github.com/kelolahq/kelola-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubPlanRepo struct {
	plans []models.SubscriptionPlan
}

func (s *stubPlanRepo) FindByID(context.Context, uuid.UUID) (*models.SubscriptionPlan, error) {
	return nil, nil
}

func (s *stubPlanRepo) FindBySlug(context.Context, string) (*models.SubscriptionPlan, error) {
	return nil, nil
}

func (s *stubPlanRepo) List(context.Context) ([]models.SubscriptionPlan, error) {
	return s.plans, nil
}

type stubVerifier struct{}

func (stubVerifier) VerifySignature(_, _, _, _ string) bool { return false }

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "8080"},
		JWT: config.JWTConfig{
			Secret:            "router-test-secret",
			Issuer:            "kelola-test",
			ExpirationMinutes: 5,
		},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		map[string]controllers.Pinger{"database": stubPinger{}, "redis": stubPinger{}},
		nil,
		&stubPlanRepo{plans: []models.SubscriptionPlan{{Name: "Basic"}}},
		nil,
		nil,
		nil,
		nil,
		stubVerifier{},
		nil,
		nil,
		nil,
		nil,
	)
}

func TestRouterHealthEndpointsArePublic(t *testing.T) {
	router := newTestRouter(t, testConfig())

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "test", rec.Header().Get("X-Kelola-Env"), path)
	}
}

func TestRouterRejectsMissingToken(t *testing.T) {
	router := newTestRouter(t, testConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/billing/plans", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterAcceptsIssuedToken(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)

	token, err := pkgauth.IssueAccessToken(cfg.JWT, uuid.New(), uuid.New(), enums.UserRoleSuperAdmin)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/plans", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Basic")
}

func TestRouterWebhookRejectsUnsignedNotification(t *testing.T) {
	router := newTestRouter(t, testConfig())

	body := `{"order_id":"KLO-x","transaction_status":"settlement","status_code":"200","gross_amount":"1000.00","signature_key":"bogus"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/midtrans", strings.NewReader(body)))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
