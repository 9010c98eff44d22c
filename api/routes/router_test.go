package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	internalintents "github.com/veilcare/settlement-backend/internal/intents"
	"github.com/veilcare/settlement-backend/pkg/config"
	"github.com/veilcare/settlement-backend/pkg/db/models"
	"github.com/veilcare/settlement-backend/pkg/enums"
	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
	"github.com/veilcare/settlement-backend/pkg/logger"
	"github.com/veilcare/settlement-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubIntentService struct{}

func (stubIntentService) Create(ctx context.Context, input internalintents.CreateIntentInput) (*models.PaymentIntent, error) {
	return &models.PaymentIntent{
		ID:          uuid.New(),
		FamilyID:    input.FamilyID,
		ClinicID:    input.ClinicID,
		AmountCents: input.AmountCents,
		Currency:    input.Currency,
		InputMethod: input.InputMethod,
		Status:      enums.IntentStatusCreated,
	}, nil
}

func (stubIntentService) Get(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
}

func (stubIntentService) ListByFamily(ctx context.Context, familyID uuid.UUID, params pagination.Params) (*internalintents.Page, error) {
	return &internalintents.Page{}, nil
}

type stubSolver struct{}

func (stubSolver) Process(ctx context.Context, intentID uuid.UUID) error { return nil }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Env = "test"
	return NewRouter(Deps{
		Config:   cfg,
		Logger:   logger.New(logger.Options{ServiceName: "router-test"}),
		DB:       stubPinger{},
		Redis:    stubPinger{},
		GCS:      stubPinger{},
		BigQuery: stubPinger{},
		Intents:  stubIntentService{},
		Solver:   stubSolver{},
	})
}

func TestRouterHealthEndpoints(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/health/live", "/health/ready", "/api/public/ping"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestRouterRequestIDHeader(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected a generated request id header")
	}

	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-Id", "req-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("expected the caller's request id echoed, got %q", got)
	}
}

func TestRouterIntentRoutes(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/intents/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from stub service, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/intents/?family_id="+uuid.NewString(), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from list, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
