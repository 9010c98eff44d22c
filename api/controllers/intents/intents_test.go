package intents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	internalintents "github.com/veilcare/settlement-backend/internal/intents"
	"github.com/veilcare/settlement-backend/pkg/db/models"
	"github.com/veilcare/settlement-backend/pkg/enums"
	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
	"github.com/veilcare/settlement-backend/pkg/pagination"
	"github.com/veilcare/settlement-backend/pkg/types"
)

type stubService struct {
	created   *models.PaymentIntent
	createErr error
	lastInput internalintents.CreateIntentInput

	intents map[uuid.UUID]*models.PaymentIntent

	page    *internalintents.Page
	listErr error
}

func (s *stubService) Create(ctx context.Context, input internalintents.CreateIntentInput) (*models.PaymentIntent, error) {
	s.lastInput = input
	if s.createErr != nil {
		return nil, s.createErr
	}
	if s.created == nil {
		s.created = &models.PaymentIntent{
			ID:          uuid.New(),
			FamilyID:    input.FamilyID,
			ClinicID:    input.ClinicID,
			AmountCents: input.AmountCents,
			Currency:    input.Currency,
			InputMethod: input.InputMethod,
			Status:      enums.IntentStatusCreated,
		}
	}
	return s.created, nil
}

func (s *stubService) Get(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	intent, ok := s.intents[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}
	return intent, nil
}

func (s *stubService) ListByFamily(ctx context.Context, familyID uuid.UUID, params pagination.Params) (*internalintents.Page, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if s.page == nil {
		return &internalintents.Page{}, nil
	}
	return s.page, nil
}

type stubSolver struct {
	err   error
	calls int
}

func (s *stubSolver) Process(ctx context.Context, intentID uuid.UUID) error {
	s.calls++
	return s.err
}

func createBody(t *testing.T, mutate func(map[string]any)) *bytes.Reader {
	t.Helper()
	body := map[string]any{
		"family_id":    uuid.NewString(),
		"clinic_id":    uuid.NewString(),
		"amount_cents": 12500,
		"currency":     "USD",
		"input_method": "ledger_balance",
	}
	if mutate != nil {
		mutate(body)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(raw)
}

func TestCreateReturnsCreated(t *testing.T) {
	svc := &stubService{intents: map[uuid.UUID]*models.PaymentIntent{}}
	handler := Create(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/intents", createBody(t, nil))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if svc.lastInput.Currency != enums.CurrencyUSD {
		t.Fatalf("unexpected currency %s", svc.lastInput.Currency)
	}
	if svc.lastInput.InputMethod != enums.InputMethodLedgerBalance {
		t.Fatalf("unexpected input method %s", svc.lastInput.InputMethod)
	}
}

func TestCreateNormalizesCase(t *testing.T) {
	svc := &stubService{intents: map[uuid.UUID]*models.PaymentIntent{}}
	handler := Create(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/intents", createBody(t, func(m map[string]any) {
		m["currency"] = "usd"
		m["input_method"] = "LEDGER_BALANCE"
	}))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if svc.lastInput.Currency != enums.CurrencyUSD || svc.lastInput.InputMethod != enums.InputMethodLedgerBalance {
		t.Fatalf("expected normalized enums, got %s/%s", svc.lastInput.Currency, svc.lastInput.InputMethod)
	}
}

func TestCreateRejectsBadBody(t *testing.T) {
	svc := &stubService{}
	handler := Create(svc, nil)

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing family", func(m map[string]any) { delete(m, "family_id") }},
		{"bad family uuid", func(m map[string]any) { m["family_id"] = "nope" }},
		{"zero amount", func(m map[string]any) { m["amount_cents"] = 0 }},
		{"unknown field", func(m map[string]any) { m["surprise"] = true }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/intents", createBody(t, tc.mutate))
			w := httptest.NewRecorder()
			handler(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestCreatePropagatesServiceError(t *testing.T) {
	svc := &stubService{createErr: pkgerrors.New(pkgerrors.CodeValidation, "chain-funded intents require a transaction reference")}
	handler := Create(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/intents", createBody(t, nil))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func routedRequest(t *testing.T, method, path, param string, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.MethodFunc(method, path, handler)
	req := httptest.NewRequest(method, param, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDetail(t *testing.T) {
	intent := &models.PaymentIntent{
		ID:          uuid.New(),
		FamilyID:    uuid.New(),
		ClinicID:    uuid.New(),
		AmountCents: 100,
		Currency:    enums.CurrencyUSD,
		InputMethod: enums.InputMethodLedgerBalance,
		Status:      enums.IntentStatusSettled,
	}
	svc := &stubService{intents: map[uuid.UUID]*models.PaymentIntent{intent.ID: intent}}

	w := routedRequest(t, http.MethodGet, "/intents/{intentId}",
		fmt.Sprintf("/intents/%s", intent.ID), Detail(svc, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var envelope types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data := envelope.Data.(map[string]any)
	if data["status"] != "settled" {
		t.Fatalf("unexpected status %v", data["status"])
	}

	w = routedRequest(t, http.MethodGet, "/intents/{intentId}",
		fmt.Sprintf("/intents/%s", uuid.New()), Detail(svc, nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w = routedRequest(t, http.MethodGet, "/intents/{intentId}",
		"/intents/not-a-uuid", Detail(svc, nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListRequiresFamilyID(t *testing.T) {
	svc := &stubService{}

	req := httptest.NewRequest(http.MethodGet, "/intents", nil)
	w := httptest.NewRecorder()
	List(svc, nil)(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListReturnsPage(t *testing.T) {
	familyID := uuid.New()
	svc := &stubService{
		page: &internalintents.Page{
			Intents: []models.PaymentIntent{
				{ID: uuid.New(), FamilyID: familyID, Status: enums.IntentStatusSettled},
			},
			NextCursor: "cursor-token",
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/intents?family_id="+familyID.String()+"&limit=1", nil)
	w := httptest.NewRecorder()
	List(svc, nil)(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var envelope types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data := envelope.Data.(map[string]any)
	if data["next_cursor"] != "cursor-token" {
		t.Fatalf("expected next cursor, got %v", data["next_cursor"])
	}
}

func TestProcessReturnsTerminalIntent(t *testing.T) {
	reason := "signing failed"
	intent := &models.PaymentIntent{
		ID:            uuid.New(),
		Status:        enums.IntentStatusFailed,
		FailureReason: &reason,
	}
	svc := &stubService{intents: map[uuid.UUID]*models.PaymentIntent{intent.ID: intent}}
	solver := &stubSolver{err: pkgerrors.New(pkgerrors.CodeSigningRejected, reason)}

	w := routedRequest(t, http.MethodPost, "/intents/{intentId}/process",
		fmt.Sprintf("/intents/%s/process", intent.ID), Process(svc, solver, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("persisted failure should return the intent, got %d: %s", w.Code, w.Body.String())
	}
	if solver.calls != 1 {
		t.Fatalf("expected one solver run, got %d", solver.calls)
	}

	var envelope types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data := envelope.Data.(map[string]any)
	if data["status"] != "failed" || data["failure_reason"] != reason {
		t.Fatalf("unexpected payload %v", data)
	}
}

func TestProcessTransientErrorPropagates(t *testing.T) {
	intent := &models.PaymentIntent{ID: uuid.New(), Status: enums.IntentStatusRouting}
	svc := &stubService{intents: map[uuid.UUID]*models.PaymentIntent{intent.ID: intent}}
	solver := &stubSolver{err: pkgerrors.New(pkgerrors.CodeDependency, "relay unavailable")}

	w := routedRequest(t, http.MethodPost, "/intents/{intentId}/process",
		fmt.Sprintf("/intents/%s/process", intent.ID), Process(svc, solver, nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
