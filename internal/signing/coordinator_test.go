package signing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/veilcare/settlement-backend/pkg/config"
	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
)

func newTestCoordinator(t *testing.T, handler http.HandlerFunc) Coordinator {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewCoordinator(config.SignerConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	return c
}

func TestSignAuthorized(t *testing.T) {
	intentID := uuid.New()
	c := newTestCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/signatures" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing api key header, got %q", got)
		}
		var req signRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.IntentID != intentID.String() {
			t.Errorf("unexpected intent id %s", req.IntentID)
		}
		_ = json.NewEncoder(w).Encode(signResponse{Authorized: true})
	})

	ok, err := c.Sign(context.Background(), intentID)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !ok {
		t.Fatal("expected authorization")
	}
}

func TestSignDeclined(t *testing.T) {
	c := newTestCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(signResponse{Authorized: false, Reason: "policy"})
	})

	ok, err := c.Sign(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if ok {
		t.Fatal("expected declined authorization")
	}
}

func TestSignServerErrorIsRetryable(t *testing.T) {
	c := newTestCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Sign(context.Background(), uuid.New())
	domainErr := pkgerrors.As(err)
	if domainErr == nil || domainErr.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected CodeDependency, got %v", err)
	}
	if !pkgerrors.IsRetryable(err) {
		t.Fatal("5xx must be retryable")
	}
}

func TestSignClientErrorIsTerminal(t *testing.T) {
	c := newTestCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown intent", http.StatusUnprocessableEntity)
	})

	_, err := c.Sign(context.Background(), uuid.New())
	domainErr := pkgerrors.As(err)
	if domainErr == nil || domainErr.Code() != pkgerrors.CodeSigningRejected {
		t.Fatalf("expected CodeSigningRejected, got %v", err)
	}
	if pkgerrors.IsRetryable(err) {
		t.Fatal("4xx must not be retryable")
	}
}

func TestSignRequiresIntentID(t *testing.T) {
	c := newTestCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("signer must not be called")
	})

	_, err := c.Sign(context.Background(), uuid.Nil)
	domainErr := pkgerrors.As(err)
	if domainErr == nil || domainErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected CodeValidation, got %v", err)
	}
}
