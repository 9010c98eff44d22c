package signing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/veilcare/settlement-backend/pkg/config"
	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
	"github.com/veilcare/settlement-backend/pkg/logger"
)

// Coordinator asks the external MPC signer to authorize an intent's
// settlement leg. The outcome is boolean; a declined authorization is
// terminal for the intent, transport failures are retryable.
type Coordinator interface {
	Sign(ctx context.Context, intentID uuid.UUID) (bool, error)
}

type coordinator struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logger.Logger
}

type signRequest struct {
	IntentID string `json:"intent_id"`
}

type signResponse struct {
	Authorized bool   `json:"authorized"`
	Reason     string `json:"reason,omitempty"`
}

// NewCoordinator builds an HTTP-backed signing coordinator.
func NewCoordinator(cfg config.SignerConfig, logg *logger.Logger) (Coordinator, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("signer base url is required")
	}
	return &coordinator{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		logger:     logg,
	}, nil
}

func (c *coordinator) Sign(ctx context.Context, intentID uuid.UUID) (bool, error) {
	if intentID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "intent id is required")
	}

	body, err := json.Marshal(signRequest{IntentID: intentID.String()})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/signatures", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "signer request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return false, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("signer returned %s", resp.Status))
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := fmt.Sprintf("signer rejected request: %s", resp.Status)
		if len(b) > 0 {
			msg = fmt.Sprintf("%s: %s", msg, strings.TrimSpace(string(b)))
		}
		return false, pkgerrors.New(pkgerrors.CodeSigningRejected, msg)
	}

	var parsed signResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding signer response")
	}

	if c.logger != nil {
		c.logger.Info(c.logger.WithFields(ctx, map[string]any{
			"intent_id":  intentID.String(),
			"authorized": parsed.Authorized,
		}), "signer responded")
	}

	return parsed.Authorized, nil
}
