package shielding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/veilcare/settlement-backend/pkg/config"
	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
)

// relayClient is the privacy-transfer relay surface the executor drives.
// Each method maps to one relay phase.
type relayClient interface {
	Deposit(ctx context.Context, walletAddress, asset string, amount decimal.Decimal) (string, error)
	Prove(ctx context.Context, depositID string, amount decimal.Decimal) (*proofResult, error)
	Transfer(ctx context.Context, depositID, proofID string) (string, error)
}

type proofResult struct {
	ProofID    string `json:"proof_id"`
	Commitment string `json:"commitment"`
	Proof      string `json:"proof"`
}

type httpRelay struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewRelayClient builds the HTTP client for the external privacy relay.
func newRelayClient(cfg config.RelayConfig) (relayClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("relay base url is required")
	}
	return &httpRelay{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
	}, nil
}

func (r *httpRelay) Deposit(ctx context.Context, walletAddress, asset string, amount decimal.Decimal) (string, error) {
	var resp struct {
		DepositID string `json:"deposit_id"`
	}
	err := r.post(ctx, "/v1/deposits", map[string]any{
		"wallet_address": walletAddress,
		"asset":          asset,
		"amount":         amount.String(),
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.DepositID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "relay returned no deposit id")
	}
	return resp.DepositID, nil
}

func (r *httpRelay) Prove(ctx context.Context, depositID string, amount decimal.Decimal) (*proofResult, error) {
	var resp proofResult
	err := r.post(ctx, "/v1/proofs", map[string]any{
		"deposit_id": depositID,
		"amount":     amount.String(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ProofID == "" || resp.Proof == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "relay returned an incomplete proof")
	}
	return &resp, nil
}

func (r *httpRelay) Transfer(ctx context.Context, depositID, proofID string) (string, error) {
	var resp struct {
		TransferRef string `json:"transfer_ref"`
	}
	err := r.post(ctx, "/v1/transfers", map[string]any{
		"deposit_id": depositID,
		"proof_id":   proofID,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.TransferRef == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "relay returned no transfer reference")
	}
	return resp.TransferRef, nil
}

func (r *httpRelay) post(ctx context.Context, path string, payload map[string]any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "relay request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("relay %s returned %s", path, resp.Status))
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := fmt.Sprintf("relay %s rejected request: %s", path, resp.Status)
		if len(b) > 0 {
			msg = fmt.Sprintf("%s: %s", msg, strings.TrimSpace(string(b)))
		}
		return pkgerrors.New(pkgerrors.CodeValidation, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding relay response")
	}
	return nil
}
