package shielding

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veilcare/settlement-backend/pkg/config"
	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
	"github.com/veilcare/settlement-backend/pkg/logger"
	"github.com/veilcare/settlement-backend/pkg/metrics"
	"github.com/veilcare/settlement-backend/pkg/retry"
)

// TransferInput carries everything one shielded transfer needs.
type TransferInput struct {
	IntentID      uuid.UUID
	WalletAddress string
	Asset         string
	Amount        decimal.Decimal
}

// Result is the outcome of a completed shielded transfer.
type Result struct {
	SettlementRef string
	ProofHandle   string
}

// proofStore persists the relay's proof blob and returns a durable handle.
type proofStore interface {
	ProofObjectName(intentID string) string
	UploadObject(ctx context.Context, name, contentType string, payload []byte) (string, error)
}

// Executor runs the deposit, proof, and shielded-transfer phases against the
// privacy relay, each phase under its own exponential retry budget.
type Executor interface {
	Transfer(ctx context.Context, input TransferInput) (*Result, error)
}

type executor struct {
	relay   relayClient
	proofs  proofStore
	policy  retry.Policy
	minimum decimal.Decimal
	logger  *logger.Logger
	metrics *metrics.SettlementMetrics
}

// NewExecutor wires the relay-backed privacy transfer executor.
func NewExecutor(relayCfg config.RelayConfig, settlementCfg config.SettlementConfig, proofs proofStore, logg *logger.Logger, m *metrics.SettlementMetrics) (Executor, error) {
	relay, err := newRelayClient(relayCfg)
	if err != nil {
		return nil, err
	}
	return newExecutor(relay, relayCfg, settlementCfg, proofs, logg, m)
}

func newExecutor(relay relayClient, relayCfg config.RelayConfig, settlementCfg config.SettlementConfig, proofs proofStore, logg *logger.Logger, m *metrics.SettlementMetrics) (Executor, error) {
	if relay == nil {
		return nil, fmt.Errorf("relay client required")
	}
	if proofs == nil {
		return nil, fmt.Errorf("proof store required")
	}
	minimum, err := decimal.NewFromString(settlementCfg.MinTransferWei)
	if err != nil {
		return nil, fmt.Errorf("invalid minimum transfer amount %q: %w", settlementCfg.MinTransferWei, err)
	}
	return &executor{
		relay:  relay,
		proofs: proofs,
		policy: retry.Policy{
			MaxAttempts: relayCfg.PhaseMaxAttempts,
			BaseDelay:   relayCfg.PhaseBaseDelay,
			Backoff:     retry.Exponential,
		},
		minimum: minimum,
		logger:  logg,
		metrics: m,
	}, nil
}

// Transfer runs the three relay phases in order. The minimum floor fails
// before any external call; a phase that exhausts its retries aborts the
// whole step.
func (e *executor) Transfer(ctx context.Context, input TransferInput) (*Result, error) {
	if input.WalletAddress == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet address is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer amount must be positive")
	}
	if input.Amount.LessThan(e.minimum) {
		return nil, pkgerrors.New(pkgerrors.CodeBelowMinimum,
			fmt.Sprintf("transfer amount %s below minimum %s", input.Amount, e.minimum))
	}

	var depositID string
	err := e.phase(ctx, "deposit", func(ctx context.Context) error {
		var err error
		depositID, err = e.relay.Deposit(ctx, input.WalletAddress, input.Asset, input.Amount)
		return err
	})
	if err != nil {
		return nil, err
	}

	var proof *proofResult
	err = e.phase(ctx, "proof", func(ctx context.Context) error {
		var err error
		proof, err = e.relay.Prove(ctx, depositID, input.Amount)
		return err
	})
	if err != nil {
		return nil, err
	}

	var transferRef string
	err = e.phase(ctx, "transfer", func(ctx context.Context) error {
		var err error
		transferRef, err = e.relay.Transfer(ctx, depositID, proof.ProofID)
		return err
	})
	if err != nil {
		return nil, err
	}

	handle, err := e.storeProof(ctx, input, depositID, transferRef, proof)
	if err != nil {
		return nil, err
	}

	if e.logger != nil {
		e.logger.Info(e.logger.WithFields(ctx, map[string]any{
			"intent_id":      input.IntentID.String(),
			"settlement_ref": transferRef,
		}), "shielded transfer complete")
	}

	return &Result{SettlementRef: transferRef, ProofHandle: handle}, nil
}

func (e *executor) phase(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := retry.Do(ctx, e.policy, fn)
	e.metrics.ObserveStep("shielding_"+name, time.Since(start))
	return err
}

// storeProof uploads the proof blob so auditors can later re-verify the
// settlement without the relay.
func (e *executor) storeProof(ctx context.Context, input TransferInput, depositID, transferRef string, proof *proofResult) (string, error) {
	blob, err := json.Marshal(map[string]string{
		"intent_id":      input.IntentID.String(),
		"deposit_id":     depositID,
		"settlement_ref": transferRef,
		"commitment":     proof.Commitment,
		"proof":          proof.Proof,
	})
	if err != nil {
		return "", err
	}

	name := e.proofs.ProofObjectName(input.IntentID.String())
	handle, err := e.proofs.UploadObject(ctx, name, "application/json", blob)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storing settlement proof")
	}
	return handle, nil
}
