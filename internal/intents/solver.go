package intents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/veilcare/settlement-backend/internal/chainverify"
	"github.com/veilcare/settlement-backend/internal/gateway"
	"github.com/veilcare/settlement-backend/internal/ledger"
	"github.com/veilcare/settlement-backend/internal/rates"
	"github.com/veilcare/settlement-backend/internal/shielding"
	"github.com/veilcare/settlement-backend/internal/signing"
	"github.com/veilcare/settlement-backend/pkg/db/models"
	"github.com/veilcare/settlement-backend/pkg/enums"
	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
	"github.com/veilcare/settlement-backend/pkg/logger"
	"github.com/veilcare/settlement-backend/pkg/metrics"
)

// railShieldedPool is the only settlement rail currently routed to. The
// routing step stays a seam for future rail selection.
const railShieldedPool = "shielded_pool"

// Solver drives a payment intent through its settlement states. Process is
// safe to call repeatedly: terminal intents are no-ops and a non-terminal
// intent resumes from its persisted status.
type Solver interface {
	Process(ctx context.Context, intentID uuid.UUID) error
}

type solver struct {
	repo     Repository
	ledger   ledger.Service
	rates    rates.Converter
	chain    chainverify.Verifier
	gateway  gateway.Verifier
	signer   signing.Coordinator
	shielder shielding.Executor
	lease    Lease
	logger   *logger.Logger
	metrics  *metrics.SettlementMetrics
}

// SolverDeps lists the collaborators a solver needs.
type SolverDeps struct {
	Repo     Repository
	Ledger   ledger.Service
	Rates    rates.Converter
	Chain    chainverify.Verifier
	Gateway  gateway.Verifier
	Signer   signing.Coordinator
	Shielder shielding.Executor
	Lease    Lease
	Logger   *logger.Logger
	Metrics  *metrics.SettlementMetrics
}

// NewSolver wires the settlement state machine.
func NewSolver(deps SolverDeps) (Solver, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("intent repository required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("balance ledger required")
	}
	if deps.Rates == nil {
		return nil, fmt.Errorf("rate converter required")
	}
	if deps.Chain == nil {
		return nil, fmt.Errorf("chain verifier required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway verifier required")
	}
	if deps.Signer == nil {
		return nil, fmt.Errorf("signing coordinator required")
	}
	if deps.Shielder == nil {
		return nil, fmt.Errorf("privacy transfer executor required")
	}
	if deps.Lease == nil {
		return nil, fmt.Errorf("intent lease required")
	}
	return &solver{
		repo:     deps.Repo,
		ledger:   deps.Ledger,
		rates:    deps.Rates,
		chain:    deps.Chain,
		gateway:  deps.Gateway,
		signer:   deps.Signer,
		shielder: deps.Shielder,
		lease:    deps.Lease,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
	}, nil
}

// Process runs the intent forward until a terminal status. Statuses advance
// through explicit iteration, one guarded persistence per completed step, so
// an interrupted chain resumes exactly where it stopped.
func (s *solver) Process(ctx context.Context, intentID uuid.UUID) error {
	if intentID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "intent id is required")
	}

	acquired, err := s.lease.Acquire(ctx, intentID)
	if err != nil {
		return err
	}
	if !acquired {
		s.info(ctx, intentID, "intent lease held elsewhere, skipping")
		return nil
	}
	defer func() {
		if releaseErr := s.lease.Release(ctx, intentID); releaseErr != nil && s.logger != nil {
			s.logger.Warn(ctx, fmt.Sprintf("releasing intent lease: %v", releaseErr))
		}
	}()

	for {
		intent, err := s.repo.GetByID(ctx, intentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "payment intent not found")
			}
			return err
		}

		if intent.Status.IsTerminal() {
			s.info(ctx, intentID, fmt.Sprintf("intent already %s, nothing to do", intent.Status))
			return nil
		}

		advanced, stepErr := s.step(ctx, intent)
		if stepErr != nil {
			return s.fail(ctx, intent, stepErr)
		}
		if !advanced {
			// Lost the CAS race: another worker advanced the intent.
			s.info(ctx, intentID, "intent advanced by another worker, stopping")
			return nil
		}
		// advance mutates intent.Status to the persisted value.
		if intent.Status == enums.IntentStatusSettled {
			s.metrics.IncOutcome(string(enums.IntentStatusSettled))
			s.info(ctx, intentID, "intent settled")
			return nil
		}
	}
}

// step performs the work for the intent's current status and persists the
// transition. It reports whether the CAS guard applied.
func (s *solver) step(ctx context.Context, intent *models.PaymentIntent) (bool, error) {
	start := time.Now()
	status := intent.Status
	defer func() {
		s.metrics.ObserveStep(string(status), time.Since(start))
	}()

	switch intent.Status {
	case enums.IntentStatusCreated:
		return s.stepFunding(ctx, intent)
	case enums.IntentStatusFundingDetected:
		return s.stepRouting(ctx, intent)
	case enums.IntentStatusRouting:
		return s.stepSigning(ctx, intent)
	case enums.IntentStatusShielding:
		return s.stepShielding(ctx, intent)
	default:
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("unprocessable intent status %q", intent.Status))
	}
}

// stepFunding verifies funding per the intent's input method and advances to
// FUNDING_DETECTED.
func (s *solver) stepFunding(ctx context.Context, intent *models.PaymentIntent) (bool, error) {
	switch intent.InputMethod {
	case enums.InputMethodChainWallet:
		if intent.ChainTxRef == nil || *intent.ChainTxRef == "" {
			return false, pkgerrors.New(pkgerrors.CodeValidation, "chain-funded intent has no transaction reference")
		}
		expected, err := s.rates.ToBaseUnits(intent.AmountCents, intent.Currency)
		if err != nil {
			return false, err
		}
		if err := s.chain.VerifyFunding(ctx, *intent.ChainTxRef, expected); err != nil {
			return false, err
		}
		// Value already moved on-chain; no ledger deduction.
		return s.advance(ctx, intent, enums.IntentStatusFundingDetected, nil)

	case enums.InputMethodFiatGateway:
		if intent.GatewayPaymentRef == nil || *intent.GatewayPaymentRef == "" {
			return false, pkgerrors.New(pkgerrors.CodeValidation, "gateway-funded intent has no payment reference")
		}
		if err := s.gateway.VerifyPayment(ctx, *intent.GatewayPaymentRef, intent.AmountCents, intent.Currency); err != nil {
			return false, err
		}
		return s.advance(ctx, intent, enums.IntentStatusFundingDetected, nil)

	case enums.InputMethodLedgerBalance:
		return s.stepLedgerFunding(ctx, intent)

	default:
		return false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported input method %q", intent.InputMethod))
	}
}

// stepLedgerFunding deducts the converted cost from the family balance and
// advances with funds_debited set. If the CAS guard then fails, the deduction
// is compensated immediately so the winner's debit is the only one standing.
func (s *solver) stepLedgerFunding(ctx context.Context, intent *models.PaymentIntent) (bool, error) {
	cost, err := s.rates.ToBaseUnits(intent.AmountCents, intent.Currency)
	if err != nil {
		return false, err
	}

	if _, err := s.ledger.Debit(ctx, ledger.MovementInput{
		IntentID: intent.ID,
		FamilyID: intent.FamilyID,
		Asset:    s.rates.Asset(),
		Amount:   cost,
		Metadata: movementMetadata("intent funding"),
	}); err != nil {
		return false, err
	}

	applied, err := s.advance(ctx, intent, enums.IntentStatusFundingDetected, map[string]any{"funds_debited": true})
	if err != nil || !applied {
		if refundErr := s.refund(ctx, intent, cost, "lost funding race"); refundErr != nil && s.logger != nil {
			s.logger.Error(ctx, "compensating refund after funding race failed", refundErr)
		}
		return applied, err
	}
	intent.FundsDebited = true
	return true, nil
}

// stepRouting selects the settlement rail. Rail selection is trivial today;
// the step exists so the transition stays observable and guarded.
func (s *solver) stepRouting(ctx context.Context, intent *models.PaymentIntent) (bool, error) {
	return s.advance(ctx, intent, enums.IntentStatusRouting, map[string]any{"settlement_rail": railShieldedPool})
}

// stepSigning asks the MPC signer for authorization. A declined
// authorization is terminal.
func (s *solver) stepSigning(ctx context.Context, intent *models.PaymentIntent) (bool, error) {
	authorized, err := s.signer.Sign(ctx, intent.ID)
	if err != nil {
		return false, err
	}
	if !authorized {
		return false, pkgerrors.New(pkgerrors.CodeSigningRejected, "signing failed")
	}
	return s.advance(ctx, intent, enums.IntentStatusShielding, nil)
}

// stepShielding executes the privacy transfer and persists the success
// terminal with its settlement reference and proof handle.
func (s *solver) stepShielding(ctx context.Context, intent *models.PaymentIntent) (bool, error) {
	wallet, err := s.ledger.Wallet(ctx, intent.FamilyID)
	if err != nil {
		return false, err
	}

	amount, err := s.rates.ToBaseUnits(intent.AmountCents, intent.Currency)
	if err != nil {
		return false, err
	}

	result, err := s.shielder.Transfer(ctx, shielding.TransferInput{
		IntentID:      intent.ID,
		WalletAddress: wallet.Address,
		Asset:         string(s.rates.Asset()),
		Amount:        amount,
	})
	if err != nil {
		return false, err
	}

	return s.advance(ctx, intent, enums.IntentStatusSettled, map[string]any{
		"settlement_tx_ref": result.SettlementRef,
		"proof_handle":      result.ProofHandle,
	})
}

func (s *solver) advance(ctx context.Context, intent *models.PaymentIntent, to enums.IntentStatus, fields map[string]any) (bool, error) {
	applied, err := s.repo.UpdateStatusFrom(ctx, intent.ID, intent.Status, to, fields)
	if err != nil {
		return false, err
	}
	if applied {
		s.info(ctx, intent.ID, fmt.Sprintf("intent advanced %s -> %s", intent.Status, to))
		intent.Status = to
	}
	return applied, nil
}

// fail converges every error path onto a persisted FAILED status with the
// error message as the reason, then re-throws. A ledger-funded intent whose
// funds were already debited gets a compensating refund.
func (s *solver) fail(ctx context.Context, intent *models.PaymentIntent, cause error) error {
	applied, err := s.repo.UpdateStatusFrom(ctx, intent.ID, intent.Status, enums.IntentStatusFailed, map[string]any{
		"failure_reason": cause.Error(),
	})
	if err != nil && s.logger != nil {
		s.logger.Error(ctx, "persisting intent failure", err)
	}

	if applied && intent.FundsDebited {
		cost, convErr := s.rates.ToBaseUnits(intent.AmountCents, intent.Currency)
		if convErr == nil {
			if refundErr := s.refund(ctx, intent, cost, cause.Error()); refundErr != nil && s.logger != nil {
				s.logger.Error(ctx, "compensating refund failed", refundErr)
			}
		}
	}

	s.metrics.IncOutcome(string(enums.IntentStatusFailed))
	if s.logger != nil {
		s.logger.Error(s.logger.WithIntentID(ctx, intent.ID.String()), "intent failed", cause)
	}
	return cause
}

func (s *solver) refund(ctx context.Context, intent *models.PaymentIntent, amount decimal.Decimal, reason string) error {
	_, err := s.ledger.Refund(ctx, ledger.MovementInput{
		IntentID: intent.ID,
		FamilyID: intent.FamilyID,
		Asset:    s.rates.Asset(),
		Amount:   amount,
		Metadata: movementMetadata(reason),
	})
	if err == nil {
		s.metrics.IncRefund()
	}
	return err
}

func (s *solver) info(ctx context.Context, intentID uuid.UUID, msg string) {
	if s.logger == nil {
		return
	}
	s.logger.Info(s.logger.WithIntentID(ctx, intentID.String()), msg)
}

func movementMetadata(reason string) json.RawMessage {
	raw, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return nil
	}
	return raw
}
