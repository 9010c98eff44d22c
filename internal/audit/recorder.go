package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/veilcare/settlement-backend/pkg/db/models"
	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
	"github.com/veilcare/settlement-backend/pkg/logger"
	"github.com/veilcare/settlement-backend/pkg/retry"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 250 * time.Millisecond
	defaultMaxDelay    = 2 * time.Second
)

// OutcomeRow is one append-only audit record for a terminal settlement
// outcome. Column names follow the BigQuery table schema.
type OutcomeRow struct {
	IntentID        string    `bigquery:"intent_id"`
	FamilyID        string    `bigquery:"family_id"`
	ClinicID        string    `bigquery:"clinic_id"`
	AmountCents     int       `bigquery:"amount_cents"`
	Currency        string    `bigquery:"currency"`
	InputMethod     string    `bigquery:"input_method"`
	Status          string    `bigquery:"status"`
	SettlementRail  string    `bigquery:"settlement_rail"`
	SettlementTxRef string    `bigquery:"settlement_tx_ref"`
	ProofHandle     string    `bigquery:"proof_handle"`
	FailureReason   string    `bigquery:"failure_reason"`
	FundsDebited    bool      `bigquery:"funds_debited"`
	RecordedAt      time.Time `bigquery:"recorded_at"`
}

// Recorder appends terminal settlement outcomes to the audit stream.
type Recorder interface {
	// RecordOutcome writes one audit row for a terminal intent. Non-terminal
	// intents are rejected; audit rows exist only for finished settlements.
	RecordOutcome(ctx context.Context, intent *models.PaymentIntent) error
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
	AuditTable() string
}

type recorder struct {
	client tableInserter
	policy retry.Policy
	logger *logger.Logger
	now    func() time.Time
}

// NewRecorder builds a BigQuery-backed audit recorder. Transient insert
// failures are retried with exponential backoff.
func NewRecorder(client tableInserter, logg *logger.Logger) (Recorder, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	if strings.TrimSpace(client.AuditTable()) == "" {
		return nil, errors.New("audit table is required")
	}
	return &recorder{
		client: client,
		policy: retry.Policy{
			MaxAttempts: defaultMaxAttempts,
			BaseDelay:   defaultBaseDelay,
			Backoff:     retry.Exponential,
			MaxDelay:    defaultMaxDelay,
		},
		logger: logg,
		now:    time.Now,
	}, nil
}

func (r *recorder) RecordOutcome(ctx context.Context, intent *models.PaymentIntent) error {
	if intent == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "intent required for audit row")
	}
	if !intent.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeValidation, "audit rows record terminal outcomes only")
	}

	row := rowFromIntent(intent, r.now().UTC())
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		if insertErr := r.client.InsertRows(ctx, r.client.AuditTable(), []any{row}); insertErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, insertErr, "inserting audit row")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if r.logger != nil {
		r.logger.Info(r.logger.WithIntentID(ctx, intent.ID.String()), "settlement outcome recorded")
	}
	return nil
}

func rowFromIntent(intent *models.PaymentIntent, recordedAt time.Time) OutcomeRow {
	row := OutcomeRow{
		IntentID:     intent.ID.String(),
		FamilyID:     intent.FamilyID.String(),
		ClinicID:     intent.ClinicID.String(),
		AmountCents:  intent.AmountCents,
		Currency:     string(intent.Currency),
		InputMethod:  string(intent.InputMethod),
		Status:       string(intent.Status),
		FundsDebited: intent.FundsDebited,
		RecordedAt:   recordedAt,
	}
	if intent.SettlementRail != nil {
		row.SettlementRail = *intent.SettlementRail
	}
	if intent.SettlementTxRef != nil {
		row.SettlementTxRef = *intent.SettlementTxRef
	}
	if intent.ProofHandle != nil {
		row.ProofHandle = *intent.ProofHandle
	}
	if intent.FailureReason != nil {
		row.FailureReason = *intent.FailureReason
	}
	return row
}
