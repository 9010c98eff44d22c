package intents

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/veilcare/settlement-backend/api/responses"
	"github.com/veilcare/settlement-backend/api/validators"
	internalintents "github.com/veilcare/settlement-backend/internal/intents"
	"github.com/veilcare/settlement-backend/pkg/db/models"
	"github.com/veilcare/settlement-backend/pkg/enums"
	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
	"github.com/veilcare/settlement-backend/pkg/logger"
	"github.com/veilcare/settlement-backend/pkg/pagination"
)

const maxRefLength = 256

type createRequest struct {
	FamilyID          string `json:"family_id" validate:"required,uuid4"`
	ClinicID          string `json:"clinic_id" validate:"required,uuid4"`
	AmountCents       int    `json:"amount_cents" validate:"required,min=1"`
	Currency          string `json:"currency" validate:"required"`
	InputMethod       string `json:"input_method" validate:"required"`
	ChainTxRef        string `json:"chain_tx_ref,omitempty"`
	GatewayPaymentRef string `json:"gateway_payment_ref,omitempty"`
}

type intentResponse struct {
	ID                string     `json:"id"`
	FamilyID          string     `json:"family_id"`
	ClinicID          string     `json:"clinic_id"`
	AmountCents       int        `json:"amount_cents"`
	Currency          string     `json:"currency"`
	InputMethod       string     `json:"input_method"`
	Status            string     `json:"status"`
	ChainTxRef        *string    `json:"chain_tx_ref,omitempty"`
	GatewayPaymentRef *string    `json:"gateway_payment_ref,omitempty"`
	SettlementRail    *string    `json:"settlement_rail,omitempty"`
	SettlementTxRef   *string    `json:"settlement_tx_ref,omitempty"`
	ProofHandle       *string    `json:"proof_handle,omitempty"`
	FailureReason     *string    `json:"failure_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type listResponse struct {
	Intents    []intentResponse `json:"intents"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// Create persists a new payment intent and triggers asynchronous settlement.
func Create(svc internalintents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "intent service unavailable"))
			return
		}

		var req createRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		familyID, err := uuid.Parse(req.FamilyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid family id"))
			return
		}
		clinicID, err := uuid.Parse(req.ClinicID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid clinic id"))
			return
		}

		intent, err := svc.Create(r.Context(), internalintents.CreateIntentInput{
			FamilyID:          familyID,
			ClinicID:          clinicID,
			AmountCents:       req.AmountCents,
			Currency:          enums.Currency(strings.ToUpper(strings.TrimSpace(req.Currency))),
			InputMethod:       enums.InputMethod(strings.ToLower(strings.TrimSpace(req.InputMethod))),
			ChainTxRef:        validators.SanitizeString(req.ChainTxRef, maxRefLength),
			GatewayPaymentRef: validators.SanitizeString(req.GatewayPaymentRef, maxRefLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toResponse(intent))
	}
}

// Detail returns one intent by id.
func Detail(svc internalintents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "intent service unavailable"))
			return
		}

		intentID, err := parseIntentID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.Get(r.Context(), intentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toResponse(intent))
	}
}

// List returns a cursor page of a family's intents, newest first.
func List(svc internalintents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "intent service unavailable"))
			return
		}

		rawFamilyID := strings.TrimSpace(r.URL.Query().Get("family_id"))
		if rawFamilyID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "family_id is required"))
			return
		}
		familyID, err := uuid.Parse(rawFamilyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid family_id"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListByFamily(r.Context(), familyID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := listResponse{
			Intents:    make([]intentResponse, 0, len(page.Intents)),
			NextCursor: page.NextCursor,
		}
		for i := range page.Intents {
			out.Intents = append(out.Intents, toResponse(&page.Intents[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// Process runs the settlement state machine synchronously. The solver is
// idempotent, so calling this on an already-settled intent is a no-op.
func Process(svc internalintents.Service, solver internalintents.Solver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if solver == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "intent solver unavailable"))
			return
		}

		intentID, err := parseIntentID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		processErr := solver.Process(r.Context(), intentID)

		// Report the resulting status even when settlement failed; the
		// failure is persisted on the intent itself.
		intent, err := svc.Get(r.Context(), intentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if processErr != nil && !intent.Status.IsTerminal() {
			responses.WriteError(r.Context(), logg, w, processErr)
			return
		}
		responses.WriteSuccess(w, toResponse(intent))
	}
}

func parseIntentID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "intentId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "intent id is required")
	}
	intentID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid intent id")
	}
	return intentID, nil
}

func toResponse(intent *models.PaymentIntent) intentResponse {
	return intentResponse{
		ID:                intent.ID.String(),
		FamilyID:          intent.FamilyID.String(),
		ClinicID:          intent.ClinicID.String(),
		AmountCents:       intent.AmountCents,
		Currency:          string(intent.Currency),
		InputMethod:       string(intent.InputMethod),
		Status:            string(intent.Status),
		ChainTxRef:        intent.ChainTxRef,
		GatewayPaymentRef: intent.GatewayPaymentRef,
		SettlementRail:    intent.SettlementRail,
		SettlementTxRef:   intent.SettlementTxRef,
		ProofHandle:       intent.ProofHandle,
		FailureReason:     intent.FailureReason,
		CreatedAt:         intent.CreatedAt,
		UpdatedAt:         intent.UpdatedAt,
	}
}
