package gateway

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/veilcare/settlement-backend/pkg/enums"
	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
)

const statusCompleted = "COMPLETED"

// paymentsGetter is the one Square call the verifier depends on.
type paymentsGetter interface {
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
}

// Verifier confirms that a card payment referenced by an intent actually
// completed at the gateway for the right amount.
type Verifier interface {
	VerifyPayment(ctx context.Context, paymentRef string, amountCents int, currency enums.Currency) error
}

type verifier struct {
	payments paymentsGetter
}

// NewVerifier wires a gateway verifier around the Square client.
func NewVerifier(payments paymentsGetter) (Verifier, error) {
	if payments == nil {
		return nil, fmt.Errorf("payments client required")
	}
	return &verifier{payments: payments}, nil
}

func (v *verifier) VerifyPayment(ctx context.Context, paymentRef string, amountCents int, currency enums.Currency) error {
	ref := strings.TrimSpace(paymentRef)
	if ref == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway payment reference is required")
	}

	payment, err := v.payments.GetPayment(ctx, ref)
	if err != nil {
		if domainErr := pkgerrors.As(err); domainErr != nil && domainErr.Code() == pkgerrors.CodeNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeFundingMismatch, err, "gateway payment not found")
		}
		return err
	}
	if payment == nil {
		return pkgerrors.New(pkgerrors.CodeFundingMismatch, "gateway returned no payment")
	}

	if status := stringValue(payment.Status); status != statusCompleted {
		return pkgerrors.New(pkgerrors.CodeFundingMismatch,
			fmt.Sprintf("gateway payment status is %s, expected %s", status, statusCompleted))
	}

	money := payment.AmountMoney
	if money == nil || money.Amount == nil {
		return pkgerrors.New(pkgerrors.CodeFundingMismatch, "gateway payment has no amount")
	}
	if *money.Amount != int64(amountCents) {
		return pkgerrors.New(pkgerrors.CodeFundingMismatch,
			fmt.Sprintf("gateway payment amount %d does not match intent amount %d", *money.Amount, amountCents))
	}
	if money.Currency != nil && string(*money.Currency) != string(currency) {
		return pkgerrors.New(pkgerrors.CodeFundingMismatch,
			fmt.Sprintf("gateway payment currency %s does not match intent currency %s", *money.Currency, currency))
	}

	return nil
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
