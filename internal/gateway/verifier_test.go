package gateway

import (
	"context"
	"testing"

	sq "github.com/square/square-go-sdk"

	"github.com/veilcare/settlement-backend/pkg/enums"
	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
)

type stubPayments struct {
	payment *sq.Payment
	err     error
}

func (s *stubPayments) GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	return s.payment, s.err
}

func completedPayment(amount int64, currency string) *sq.Payment {
	status := "COMPLETED"
	cur := sq.Currency(currency)
	return &sq.Payment{
		Status:      &status,
		AmountMoney: &sq.Money{Amount: &amount, Currency: &cur},
	}
}

func TestVerifyPaymentAccepts(t *testing.T) {
	v, err := NewVerifier(&stubPayments{payment: completedPayment(12500, "USD")})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if err := v.VerifyPayment(context.Background(), "pay_1", 12500, enums.CurrencyUSD); err != nil {
		t.Fatalf("expected acceptance, got %v", err)
	}
}

func TestVerifyPaymentMismatches(t *testing.T) {
	wrongStatus := completedPayment(12500, "USD")
	pending := "PENDING"
	wrongStatus.Status = &pending

	cases := []struct {
		name    string
		payment *sq.Payment
	}{
		{"not completed", wrongStatus},
		{"amount mismatch", completedPayment(9999, "USD")},
		{"currency mismatch", completedPayment(12500, "EUR")},
		{"no amount", &sq.Payment{Status: strPtr("COMPLETED")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, _ := NewVerifier(&stubPayments{payment: tc.payment})
			err := v.VerifyPayment(context.Background(), "pay_1", 12500, enums.CurrencyUSD)
			domainErr := pkgerrors.As(err)
			if domainErr == nil || domainErr.Code() != pkgerrors.CodeFundingMismatch {
				t.Fatalf("expected CodeFundingMismatch, got %v", err)
			}
		})
	}
}

func TestVerifyPaymentNotFoundIsMismatch(t *testing.T) {
	v, _ := NewVerifier(&stubPayments{err: pkgerrors.New(pkgerrors.CodeNotFound, "no payment")})
	err := v.VerifyPayment(context.Background(), "pay_1", 12500, enums.CurrencyUSD)
	domainErr := pkgerrors.As(err)
	if domainErr == nil || domainErr.Code() != pkgerrors.CodeFundingMismatch {
		t.Fatalf("expected CodeFundingMismatch, got %v", err)
	}
}

func TestVerifyPaymentDependencyErrorPassesThrough(t *testing.T) {
	v, _ := NewVerifier(&stubPayments{err: pkgerrors.New(pkgerrors.CodeDependency, "gateway down")})
	err := v.VerifyPayment(context.Background(), "pay_1", 12500, enums.CurrencyUSD)
	domainErr := pkgerrors.As(err)
	if domainErr == nil || domainErr.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected CodeDependency, got %v", err)
	}
}

func TestVerifyPaymentRequiresRef(t *testing.T) {
	v, _ := NewVerifier(&stubPayments{payment: completedPayment(12500, "USD")})
	err := v.VerifyPayment(context.Background(), "  ", 12500, enums.CurrencyUSD)
	domainErr := pkgerrors.As(err)
	if domainErr == nil || domainErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected CodeValidation, got %v", err)
	}
}

func strPtr(s string) *string { return &s }
