package chainverify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/veilcare/settlement-backend/pkg/config"
	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
	"github.com/veilcare/settlement-backend/pkg/logger"
	"github.com/veilcare/settlement-backend/pkg/metrics"
	"github.com/veilcare/settlement-backend/pkg/retry"
)

// ethBackend is the slice of the RPC client the verifier needs. ethclient
// satisfies it; tests stub it.
type ethBackend interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}

// Verifier confirms that a funding transaction landed on chain, paid the
// custodial deposit address, and carried an acceptable value.
type Verifier interface {
	VerifyFunding(ctx context.Context, txRef string, expectedWei decimal.Decimal) error
}

type verifier struct {
	backend        ethBackend
	depositAddress common.Address
	cfg            config.ChainConfig
	logger         *logger.Logger
	metrics        *metrics.SettlementMetrics
}

// NewVerifier dials the configured RPC endpoint and returns a chain verifier.
func NewVerifier(cfg config.ChainConfig, logg *logger.Logger, m *metrics.SettlementMetrics) (Verifier, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("chain rpc url is required")
	}
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing chain rpc: %w", err)
	}
	return newVerifier(client, cfg, logg, m)
}

func newVerifier(backend ethBackend, cfg config.ChainConfig, logg *logger.Logger, m *metrics.SettlementMetrics) (Verifier, error) {
	if backend == nil {
		return nil, fmt.Errorf("chain backend is required")
	}
	if !common.IsHexAddress(cfg.DepositAddress) {
		return nil, fmt.Errorf("invalid deposit address %q", cfg.DepositAddress)
	}
	return &verifier{
		backend:        backend,
		depositAddress: common.HexToAddress(cfg.DepositAddress),
		cfg:            cfg,
		logger:         logg,
		metrics:        m,
	}, nil
}

// VerifyFunding retries transient lookups (pending propagation, RPC hiccups)
// with linearly growing delays; mismatches in recipient, status, or value are
// terminal on the first observation.
func (v *verifier) VerifyFunding(ctx context.Context, txRef string, expectedWei decimal.Decimal) error {
	hash, err := parseTxRef(txRef)
	if err != nil {
		return err
	}
	if !expectedWei.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "expected funding amount must be positive")
	}

	policy := retry.Policy{
		MaxAttempts: v.cfg.VerifyMaxAttempts,
		BaseDelay:   v.cfg.VerifyBaseDelay,
		Backoff:     retry.Linear,
	}

	return retry.Do(ctx, policy, func(ctx context.Context) error {
		v.metrics.IncVerifyAttempt()
		return v.checkOnce(ctx, hash, expectedWei)
	})
}

func (v *verifier) checkOnce(ctx context.Context, hash common.Hash, expectedWei decimal.Decimal) error {
	lookupCtx, cancel := context.WithTimeout(ctx, v.cfg.LookupTimeout)
	defer cancel()

	tx, isPending, err := v.backend.TransactionByHash(lookupCtx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "funding transaction not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "chain lookup failed")
	}
	if isPending {
		return pkgerrors.New(pkgerrors.CodeDependency, "funding transaction still pending")
	}

	if tx.To() == nil || *tx.To() != v.depositAddress {
		return pkgerrors.New(pkgerrors.CodeFundingMismatch, "funding transaction paid the wrong address")
	}

	receiptCtx, cancel := context.WithTimeout(ctx, v.cfg.ConfirmTimeout)
	defer cancel()

	receipt, err := v.backend.TransactionReceipt(receiptCtx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "funding receipt not available")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "receipt lookup failed")
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return pkgerrors.New(pkgerrors.CodeFundingMismatch, "funding transaction reverted")
	}

	value := decimal.NewFromBigInt(tx.Value(), 0)
	if !withinTolerance(value, expectedWei) {
		return pkgerrors.New(pkgerrors.CodeFundingMismatch,
			fmt.Sprintf("funding value %s outside tolerance of expected %s", value, expectedWei))
	}

	if v.logger != nil {
		v.logger.Info(v.logger.WithFields(ctx, map[string]any{
			"tx_hash": hash.Hex(),
			"value":   value.String(),
		}), "funding transaction verified")
	}
	return nil
}

// withinTolerance accepts values within a strict 1% band of the expected
// amount: |value - expected| * 100 < expected. Exactly 1% off is rejected.
func withinTolerance(value, expected decimal.Decimal) bool {
	diff := value.Sub(expected).Abs()
	return diff.Mul(decimal.NewFromInt(100)).LessThan(expected)
}

func parseTxRef(txRef string) (common.Hash, error) {
	ref := strings.TrimSpace(txRef)
	if len(ref) != 66 || !strings.HasPrefix(ref, "0x") {
		return common.Hash{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("malformed transaction reference %q", txRef))
	}
	for _, r := range ref[2:] {
		if !isHexDigit(r) {
			return common.Hash{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("malformed transaction reference %q", txRef))
		}
	}
	return common.HexToHash(ref), nil
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
