package zeroconf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oratio/bchhub.go/common"
	"github.com/oratio/bchhub.go/wallet"
	"github.com/shopspring/decimal"
	"github.com/ziflex/lecho/v3"
)

const source = "zeroconf"

// TxSource is the part of the wallet client the validator reads from.
type TxSource interface {
	Transaction(ctx context.Context, txHash string) (*wallet.Transaction, error)
	MempoolTransactions(ctx context.Context) ([]string, error)
}

type Reason string

const (
	ReasonAccepted    Reason = ""
	ReasonUnavailable Reason = "unavailable"
	ReasonAmount      Reason = "amount_mismatch"
	ReasonFeeTooLow   Reason = "fee_too_low"
	ReasonDoubleSpend Reason = "double_spend"
	ReasonReplaceable Reason = "replaceable"
)

type Options struct {
	// satoshi per byte
	MinRelayFeeRate float64
	// percentage of MinRelayFeeRate a zero-conf tx must pay
	MinFeePercent    float64
	DoubleSpendCheck bool
}

type Request struct {
	TxHash          string
	ExpectedAmount  decimal.Decimal
	ExpectedAddress string
	EarliestTime    time.Time
}

type Result struct {
	Accepted bool
	Reason   Reason
	Message  string
	// a DataInconsistencyError for rejections caused by the transaction's
	// content, the lookup error for ReasonUnavailable
	Err error
}

// Contradicted reports whether the transaction data itself was rejected, as
// opposed to the check being impossible to run.
func (r Result) Contradicted() bool {
	return !r.Accepted && r.Reason != ReasonUnavailable
}

type Validator struct {
	txs     TxSource
	options Options
	logger  *lecho.Logger
}

func NewValidator(txs TxSource, options Options, logger *lecho.Logger) *Validator {
	return &Validator{txs: txs, options: options, logger: logger}
}

func reject(reason Reason, format string, args ...interface{}) Result {
	msg := fmt.Sprintf(format, args...)
	return Result{
		Reason:  reason,
		Message: msg,
		Err:     common.NewDataInconsistencyError(source, "%s", msg),
	}
}

// Validate decides whether an unconfirmed transaction is safe to accept.
func (v *Validator) Validate(ctx context.Context, req Request) Result {
	tx, err := v.txs.Transaction(ctx, req.TxHash)
	if err != nil || tx == nil {
		if err == nil {
			err = common.ErrNotFound
		}
		return Result{
			Reason:  ReasonUnavailable,
			Message: fmt.Sprintf("transaction %s unavailable: %v", req.TxHash, err),
			Err:     err,
		}
	}

	received := tx.ReceivedBy(req.ExpectedAddress)
	if !common.SatisfiesAmount(received, req.ExpectedAmount) {
		return reject(ReasonAmount, "tx %s pays %s to %s, expected %s", req.TxHash, received, req.ExpectedAddress, req.ExpectedAmount)
	}

	if !req.EarliestTime.IsZero() && !tx.Timestamp.IsZero() {
		if tx.Timestamp.Before(req.EarliestTime.Add(-common.ClockSkewTolerance * time.Second)) {
			v.logger.Warnf("zeroconf: tx %s timestamp %s predates invoice creation %s", req.TxHash, tx.Timestamp, req.EarliestTime)
		}
	}

	if feeRate, ok := tx.FeeRate(); ok {
		minRate := v.options.MinRelayFeeRate * v.options.MinFeePercent / 100
		if feeRate < minRate {
			return reject(ReasonFeeTooLow, "tx %s fee rate %.3f sat/B is below %.3f sat/B", req.TxHash, feeRate, minRate)
		}
	} else {
		v.logger.Infof("zeroconf: fee or size unknown for tx %s, skipping fee check", req.TxHash)
	}

	if v.options.DoubleSpendCheck {
		if res, rejected := v.checkDoubleSpend(ctx, tx); rejected {
			return res
		}
	}

	if tx.IsReplaceable() {
		return reject(ReasonReplaceable, "tx %s signals replaceability", req.TxHash)
	}
	return Result{Accepted: true}
}

func (v *Validator) checkDoubleSpend(ctx context.Context, tx *wallet.Transaction) (Result, bool) {
	if len(tx.Inputs) == 0 {
		v.logger.Infof("zeroconf: inputs unknown for tx %s, skipping double spend check", tx.TxHash)
		return Result{}, false
	}
	mempool, err := v.txs.MempoolTransactions(ctx)
	if err != nil {
		v.logger.Warnf("zeroconf: mempool unavailable, skipping double spend check for %s: %v", tx.TxHash, err)
		return Result{}, false
	}
	spent := make(map[string]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		spent[in.Outpoint()] = struct{}{}
	}
	for _, hash := range mempool {
		if hash == tx.TxHash {
			continue
		}
		if ctx.Err() != nil {
			v.logger.Warnf("zeroconf: double spend check for %s interrupted: %v", tx.TxHash, ctx.Err())
			return Result{}, false
		}
		other, err := v.txs.Transaction(ctx, hash)
		if err != nil {
			if !errors.Is(err, common.ErrNotFound) {
				v.logger.Warnf("zeroconf: skipping unreadable mempool tx %s: %v", hash, err)
			}
			continue
		}
		for _, in := range other.Inputs {
			if _, ok := spent[in.Outpoint()]; ok {
				return reject(ReasonDoubleSpend, "mempool tx %s spends %s, also spent by %s", hash, in.Outpoint(), tx.TxHash), true
			}
		}
	}
	return Result{}, false
}
