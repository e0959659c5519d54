package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/oratio/bchhub.go/common"
	"github.com/shopspring/decimal"
	"github.com/ziflex/lecho/v3"
)

//go:generate mockgen -destination=./mock_wallet/wallet.go github.com/oratio/bchhub.go/wallet Client

// Client is the wallet daemon surface the reconciler depends on.
// Implementations must be safe for concurrent use.
type Client interface {
	NewAddress(ctx context.Context) (string, error)
	AddressBalance(ctx context.Context, address string) (*Balance, error)
	AddressHistory(ctx context.Context, address string) ([]HistoryItem, error)
	Transaction(ctx context.Context, txHash string) (*Transaction, error)
	WalletHistory(ctx context.Context) ([]WalletTx, error)
	MempoolTransactions(ctx context.Context) ([]string, error)
	BlockHeight(ctx context.Context) (int64, error)
	WalletBalance(ctx context.Context) (*Balance, error)
	PayTo(ctx context.Context, address string, amount decimal.Decimal) (string, error)
	Broadcast(ctx context.Context, rawTxHex string) (string, error)
	Ping(ctx context.Context) error
}

type Balance struct {
	Confirmed   decimal.Decimal
	Unconfirmed decimal.Decimal
}

func (b Balance) Total() decimal.Decimal {
	return b.Confirmed.Add(b.Unconfirmed)
}

type HistoryItem struct {
	TxHash string
	// 0 (or negative) while the transaction sits in the mempool
	Height int64
}

type WalletTx struct {
	TxHash        string
	Value         decimal.Decimal
	Confirmations int64
	Timestamp     time.Time
}

type Input struct {
	PrevTxHash string
	PrevIndex  uint32
	Sequence   uint32
}

func (i Input) Outpoint() string {
	return fmt.Sprintf("%s:%d", i.PrevTxHash, i.PrevIndex)
}

type Output struct {
	Address string
	Value   decimal.Decimal
}

type Transaction struct {
	TxHash        string
	Confirmations int64
	// zero when the source did not report a time
	Timestamp time.Time
	// net amount relative to the wallet, zero when unknown
	Amount   decimal.Decimal
	Fee      btcutil.Amount
	FeeKnown bool
	Size     int64
	Inputs   []Input
	Outputs  []Output
}

// ReceivedBy sums the outputs paying address. When no output carries an
// address the wallet-relative amount is returned instead.
func (tx *Transaction) ReceivedBy(address string) decimal.Decimal {
	total := decimal.Zero
	addressed := false
	for _, out := range tx.Outputs {
		if out.Address == "" {
			continue
		}
		addressed = true
		if common.SameAddress(out.Address, address) {
			total = total.Add(out.Value)
		}
	}
	if !addressed {
		return tx.Amount
	}
	return total
}

// FeeRate returns the fee rate in satoshi per byte, and false when fee or
// size are unknown.
func (tx *Transaction) FeeRate() (float64, bool) {
	if !tx.FeeKnown || tx.Size <= 0 {
		return 0, false
	}
	return float64(tx.Fee) / float64(tx.Size), true
}

// IsReplaceable reports whether any input signals replaceability.
func (tx *Transaction) IsReplaceable() bool {
	for _, in := range tx.Inputs {
		if in.Sequence < wire.MaxTxInSequenceNum-1 {
			return true
		}
	}
	return false
}

func InitWalletClient(c *Config, logger *lecho.Logger) (Client, error) {
	switch c.WalletClientType {
	case ELECTRON_CASH_CLIENT_TYPE:
		return NewElectronCashClient(ElectronCashOptions{
			URL:            c.WalletRPCURL,
			Credentials:    NewCredentialSource(c),
			Timeout:        time.Duration(c.WalletRPCTimeout) * time.Second,
			MaxAttempts:    c.WalletRPCMaxAttempts,
			MaxConcurrency: c.WalletRPCMaxConcurrency,
		}, logger), nil
	default:
		return nil, fmt.Errorf("Did not recognize wallet client type %s", c.WalletClientType)
	}
}
