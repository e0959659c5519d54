package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oratio/bchhub.go/common"
	"github.com/oratio/bchhub.go/db/models"
	"github.com/oratio/bchhub.go/explorer"
	"github.com/oratio/bchhub.go/wallet"
	"github.com/shopspring/decimal"
	"github.com/ziflex/lecho/v3"
)

// Evidence is what a source found for an invoice. BalanceOnly evidence has
// no transaction and never settles on its own.
type Evidence struct {
	Source        string
	Provider      string
	TxHash        string
	Confirmations int64
	Received      decimal.Decimal
	Timestamp     time.Time
	BalanceOnly   bool
}

// EvidenceSource looks for a payment to an invoice. It returns
// common.ErrNotFound when it answered and saw nothing; any other error means
// it could not answer.
type EvidenceSource interface {
	Name() string
	FindPayment(ctx context.Context, invoice *models.Invoice) (*Evidence, error)
}

// DefaultEvidenceSources is the lookup order: wallet history, wallet
// balance, then each explorer provider.
func DefaultEvidenceSources(w wallet.Client, chain *explorer.Chain, retry RetryPolicy, logger *lecho.Logger) []EvidenceSource {
	sources := []EvidenceSource{
		&WalletHistorySource{Wallet: w, Retry: retry, Logger: logger},
		&WalletBalanceSource{Wallet: w, Explorers: chain, Retry: retry, Logger: logger},
	}
	if chain != nil {
		for _, p := range chain.Providers() {
			sources = append(sources, &ExplorerSource{Provider: p, Logger: logger})
		}
	}
	return sources
}

func earliestPaymentTime(invoice *models.Invoice) time.Time {
	return invoice.CreatedAt.Add(-common.ClockSkewTolerance * time.Second)
}

// predates reports whether a known timestamp is older than the invoice.
func predates(ts time.Time, invoice *models.Invoice) bool {
	return !ts.IsZero() && ts.Before(earliestPaymentTime(invoice))
}

// paysAddress requires an explicit output to the address, unlike
// Transaction.ReceivedBy which falls back to the wallet-relative amount.
func paysAddress(tx *wallet.Transaction, address string, amount decimal.Decimal) bool {
	total := decimal.Zero
	for _, out := range tx.Outputs {
		if common.SameAddress(out.Address, address) {
			total = total.Add(out.Value)
		}
	}
	return common.SatisfiesAmount(total, amount)
}

type WalletHistorySource struct {
	Wallet wallet.Client
	Retry  RetryPolicy
	Logger *lecho.Logger
}

func (s *WalletHistorySource) Name() string { return common.EvidenceSourceWalletHistory }

func (s *WalletHistorySource) FindPayment(ctx context.Context, invoice *models.Invoice) (*Evidence, error) {
	history, err := retryTransient(ctx, s.Retry, func() ([]wallet.HistoryItem, error) {
		return s.Wallet.AddressHistory(ctx, invoice.PaymentAddress)
	})
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, common.ErrNotFound
	}

	var lastErr error
	var tip int64
	// newest first, mempool entries come last in address history
	for i := len(history) - 1; i >= 0; i-- {
		item := history[i]
		tx, err := retryTransient(ctx, s.Retry, func() (*wallet.Transaction, error) {
			return s.Wallet.Transaction(ctx, item.TxHash)
		})
		if err != nil {
			if !errors.Is(err, common.ErrNotFound) {
				s.Logger.Warnf("wallet history: tx %s for invoice %s unreadable: %v", item.TxHash, invoice.ID, err)
				lastErr = err
			}
			continue
		}
		if predates(tx.Timestamp, invoice) {
			continue
		}
		received := tx.ReceivedBy(invoice.PaymentAddress)
		if !common.SatisfiesAmount(received, invoice.Amount) {
			continue
		}
		confirmations := tx.Confirmations
		if confirmations == 0 && item.Height > 0 {
			if tip == 0 {
				tip, err = retryTransient(ctx, s.Retry, func() (int64, error) { return s.Wallet.BlockHeight(ctx) })
				if err != nil {
					s.Logger.Warnf("wallet history: block height unavailable: %v", err)
				}
			}
			if tip >= item.Height {
				confirmations = tip - item.Height + 1
			}
		}
		return &Evidence{
			Source:        common.EvidenceSourceWalletHistory,
			TxHash:        tx.TxHash,
			Confirmations: confirmations,
			Received:      received,
			Timestamp:     tx.Timestamp,
		}, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, common.ErrNotFound
}

// WalletBalanceSource checks that the address holds enough, taking the
// explorers' view when the wallet reports nothing. A sufficient balance is
// matched against the wallet's own history to find the transaction.
type WalletBalanceSource struct {
	Wallet    wallet.Client
	Explorers *explorer.Chain
	Retry     RetryPolicy
	Logger    *lecho.Logger
}

func (s *WalletBalanceSource) Name() string { return common.EvidenceSourceWalletBalance }

func (s *WalletBalanceSource) FindPayment(ctx context.Context, invoice *models.Invoice) (*Evidence, error) {
	total := decimal.Zero
	provider := "wallet"
	balance, walletErr := retryTransient(ctx, s.Retry, func() (*wallet.Balance, error) {
		return s.Wallet.AddressBalance(ctx, invoice.PaymentAddress)
	})
	if walletErr == nil {
		total = balance.Total()
	} else if !errors.Is(walletErr, common.ErrNotFound) {
		s.Logger.Warnf("wallet balance for invoice %s unavailable: %v", invoice.ID, walletErr)
	} else {
		walletErr = nil
	}

	if !total.IsPositive() && s.Explorers != nil {
		explorerBalance, name, err := s.Explorers.AddressBalance(ctx, invoice.PaymentAddress, total)
		switch {
		case err == nil:
			if explorerBalance.Total().IsPositive() {
				total, provider = explorerBalance.Total(), name
			}
			walletErr = nil
		case walletErr != nil:
			return nil, fmt.Errorf("wallet: %v, explorers: %w", walletErr, err)
		}
	}
	if walletErr != nil {
		return nil, walletErr
	}
	if !common.SatisfiesAmount(total, invoice.Amount) {
		return nil, common.ErrNotFound
	}

	if ev := s.matchWalletHistory(ctx, invoice); ev != nil {
		return ev, nil
	}
	return &Evidence{
		Source:      common.EvidenceSourceWalletBalance,
		Provider:    provider,
		Received:    total,
		BalanceOnly: true,
	}, nil
}

// matchWalletHistory looks for a wallet transaction of the right amount and
// age, then checks it really pays the invoice address.
func (s *WalletBalanceSource) matchWalletHistory(ctx context.Context, invoice *models.Invoice) *Evidence {
	history, err := retryTransient(ctx, s.Retry, func() ([]wallet.WalletTx, error) {
		return s.Wallet.WalletHistory(ctx)
	})
	if err != nil {
		s.Logger.Warnf("wallet history unavailable for balance match of invoice %s: %v", invoice.ID, err)
		return nil
	}
	for i := len(history) - 1; i >= 0; i-- {
		candidate := history[i]
		if !common.SatisfiesAmount(candidate.Value, invoice.Amount) || predates(candidate.Timestamp, invoice) {
			continue
		}
		tx, err := retryTransient(ctx, s.Retry, func() (*wallet.Transaction, error) {
			return s.Wallet.Transaction(ctx, candidate.TxHash)
		})
		if err != nil {
			s.Logger.Warnf("wallet tx %s unreadable during balance match: %v", candidate.TxHash, err)
			continue
		}
		if !paysAddress(tx, invoice.PaymentAddress, invoice.Amount) {
			continue
		}
		confirmations := tx.Confirmations
		if candidate.Confirmations > confirmations {
			confirmations = candidate.Confirmations
		}
		return &Evidence{
			Source:        common.EvidenceSourceWalletBalance,
			Provider:      "wallet",
			TxHash:        tx.TxHash,
			Confirmations: confirmations,
			Received:      tx.ReceivedBy(invoice.PaymentAddress),
			Timestamp:     tx.Timestamp,
		}
	}
	return nil
}

type ExplorerSource struct {
	Provider explorer.Provider
	Logger   *lecho.Logger
}

func (s *ExplorerSource) Name() string {
	return common.EvidenceSourceExplorer + ":" + s.Provider.Name()
}

func (s *ExplorerSource) FindPayment(ctx context.Context, invoice *models.Invoice) (*Evidence, error) {
	txs, err := s.Provider.AddressTransactions(ctx, invoice.PaymentAddress)
	if err != nil {
		return nil, err
	}
	for _, tx := range txs {
		if predates(tx.Timestamp, invoice) || !common.SatisfiesAmount(tx.Received, invoice.Amount) {
			continue
		}
		return &Evidence{
			Source:        common.EvidenceSourceExplorer,
			Provider:      s.Provider.Name(),
			TxHash:        tx.TxHash,
			Confirmations: tx.Confirmations,
			Received:      tx.Received,
			Timestamp:     tx.Timestamp,
		}, nil
	}
	return nil, common.ErrNotFound
}

// gatherEvidence walks the sources in order and stops at the first
// transaction match. Balance-only evidence is kept as a last resort.
func (svc *BchhubService) gatherEvidence(ctx context.Context, invoice *models.Invoice) (*Evidence, error) {
	var balanceOnly *Evidence
	definitive := false
	failures := []error{}
	for _, source := range svc.EvidenceSources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev, err := source.FindPayment(ctx, invoice)
		switch {
		case err == nil && ev != nil && !ev.BalanceOnly:
			return ev, nil
		case err == nil && ev != nil:
			definitive = true
			if balanceOnly == nil {
				balanceOnly = ev
			}
		case err == nil || errors.Is(err, common.ErrNotFound):
			definitive = true
		default:
			evidenceSourceErrors.WithLabelValues(source.Name()).Inc()
			svc.Logger.Warnf("Evidence source %s failed for invoice %s: %v", source.Name(), invoice.ID, err)
			failures = append(failures, fmt.Errorf("%s: %w", source.Name(), err))
		}
	}
	if balanceOnly != nil {
		return balanceOnly, nil
	}
	if definitive {
		return nil, common.ErrNotFound
	}
	return nil, fmt.Errorf("%w: %v", common.ErrSourcesExhausted, errors.Join(failures...))
}

type txState int

const (
	txUnknown txState = iota
	txFound
	txMissing
)

// lookupConfirmations asks the wallet for a transaction and falls back to
// the explorers. txMissing is only reported when the wallet answered
// not-found and at least one explorer did too.
func (svc *BchhubService) lookupConfirmations(ctx context.Context, txHash string) (int64, txState, error) {
	tx, walletErr := retryTransient(ctx, svc.Config.RetryPolicy(), func() (*wallet.Transaction, error) {
		return svc.Wallet.Transaction(ctx, txHash)
	})
	if walletErr == nil {
		return tx.Confirmations, txFound, nil
	}
	if !errors.Is(walletErr, common.ErrNotFound) {
		evidenceSourceErrors.WithLabelValues("wallet").Inc()
		svc.Logger.Warnf("Wallet lookup of tx %s failed: %v", txHash, walletErr)
	}
	if svc.Explorers == nil || len(svc.Explorers.Providers()) == 0 {
		if errors.Is(walletErr, common.ErrNotFound) {
			return 0, txMissing, walletErr
		}
		return 0, txUnknown, walletErr
	}
	confirmations, _, err := svc.Explorers.TransactionConfirmations(ctx, txHash)
	switch {
	case err == nil:
		return confirmations, txFound, nil
	case errors.Is(err, common.ErrNotFound) && errors.Is(walletErr, common.ErrNotFound):
		return 0, txMissing, err
	default:
		return 0, txUnknown, fmt.Errorf("wallet: %v, explorers: %w", walletErr, err)
	}
}
