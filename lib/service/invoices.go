package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/oratio/bchhub.go/common"
	"github.com/oratio/bchhub.go/db/models"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

var errAddressInUse = errors.New("address already registered")

// allowedTransitions lists every status change the store accepts.
var allowedTransitions = map[string][]string{
	common.InvoiceStatusPending: {
		common.InvoiceStatusExpired,
		common.InvoiceStatusPaid,
		common.InvoiceStatusBalanceMatchedUnverified,
	},
	common.InvoiceStatusBalanceMatchedUnverified: {
		common.InvoiceStatusPaid,
		common.InvoiceStatusCompleted,
		common.InvoiceStatusExpired,
	},
	common.InvoiceStatusPaid: {
		common.InvoiceStatusCompleted,
		common.InvoiceStatusDoubleSpendDetected,
	},
	common.InvoiceStatusCompleted: {
		common.InvoiceStatusDoubleSpendDetected,
	},
}

func transitionAllowed(from, to string) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (svc *BchhubService) CreateInvoice(ctx context.Context, amount decimal.Decimal, userID string) (*models.Invoice, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("invoice amount must be positive, got %s", amount)
	}
	if !amount.Equal(amount.Truncate(8)) {
		return nil, fmt.Errorf("invoice amount %s has more than 8 decimals", amount)
	}

	for attempt := 1; attempt <= svc.Config.AddressAllocationAttempts; attempt++ {
		address, err := retryTransient(ctx, svc.Config.RetryPolicy(), func() (string, error) {
			return svc.Wallet.NewAddress(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("allocating payment address: %w", err)
		}

		now := svc.now()
		invoice := &models.Invoice{
			ID:             uuid.NewString(),
			PaymentAddress: address,
			Amount:         amount,
			Status:         common.InvoiceStatusPending,
			UserID:         userID,
			CreatedAt:      now,
			ExpiresAt:      now.Add(svc.Config.invoiceTTL()),
		}
		err = svc.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			addr := &models.Address{Address: address, InvoiceID: invoice.ID, CreatedAt: now}
			res, err := tx.NewInsert().Model(addr).On("CONFLICT DO NOTHING").Exec(ctx)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return errAddressInUse
			}
			_, err = tx.NewInsert().Model(invoice).Exec(ctx)
			return err
		})
		if errors.Is(err, errAddressInUse) {
			svc.Logger.Warnf("Wallet returned already registered address %s (attempt %d)", address, attempt)
			continue
		}
		if err != nil {
			return nil, err
		}
		svc.Logger.Infof("Created invoice %s for %s BCH at %s", invoice.ID, amount, address)
		return invoice, nil
	}
	return nil, fmt.Errorf("no unused address after %d attempts: %w", svc.Config.AddressAllocationAttempts, errAddressInUse)
}

func (svc *BchhubService) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	return getInvoice(ctx, svc.DB, id)
}

func getInvoice(ctx context.Context, db bun.IDB, id string) (*models.Invoice, error) {
	invoice := &models.Invoice{}
	err := db.NewSelect().Model(invoice).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, common.ErrInvoiceNotFound)
	}
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// NonTerminalInvoices returns the invoices every scheduler cycle revisits,
// oldest first.
func (svc *BchhubService) NonTerminalInvoices(ctx context.Context) ([]models.Invoice, error) {
	invoices := []models.Invoice{}
	err := svc.DB.NewSelect().
		Model(&invoices).
		Where("status IN (?)", bun.In(common.NonTerminalStatuses)).
		OrderExpr("created_at ASC").
		Scan(ctx)
	return invoices, err
}

func (svc *BchhubService) InvoicesForUser(ctx context.Context, userID string) ([]models.Invoice, error) {
	invoices := []models.Invoice{}
	err := svc.DB.NewSelect().
		Model(&invoices).
		Where("user_id = ?", userID).
		OrderExpr("created_at DESC").
		Scan(ctx)
	return invoices, err
}

// ExpireStaleInvoices moves pending invoices whose expiry (plus grace) has
// passed to expired. Invoices paid in the meantime are left alone by the
// conditional update.
func (svc *BchhubService) ExpireStaleInvoices(ctx context.Context) (int, error) {
	cutoff := svc.now().Add(-svc.Config.expiryGrace())
	stale := []models.Invoice{}
	err := svc.DB.NewSelect().
		Model(&stale).
		Where("status = ?", common.InvoiceStatusPending).
		Where("expires_at < ?", cutoff).
		Scan(ctx)
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range stale {
		_, err := svc.transition(ctx, &stale[i], common.InvoiceStatusExpired, nil)
		if errors.Is(err, common.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

type updateFunc func(q *bun.UpdateQuery) *bun.UpdateQuery

// applyTransition performs the conditional status update. Zero affected rows
// means another writer moved the invoice first.
func (svc *BchhubService) applyTransition(ctx context.Context, db bun.IDB, invoice *models.Invoice, to string, set updateFunc) error {
	if !transitionAllowed(invoice.Status, to) {
		return fmt.Errorf("%s -> %s: %w", invoice.Status, to, common.ErrInvalidTransition)
	}
	q := db.NewUpdate().
		Model((*models.Invoice)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", svc.now()).
		Where("id = ?", invoice.ID).
		Where("status = ?", invoice.Status)
	if set != nil {
		q = set(q)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s is no longer %s: %w", invoice.ID, invoice.Status, common.ErrInvalidTransition)
	}
	return nil
}

// transition applies a single-statement transition and reports it.
func (svc *BchhubService) transition(ctx context.Context, invoice *models.Invoice, to string, set updateFunc) (*models.Invoice, error) {
	if err := svc.applyTransition(ctx, svc.DB, invoice, to, set); err != nil {
		return nil, err
	}
	return svc.afterTransition(ctx, invoice.ID, invoice.Status, to)
}

// afterTransition reloads the invoice and fans the change out to logs,
// metrics and subscribers.
func (svc *BchhubService) afterTransition(ctx context.Context, id, from, to string) (*models.Invoice, error) {
	invoice, err := svc.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	invoiceTransitions.WithLabelValues(from, to).Inc()
	svc.Logger.Infof("Invoice %s: %s -> %s", id, from, to)
	if svc.InvoicePubSub != nil {
		event := models.InvoiceEvent{Invoice: *invoice, FromStatus: from, ToStatus: to, OccurredAt: svc.now()}
		if dropped := svc.InvoicePubSub.Publish(InvoiceTopic, event); dropped > 0 {
			svc.Logger.Warnf("Invoice %s event dropped for %d slow subscribers", id, dropped)
		}
	}
	return invoice, nil
}

// markAddressUsed flags the address of a paid invoice.
func markAddressUsed(ctx context.Context, db bun.IDB, address string) error {
	_, err := db.NewUpdate().
		Model((*models.Address)(nil)).
		Set("used = ?", true).
		Where("address = ?", address).
		Exec(ctx)
	return err
}

func (svc *BchhubService) markPaid(ctx context.Context, invoice *models.Invoice, txHash string, confirmations int64, source string, zeroConf bool) (*models.Invoice, error) {
	paidAt := svc.now()
	err := svc.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		err := svc.applyTransition(ctx, tx, invoice, common.InvoiceStatusPaid, func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.
				Set("tx_hash = ?", txHash).
				Set("paid_at = ?", paidAt).
				Set("confirmations = ?", confirmations).
				Set("evidence_source = ?", source).
				Set("zero_conf = ?", zeroConf)
		})
		if err != nil {
			return err
		}
		return markAddressUsed(ctx, tx, invoice.PaymentAddress)
	})
	if err != nil {
		return nil, err
	}
	return svc.afterTransition(ctx, invoice.ID, invoice.Status, common.InvoiceStatusPaid)
}

// complete moves the invoice to completed and writes its credit in the same
// transaction. A concurrent caller that loses the conditional update never
// reaches the insert, and the unique credit index absorbs any other race.
func (svc *BchhubService) complete(ctx context.Context, invoice *models.Invoice, confirmations int64, set updateFunc) (*models.Invoice, error) {
	err := svc.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		err := svc.applyTransition(ctx, tx, invoice, common.InvoiceStatusCompleted, func(q *bun.UpdateQuery) *bun.UpdateQuery {
			q = q.Set("confirmations = ?", confirmations)
			if set != nil {
				q = set(q)
			}
			return q
		})
		if err != nil {
			return err
		}
		if err := markAddressUsed(ctx, tx, invoice.PaymentAddress); err != nil {
			return err
		}
		_, err = svc.creditInvoice(ctx, tx, invoice)
		return err
	})
	if err != nil {
		return nil, err
	}
	return svc.afterTransition(ctx, invoice.ID, invoice.Status, common.InvoiceStatusCompleted)
}
