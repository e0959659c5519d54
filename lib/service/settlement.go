package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/oratio/bchhub.go/common"
	"github.com/oratio/bchhub.go/db/models"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// creditInvoice appends the credit for a completed invoice. It reports
// false when the credit already existed or the invoice has no beneficiary.
func (svc *BchhubService) creditInvoice(ctx context.Context, tx bun.Tx, invoice *models.Invoice) (bool, error) {
	if invoice.UserID == "" {
		svc.Logger.Warnf("Invoice %s completed without a user, nothing to credit", invoice.ID)
		return false, nil
	}
	entry := &models.SettlementEntry{
		ID:               uuid.NewString(),
		UserID:           invoice.UserID,
		Amount:           invoice.Amount,
		Type:             common.EntryTypeCredit,
		RelatedInvoiceID: invoice.ID,
		Description:      fmt.Sprintf("payment for invoice %s", invoice.ID),
		CreatedAt:        svc.now(),
	}
	res, err := tx.NewInsert().Model(entry).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		svc.Logger.Infof("Invoice %s was already credited to %s", invoice.ID, invoice.UserID)
		return false, nil
	}
	svc.Logger.Infof("Credited %s BCH to %s for invoice %s", invoice.Amount, invoice.UserID, invoice.ID)
	return true, nil
}

func (svc *BchhubService) SettlementEntriesForUser(ctx context.Context, userID string) ([]models.SettlementEntry, error) {
	return settlementEntriesFor(ctx, svc.DB, userID)
}

func settlementEntriesFor(ctx context.Context, db bun.IDB, userID string) ([]models.SettlementEntry, error) {
	entries := []models.SettlementEntry{}
	err := db.NewSelect().
		Model(&entries).
		Where("user_id = ?", userID).
		OrderExpr("created_at ASC").
		Scan(ctx)
	return entries, err
}

// BalanceForUser derives the balance as credits minus debits.
func (svc *BchhubService) BalanceForUser(ctx context.Context, userID string) (decimal.Decimal, error) {
	return balanceFor(ctx, svc.DB, userID)
}

func balanceFor(ctx context.Context, db bun.IDB, userID string) (decimal.Decimal, error) {
	entries, err := settlementEntriesFor(ctx, db, userID)
	if err != nil {
		return decimal.Zero, err
	}
	balance := decimal.Zero
	for _, e := range entries {
		switch e.Type {
		case common.EntryTypeCredit:
			balance = balance.Add(e.Amount)
		case common.EntryTypeDebit:
			balance = balance.Sub(e.Amount)
		}
	}
	return balance, nil
}

// DebitUser appends a debit if the derived balance covers it.
func (svc *BchhubService) DebitUser(ctx context.Context, userID string, amount decimal.Decimal, description string) (*models.SettlementEntry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("debit amount must be positive, got %s", amount)
	}
	entry := &models.SettlementEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Type:        common.EntryTypeDebit,
		Description: description,
		CreatedAt:   svc.now(),
	}
	err := svc.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		// serialize debits per user, sqlite already runs one writer at a time
		if svc.DB.Dialect().Name().String() == "pg" {
			if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", userID); err != nil {
				return err
			}
		}
		balance, err := balanceFor(ctx, tx, userID)
		if err != nil {
			return err
		}
		if balance.LessThan(amount) {
			return fmt.Errorf("balance %s is below %s: %w", balance, amount, common.ErrInsufficientBalance)
		}
		_, err = tx.NewInsert().Model(entry).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	svc.Logger.Infof("Debited %s BCH from %s: %s", amount, userID, description)
	return entry, nil
}
