package service

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/oratio/bchhub.go/common"
	"github.com/oratio/bchhub.go/db/models"
	"github.com/uptrace/bun"
)

// ConfirmUnverified resolves a balance-only match. With a transaction hash
// the invoice becomes paid and the reconciler confirms it like any other
// payment; without one the operator vouches for the funds and the invoice is
// completed and credited directly.
func (svc *BchhubService) ConfirmUnverified(ctx context.Context, id string, txHash string) (*models.Invoice, error) {
	invoice, err := svc.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != common.InvoiceStatusBalanceMatchedUnverified {
		return nil, fmt.Errorf("invoice %s is %s: %w", id, invoice.Status, common.ErrInvalidTransition)
	}

	if txHash == "" {
		svc.Logger.Infof("Operator confirmed invoice %s without a transaction", id)
		return svc.complete(ctx, invoice, invoice.Confirmations, func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Set("evidence_source = ?", common.EvidenceSourceOperator)
		})
	}

	if _, err := chainhash.NewHashFromStr(txHash); err != nil || len(txHash) != chainhash.MaxHashStringSize {
		return nil, fmt.Errorf("invalid tx hash %q", txHash)
	}
	if _, err := svc.markPaid(ctx, invoice, txHash, 0, common.EvidenceSourceOperator, false); err != nil {
		return nil, err
	}
	svc.Logger.Infof("Operator attached tx %s to invoice %s", txHash, id)
	return svc.Reconcile(ctx, id)
}

// RejectUnverified closes a balance-only match without settlement.
func (svc *BchhubService) RejectUnverified(ctx context.Context, id string) (*models.Invoice, error) {
	invoice, err := svc.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != common.InvoiceStatusBalanceMatchedUnverified {
		return nil, fmt.Errorf("invoice %s is %s: %w", id, invoice.Status, common.ErrInvalidTransition)
	}
	return svc.transition(ctx, invoice, common.InvoiceStatusExpired, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("evidence_source = ?", common.EvidenceSourceOperator)
	})
}

// FlagDoubleSpend marks a paid or completed invoice as double spent. Credits
// already written stay in the ledger; reversing them is a separate debit.
func (svc *BchhubService) FlagDoubleSpend(ctx context.Context, id string, reason string) (*models.Invoice, error) {
	invoice, err := svc.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != common.InvoiceStatusPaid && invoice.Status != common.InvoiceStatusCompleted {
		return nil, fmt.Errorf("invoice %s is %s: %w", id, invoice.Status, common.ErrInvalidTransition)
	}
	svc.Logger.Warnf("Operator flagged invoice %s as double spent: %s", id, reason)
	return svc.transition(ctx, invoice, common.InvoiceStatusDoubleSpendDetected, nil)
}
