package service

import (
	"context"
	"errors"

	"github.com/oratio/bchhub.go/common"
	"github.com/oratio/bchhub.go/db/models"
	"github.com/oratio/bchhub.go/lib/zeroconf"
	"github.com/uptrace/bun"
)

// Reconcile evaluates one invoice against the ledger and persists whatever
// transitions follow, in order. Terminal invoices are returned untouched.
// Only storage failures and unknown ids are returned as errors.
func (svc *BchhubService) Reconcile(ctx context.Context, id string) (*models.Invoice, error) {
	invoice, err := svc.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.IsTerminal() {
		return invoice, nil
	}

	if invoice.Status == common.InvoiceStatusPending || invoice.Status == common.InvoiceStatusBalanceMatchedUnverified {
		invoice, err = svc.reconcileUnpaid(ctx, invoice)
		if err != nil {
			return nil, err
		}
	}
	if invoice.Status == common.InvoiceStatusPaid {
		return svc.reconcilePaid(ctx, invoice)
	}
	return invoice, nil
}

// settle interprets a lost conditional update: somebody else moved the
// invoice, so the current row is the answer.
func (svc *BchhubService) settle(ctx context.Context, invoice *models.Invoice, next *models.Invoice, err error) (*models.Invoice, error) {
	if errors.Is(err, common.ErrInvalidTransition) {
		svc.Logger.Infof("Invoice %s changed concurrently, keeping the stored state", invoice.ID)
		return svc.GetInvoice(ctx, invoice.ID)
	}
	return next, err
}

func (svc *BchhubService) reconcileUnpaid(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error) {
	ev, err := svc.gatherEvidence(ctx, invoice)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			if invoice.Status == common.InvoiceStatusPending && invoice.IsExpiredAt(svc.now()) {
				next, err := svc.transition(ctx, invoice, common.InvoiceStatusExpired, nil)
				return svc.settle(ctx, invoice, next, err)
			}
			return invoice, nil
		}
		if ctx.Err() != nil {
			svc.Logger.Warnf("Reconciliation of invoice %s interrupted: %v", invoice.ID, ctx.Err())
			return invoice, nil
		}
		reconcilePassFailures.Inc()
		svc.Logger.Errorf("reconciliation pass failed for invoice %s: %v", invoice.ID, err)
		return invoice, nil
	}

	if ev.BalanceOnly {
		if invoice.Status != common.InvoiceStatusPending {
			return invoice, nil
		}
		svc.Logger.Warnf("Invoice %s: balance %s covers the amount but no transaction matched, operator review needed", invoice.ID, ev.Received)
		next, err := svc.transition(ctx, invoice, common.InvoiceStatusBalanceMatchedUnverified, func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Set("evidence_source = ?", ev.Source)
		})
		return svc.settle(ctx, invoice, next, err)
	}

	zeroConf := false
	if ev.Confirmations < svc.Config.MinConfirmations {
		if !svc.acceptZeroConf(ctx, invoice, ev.TxHash) {
			return invoice, nil
		}
		zeroConf = true
	}
	next, err := svc.markPaid(ctx, invoice, ev.TxHash, ev.Confirmations, ev.Source, zeroConf)
	return svc.settle(ctx, invoice, next, err)
}

func (svc *BchhubService) acceptZeroConf(ctx context.Context, invoice *models.Invoice, txHash string) bool {
	if !svc.Config.ZeroConfEnabled || svc.Validator == nil {
		return false
	}
	res := svc.Validator.Validate(ctx, zeroconf.Request{
		TxHash:          txHash,
		ExpectedAmount:  invoice.Amount,
		ExpectedAddress: invoice.PaymentAddress,
		EarliestTime:    invoice.CreatedAt,
	})
	if !res.Accepted {
		svc.Logger.Infof("Invoice %s: zero-conf tx %s not accepted (%s): %s", invoice.ID, txHash, res.Reason, res.Message)
		return false
	}
	return true
}

func (svc *BchhubService) reconcilePaid(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error) {
	confirmations, state, err := svc.lookupConfirmations(ctx, invoice.TxHash)
	unconfirmedZeroConf := invoice.ZeroConf && invoice.Confirmations < svc.Config.MinConfirmations

	switch state {
	case txMissing:
		if unconfirmedZeroConf {
			svc.Logger.Errorf("Invoice %s: zero-conf tx %s disappeared from wallet and explorers", invoice.ID, invoice.TxHash)
			next, err := svc.transition(ctx, invoice, common.InvoiceStatusDoubleSpendDetected, nil)
			return svc.settle(ctx, invoice, next, err)
		}
		svc.Logger.Warnf("Invoice %s: tx %s not found by any source", invoice.ID, invoice.TxHash)
		return invoice, nil
	case txUnknown:
		reconcilePassFailures.Inc()
		svc.Logger.Errorf("reconciliation pass failed for invoice %s: %v", invoice.ID, err)
		return invoice, nil
	}

	if confirmations >= svc.Config.MinConfirmations {
		next, err := svc.complete(ctx, invoice, confirmations, nil)
		return svc.settle(ctx, invoice, next, err)
	}

	if unconfirmedZeroConf && svc.Config.ZeroConfEnabled && svc.Validator != nil {
		res := svc.Validator.Validate(ctx, zeroconf.Request{
			TxHash:          invoice.TxHash,
			ExpectedAmount:  invoice.Amount,
			ExpectedAddress: invoice.PaymentAddress,
			EarliestTime:    invoice.CreatedAt,
		})
		if res.Contradicted() {
			svc.Logger.Errorf("Invoice %s: zero-conf tx %s failed re-validation (%s): %s", invoice.ID, invoice.TxHash, res.Reason, res.Message)
			next, err := svc.transition(ctx, invoice, common.InvoiceStatusDoubleSpendDetected, nil)
			return svc.settle(ctx, invoice, next, err)
		}
	}

	if confirmations != invoice.Confirmations {
		if err := svc.updateConfirmations(ctx, invoice, confirmations); err != nil {
			return nil, err
		}
	}
	return invoice, nil
}

// updateConfirmations records progress on a paid invoice without a status
// change.
func (svc *BchhubService) updateConfirmations(ctx context.Context, invoice *models.Invoice, confirmations int64) error {
	_, err := svc.DB.NewUpdate().
		Model((*models.Invoice)(nil)).
		Set("confirmations = ?", confirmations).
		Set("updated_at = ?", svc.now()).
		Where("id = ?", invoice.ID).
		Where("status = ?", common.InvoiceStatusPaid).
		Exec(ctx)
	if err != nil {
		return err
	}
	invoice.Confirmations = confirmations
	return nil
}
