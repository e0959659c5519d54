package service

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/oratio/bchhub.go/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmUnverifiedWithoutTransaction(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	invoice := env.insertInvoice(t, "0.05", common.InvoiceStatusBalanceMatchedUnverified)

	result, err := env.svc.ConfirmUnverified(ctx, invoice.ID, "")
	require.NoError(t, err)
	assert.Equal(t, common.InvoiceStatusCompleted, result.Status)
	assert.Equal(t, common.EvidenceSourceOperator, result.EvidenceSource)
	assert.Empty(t, result.TxHash)
	assert.Len(t, env.settlementEntries(t), 1)

	_, err = env.svc.ConfirmUnverified(ctx, invoice.ID, "")
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
	assert.Len(t, env.settlementEntries(t), 1)
}

func TestConfirmUnverifiedWithTransaction(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	invoice := env.insertInvoice(t, "0.05", common.InvoiceStatusBalanceMatchedUnverified)

	env.wallet.EXPECT().Transaction(gomock.Any(), testTxHash).Return(paymentTx(testTxHash, "0.05", 2), nil)
	result, err := env.svc.ConfirmUnverified(ctx, invoice.ID, testTxHash)
	require.NoError(t, err)
	assert.Equal(t, common.InvoiceStatusCompleted, result.Status)
	assert.Equal(t, testTxHash, result.TxHash)
	assert.Equal(t, int64(2), result.Confirmations)
	assert.Equal(t, common.EvidenceSourceOperator, result.EvidenceSource)
	assert.Len(t, env.settlementEntries(t), 1)
}

func TestConfirmUnverifiedValidatesInput(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	pending := env.insertInvoice(t, "0.05", common.InvoiceStatusPending)
	unverified := env.insertInvoice(t, "0.05", common.InvoiceStatusBalanceMatchedUnverified)

	_, err := env.svc.ConfirmUnverified(ctx, pending.ID, "")
	assert.ErrorIs(t, err, common.ErrInvalidTransition)

	_, err = env.svc.ConfirmUnverified(ctx, unverified.ID, "not-a-hash")
	assert.Error(t, err)

	stored, err := env.svc.GetInvoice(ctx, unverified.ID)
	require.NoError(t, err)
	assert.Equal(t, common.InvoiceStatusBalanceMatchedUnverified, stored.Status)
}

func TestRejectUnverified(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	invoice := env.insertInvoice(t, "0.05", common.InvoiceStatusBalanceMatchedUnverified)
	pending := env.insertInvoice(t, "0.05", common.InvoiceStatusPending)

	result, err := env.svc.RejectUnverified(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, common.InvoiceStatusExpired, result.Status)
	assert.Empty(t, env.settlementEntries(t))

	_, err = env.svc.RejectUnverified(ctx, pending.ID)
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
}

func TestFlagDoubleSpend(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	invoice := env.insertInvoice(t, "0.05", common.InvoiceStatusBalanceMatchedUnverified)
	_, err := env.svc.ConfirmUnverified(ctx, invoice.ID, "")
	require.NoError(t, err)

	result, err := env.svc.FlagDoubleSpend(ctx, invoice.ID, "reorged out")
	require.NoError(t, err)
	assert.Equal(t, common.InvoiceStatusDoubleSpendDetected, result.Status)
	// the credit is not rewritten
	assert.Len(t, env.settlementEntries(t), 1)

	_, err = env.svc.FlagDoubleSpend(ctx, invoice.ID, "again")
	assert.ErrorIs(t, err, common.ErrInvalidTransition)

	pending := env.insertInvoice(t, "0.05", common.InvoiceStatusPending)
	_, err = env.svc.FlagDoubleSpend(ctx, pending.ID, "nope")
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
}
