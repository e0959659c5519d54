package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/oratio/bchhub.go/wallet"
)

// ForwardToPayoutWallet sends the confirmed wallet balance, less the fee
// reserve, to the payout address. It returns the broadcast transaction id, or
// an empty string when forwarding is disabled or the balance is below the
// minimum. Unconfirmed funds stay in the wallet.
func (svc *BchhubService) ForwardToPayoutWallet(ctx context.Context) (string, error) {
	if !svc.Config.ForwardPayments {
		return "", nil
	}
	if svc.Config.PayoutAddress == "" {
		return "", errors.New("payout address is not configured")
	}

	policy := svc.Config.RetryPolicy()
	balance, err := retryTransient(ctx, policy, func() (*wallet.Balance, error) {
		return svc.Wallet.WalletBalance(ctx)
	})
	if err != nil {
		return "", fmt.Errorf("reading wallet balance: %w", err)
	}
	if balance.Confirmed.LessThan(svc.Config.MinPayoutAmount) {
		svc.Logger.Debugf("Confirmed balance %s below payout minimum %s", balance.Confirmed, svc.Config.MinPayoutAmount)
		return "", nil
	}
	amount := balance.Confirmed.Sub(svc.Config.PayoutFeeReserve)
	if !amount.IsPositive() {
		return "", nil
	}

	rawTx, err := retryTransient(ctx, policy, func() (string, error) {
		return svc.Wallet.PayTo(ctx, svc.Config.PayoutAddress, amount)
	})
	if err != nil {
		return "", fmt.Errorf("building payout of %s: %w", amount.StringFixed(8), err)
	}
	// broadcast at most once
	txid, err := svc.Wallet.Broadcast(ctx, rawTx)
	if err != nil {
		return "", fmt.Errorf("broadcasting payout of %s: %w", amount.StringFixed(8), err)
	}
	payoutsForwarded.Inc()
	svc.Logger.Infof("Forwarded %s BCH to %s in tx %s", amount.StringFixed(8), svc.Config.PayoutAddress, txid)
	return txid, nil
}
