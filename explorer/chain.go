package explorer

import (
	"context"
	"errors"
	"fmt"

	"github.com/oratio/bchhub.go/common"
	"github.com/shopspring/decimal"
	"github.com/ziflex/lecho/v3"
)

// Chain queries providers in priority order.
type Chain struct {
	providers      []Provider
	staleTolerance decimal.Decimal
	logger         *lecho.Logger
}

func NewChain(providers []Provider, staleTolerance float64, logger *lecho.Logger) *Chain {
	return &Chain{
		providers:      providers,
		staleTolerance: decimal.NewFromFloat(staleTolerance),
		logger:         logger,
	}
}

func (c *Chain) Providers() []Provider {
	return c.providers
}

// stale reports whether total is materially below the best balance seen so far.
func (c *Chain) stale(total, best decimal.Decimal) bool {
	if !best.IsPositive() {
		return false
	}
	return total.LessThan(best.Mul(decimal.NewFromInt(1).Sub(c.staleTolerance)))
}

// AddressBalance returns the first non-zero balance that is not stale
// relative to floor (typically what the wallet reported) or to an earlier
// provider's answer. A zero balance is returned when every provider that
// answered reported zero.
func (c *Chain) AddressBalance(ctx context.Context, address string, floor decimal.Decimal) (*Balance, string, error) {
	best := floor
	answered := false
	for _, p := range c.providers {
		balance, err := p.AddressBalance(ctx, address)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				answered = true
				continue
			}
			c.logger.Warnf("explorer %s balance for %s failed: %v", p.Name(), address, err)
			continue
		}
		answered = true
		total := balance.Total()
		if total.IsNegative() {
			c.logger.Warnf("explorer %s reported negative balance %s for %s", p.Name(), total, address)
			continue
		}
		if c.stale(total, best) {
			c.logger.Warnf("explorer %s balance %s for %s is below %s, treating as stale", p.Name(), total, address, best)
			continue
		}
		if total.IsPositive() {
			return balance, p.Name(), nil
		}
	}
	if !answered {
		return nil, "", fmt.Errorf("balance for %s: %w", address, common.ErrSourcesExhausted)
	}
	return &Balance{}, "", nil
}

// TransactionConfirmations asks each provider until one knows the
// transaction. ErrNotFound is returned only when at least one provider
// answered and none found it.
func (c *Chain) TransactionConfirmations(ctx context.Context, txHash string) (int64, string, error) {
	answered := false
	for _, p := range c.providers {
		confirmations, err := p.TransactionConfirmations(ctx, txHash)
		if err == nil {
			return confirmations, p.Name(), nil
		}
		if errors.Is(err, common.ErrNotFound) {
			answered = true
			continue
		}
		c.logger.Warnf("explorer %s lookup of %s failed: %v", p.Name(), txHash, err)
	}
	if answered {
		return 0, "", fmt.Errorf("tx %s: %w", txHash, common.ErrNotFound)
	}
	return 0, "", fmt.Errorf("tx %s: %w", txHash, common.ErrSourcesExhausted)
}
