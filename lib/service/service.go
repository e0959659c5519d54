package service

import (
	"context"
	"time"

	"github.com/oratio/bchhub.go/explorer"
	"github.com/oratio/bchhub.go/lib/zeroconf"
	"github.com/oratio/bchhub.go/wallet"
	"github.com/uptrace/bun"
	"github.com/ziflex/lecho/v3"
)

// ZeroConfValidator decides whether an unconfirmed payment can be trusted.
type ZeroConfValidator interface {
	Validate(ctx context.Context, req zeroconf.Request) zeroconf.Result
}

type BchhubService struct {
	Config          *Config
	DB              *bun.DB
	Wallet          wallet.Client
	Explorers       *explorer.Chain
	Validator       ZeroConfValidator
	EvidenceSources []EvidenceSource
	Logger          *lecho.Logger
	InvoicePubSub   *Pubsub
	// Clock overrides time.Now in tests
	Clock func() time.Time
}

func (svc *BchhubService) now() time.Time {
	if svc.Clock != nil {
		return svc.Clock().UTC()
	}
	return time.Now().UTC()
}

// NewValidator builds the zero-conf validator from the service configuration.
func NewValidator(c *Config, txs zeroconf.TxSource, logger *lecho.Logger) *zeroconf.Validator {
	return zeroconf.NewValidator(txs, zeroconf.Options{
		MinRelayFeeRate:  c.MinRelayFeeRate,
		MinFeePercent:    c.ZeroConfMinFeePercent,
		DoubleSpendCheck: c.ZeroConfDoubleSpendCheck,
	}, logger)
}

func (svc *BchhubService) Ping(ctx context.Context) error {
	if err := svc.DB.PingContext(ctx); err != nil {
		return err
	}
	return svc.Wallet.Ping(ctx)
}
