package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/oratio/bchhub.go/common"
	"github.com/shopspring/decimal"
	"github.com/ziflex/lecho/v3"
	"golang.org/x/time/rate"
)

// maximum accepted response body
const maxResponseSize = 1 << 20

//go:generate mockgen -destination=./mock_explorer/explorer.go github.com/oratio/bchhub.go/explorer Provider

// Provider is a block explorer queried as untrusted secondary evidence.
type Provider interface {
	Name() string
	AddressBalance(ctx context.Context, address string) (*Balance, error)
	AddressTransactions(ctx context.Context, address string) ([]AddressTx, error)
	TransactionConfirmations(ctx context.Context, txHash string) (int64, error)
}

type Balance struct {
	Confirmed   decimal.Decimal
	Unconfirmed decimal.Decimal
}

func (b Balance) Total() decimal.Decimal {
	return b.Confirmed.Add(b.Unconfirmed)
}

// AddressTx is one transaction touching an address, with the amount it
// received (negative when the address spent).
type AddressTx struct {
	TxHash        string
	Received      decimal.Decimal
	Confirmations int64
	Timestamp     time.Time
}

func InitProviders(c *Config, logger *lecho.Logger) ([]Provider, error) {
	providers := []Provider{}
	opts := httpOptions{
		timeout: time.Duration(c.ExplorerTimeout) * time.Second,
		limit:   rate.Limit(c.ExplorerRateLimit),
		burst:   c.ExplorerRateBurst,
	}
	for _, name := range c.ProviderNames() {
		switch name {
		case BLOCKCHAIR_PROVIDER:
			providers = append(providers, NewBlockchair(c.BlockchairURL, c.BlockchairAPIKey, opts, logger))
		case BTCCOM_PROVIDER:
			providers = append(providers, NewBTCCom(c.BTCComURL, opts, logger))
		default:
			return nil, fmt.Errorf("Did not recognize explorer provider %s", name)
		}
	}
	return providers, nil
}

type httpOptions struct {
	timeout time.Duration
	limit   rate.Limit
	burst   int
}

// httpGetter is the rate limited JSON GET shared by providers.
type httpGetter struct {
	name       string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newHTTPGetter(name string, opts httpOptions) httpGetter {
	if opts.timeout <= 0 {
		opts.timeout = 8 * time.Second
	}
	if opts.limit <= 0 {
		opts.limit = rate.Inf
	}
	if opts.burst <= 0 {
		opts.burst = 1
	}
	return httpGetter{
		name:       name,
		httpClient: &http.Client{Timeout: opts.timeout},
		limiter:    rate.NewLimiter(opts.limit, opts.burst),
	}
}

func (g httpGetter) getJSON(ctx context.Context, url string, out interface{}) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return common.NewTransientError(g.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return common.NewTransientError(g.name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", g.name, url, common.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return common.NewTransientError(g.name, fmt.Errorf("status code %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s: unexpected status code %d", g.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return common.NewTransientError(g.name, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return common.NewDataInconsistencyError(g.name, "decoding response: %v", err)
	}
	return nil
}

func validTxHash(hash string) bool {
	_, err := chainhash.NewHashFromStr(hash)
	return err == nil && len(hash) == chainhash.MaxHashStringSize
}
