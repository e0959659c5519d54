package explorer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oratio/bchhub.go/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ziflex/lecho/v3"
	"golang.org/x/time/rate"
)

const (
	testAddress = "bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a"
	testTxHash  = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	otherTxHash = "0e3e2357e806b6cdb1f70b54c3a3a17b6714ee1f0e68bebb44a74b1efd512098"
)

func testLogger() *lecho.Logger {
	return lecho.New(io.Discard)
}

var testOpts = httpOptions{timeout: 2 * time.Second, limit: rate.Inf, burst: 1}

func serve(t *testing.T, routes map[string]string) (*httptest.Server, *atomic.Int32) {
	hits := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, hits
}

func TestBlockchairAddressTransactions(t *testing.T) {
	t.Parallel()
	srv, _ := serve(t, map[string]string{
		"/bitcoin-cash/dashboards/address/qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a": `{
			"data": {"qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a": {
				"address": {"balance": 7000000},
				"transactions": [
					{"block_id": -1, "hash": "` + testTxHash + `", "time": "2024-02-01 10:00:00", "balance_change": 5000000},
					{"block_id": 800000, "hash": "` + otherTxHash + `", "time": "2024-01-01 10:00:00", "balance_change": 2000000},
					{"block_id": 799000, "hash": "not-a-hash", "time": "2024-01-01 10:00:00", "balance_change": 1}
				]}},
			"context": {"state": 800009}
		}`,
	})
	b := NewBlockchair(srv.URL, "", testOpts, testLogger())

	txs, err := b.AddressTransactions(context.Background(), testAddress)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, testTxHash, txs[0].TxHash)
	assert.Equal(t, int64(0), txs[0].Confirmations)
	assert.True(t, decimal.RequireFromString("0.05").Equal(txs[0].Received))
	assert.Equal(t, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC), txs[0].Timestamp)
	assert.Equal(t, int64(10), txs[1].Confirmations)

	balance, err := b.AddressBalance(context.Background(), testAddress)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.02").Equal(balance.Confirmed))
	assert.True(t, decimal.RequireFromString("0.05").Equal(balance.Unconfirmed))
}

func TestBlockchairTransactionConfirmations(t *testing.T) {
	t.Parallel()
	srv, _ := serve(t, map[string]string{
		"/bitcoin-cash/dashboards/transaction/" + testTxHash: `{
			"data": {"` + testTxHash + `": {"transaction": {"block_id": 800000}}},
			"context": {"state": 800001}
		}`,
		"/bitcoin-cash/dashboards/transaction/" + otherTxHash: `{"data": [], "context": {"state": 800001}}`,
	})
	b := NewBlockchair(srv.URL, "secret", testOpts, testLogger())

	confirmations, err := b.TransactionConfirmations(context.Background(), testTxHash)
	require.NoError(t, err)
	assert.Equal(t, int64(2), confirmations)

	_, err = b.TransactionConfirmations(context.Background(), otherTxHash)
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = b.TransactionConfirmations(context.Background(), "zz")
	assert.True(t, common.IsDataInconsistency(err))
}

func TestBTCComProvider(t *testing.T) {
	t.Parallel()
	srv, _ := serve(t, map[string]string{
		"/v3/address/qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a": `{"err_no": 0, "data": {
			"balance": 5000000, "unconfirmed_received": 5000000, "unconfirmed_sent": 0}}`,
		"/v3/address/qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a/tx": `{"err_no": 0, "data": {"list": [
			{"hash": "` + testTxHash + `", "confirmations": 3, "block_time": 1706781600, "balance_diff": 5000000}]}}`,
		"/v3/tx/" + testTxHash:  `{"err_no": 0, "data": {"hash": "` + testTxHash + `", "confirmations": 3}}`,
		"/v3/tx/" + otherTxHash: `{"err_no": 1, "err_msg": "not found", "data": null}`,
	})
	b := NewBTCCom(srv.URL, testOpts, testLogger())
	ctx := context.Background()

	balance, err := b.AddressBalance(ctx, testAddress)
	require.NoError(t, err)
	assert.True(t, balance.Confirmed.IsZero())
	assert.True(t, decimal.RequireFromString("0.05").Equal(balance.Total()))

	txs, err := b.AddressTransactions(ctx, testAddress)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(3), txs[0].Confirmations)
	assert.Equal(t, time.Unix(1706781600, 0).UTC(), txs[0].Timestamp)

	confirmations, err := b.TransactionConfirmations(ctx, testTxHash)
	require.NoError(t, err)
	assert.Equal(t, int64(3), confirmations)

	_, err = b.TransactionConfirmations(ctx, otherTxHash)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestProviderErrorClassification(t *testing.T) {
	t.Parallel()
	status := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := int(status.Load())
		w.WriteHeader(code)
		if code == http.StatusOK {
			_, _ = io.WriteString(w, "{not json")
		}
	}))
	defer srv.Close()
	b := NewBTCCom(srv.URL, testOpts, testLogger())
	ctx := context.Background()

	status.Store(http.StatusTooManyRequests)
	_, err := b.AddressBalance(ctx, testAddress)
	assert.True(t, common.IsTransient(err))

	status.Store(http.StatusBadGateway)
	_, err = b.AddressBalance(ctx, testAddress)
	assert.True(t, common.IsTransient(err))

	status.Store(http.StatusOK)
	_, err = b.AddressBalance(ctx, testAddress)
	assert.True(t, common.IsDataInconsistency(err))

	srv.Close()
	_, err = b.AddressBalance(ctx, testAddress)
	assert.True(t, common.IsTransient(err))
}

func TestRateLimiterHonoursContext(t *testing.T) {
	t.Parallel()
	srv, hits := serve(t, map[string]string{
		"/v3/tx/" + testTxHash: `{"err_no": 0, "data": {"hash": "` + testTxHash + `", "confirmations": 1}}`,
	})
	b := NewBTCCom(srv.URL, httpOptions{timeout: time.Second, limit: rate.Every(time.Hour), burst: 1}, testLogger())

	_, err := b.TransactionConfirmations(context.Background(), testTxHash)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = b.TransactionConfirmations(ctx, testTxHash)
	assert.True(t, common.IsTransient(err))
	assert.Equal(t, int32(1), hits.Load())
}

type stubProvider struct {
	name          string
	balance       *Balance
	confirmations int64
	err           error
	calls         atomic.Int32
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) AddressBalance(ctx context.Context, address string) (*Balance, error) {
	s.calls.Add(1)
	return s.balance, s.err
}

func (s *stubProvider) AddressTransactions(ctx context.Context, address string) ([]AddressTx, error) {
	s.calls.Add(1)
	return nil, s.err
}

func (s *stubProvider) TransactionConfirmations(ctx context.Context, txHash string) (int64, error) {
	s.calls.Add(1)
	return s.confirmations, s.err
}

func coins(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestChainAddressBalanceSkipsStaleProviders(t *testing.T) {
	t.Parallel()
	stale := &stubProvider{name: "stale", balance: &Balance{Confirmed: coins("0.01")}}
	fresh := &stubProvider{name: "fresh", balance: &Balance{Confirmed: coins("0.05")}}
	chain := NewChain([]Provider{stale, fresh}, 0.00001, testLogger())

	balance, source, err := chain.AddressBalance(context.Background(), testAddress, coins("0.05"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", source)
	assert.True(t, coins("0.05").Equal(balance.Total()))
}

func TestChainAddressBalanceFallsThroughErrors(t *testing.T) {
	t.Parallel()
	down := &stubProvider{name: "down", err: common.NewTransientError("down", errors.New("timeout"))}
	empty := &stubProvider{name: "empty", balance: &Balance{}}
	chain := NewChain([]Provider{down, empty}, 0.00001, testLogger())

	balance, _, err := chain.AddressBalance(context.Background(), testAddress, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, balance.Total().IsZero())
	assert.Equal(t, int32(1), down.calls.Load())

	chain = NewChain([]Provider{down}, 0.00001, testLogger())
	_, _, err = chain.AddressBalance(context.Background(), testAddress, decimal.Zero)
	assert.ErrorIs(t, err, common.ErrSourcesExhausted)
}

func TestChainTransactionConfirmations(t *testing.T) {
	t.Parallel()
	missing := &stubProvider{name: "missing", err: common.ErrNotFound}
	down := &stubProvider{name: "down", err: common.NewTransientError("down", errors.New("refused"))}
	found := &stubProvider{name: "found", confirmations: 4}

	confirmations, source, err := NewChain([]Provider{missing, down, found}, 0, testLogger()).
		TransactionConfirmations(context.Background(), testTxHash)
	require.NoError(t, err)
	assert.Equal(t, int64(4), confirmations)
	assert.Equal(t, "found", source)

	_, _, err = NewChain([]Provider{missing, down}, 0, testLogger()).TransactionConfirmations(context.Background(), testTxHash)
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, _, err = NewChain([]Provider{down}, 0, testLogger()).TransactionConfirmations(context.Background(), testTxHash)
	assert.ErrorIs(t, err, common.ErrSourcesExhausted)
}

func TestConfigProviderNames(t *testing.T) {
	c := &Config{ExplorerProviders: " Blockchair, ,btccom "}
	assert.Equal(t, []string{"blockchair", "btccom"}, c.ProviderNames())

	c.ExplorerProviders = "blockchair,unknown"
	_, err := InitProviders(c, testLogger())
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown"))
}
