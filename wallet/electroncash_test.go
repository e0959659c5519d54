package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/oratio/bchhub.go/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ziflex/lecho/v3"
)

type rpcHandler func(method string, params []json.RawMessage) (result interface{}, rpcErr *RPCError)

type fakeDaemon struct {
	server   *httptest.Server
	password atomic.Value
	mu       sync.Mutex
	calls    []string
}

func newFakeDaemon(t *testing.T, password string, handler rpcHandler) *fakeDaemon {
	d := &fakeDaemon{}
	d.password.Store(password)
	d.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, pass, ok := r.BasicAuth()
		if !ok || pass != d.password.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		req := struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		d.mu.Lock()
		d.calls = append(d.calls, req.Method)
		d.mu.Unlock()

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(d.server.Close)
	return d
}

func (d *fakeDaemon) methods() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.calls...)
}

type countingCredentials struct {
	passwords []string
	calls     atomic.Int32
}

func (c *countingCredentials) Credentials(ctx context.Context) (Credentials, error) {
	n := int(c.calls.Add(1)) - 1
	if n >= len(c.passwords) {
		n = len(c.passwords) - 1
	}
	return Credentials{User: "user", Password: c.passwords[n]}, nil
}

func testLogger() *lecho.Logger {
	return lecho.New(io.Discard)
}

func newTestClient(url string, creds CredentialSource) *ElectronCashClient {
	return NewElectronCashClient(ElectronCashOptions{URL: url, Credentials: creds}, testLogger())
}

func methodNotFound() *RPCError {
	return &RPCError{Code: rpcMethodNotFoundCode, Message: "Method not found"}
}

func TestNewAddressFallsBackThroughMethodNames(t *testing.T) {
	t.Parallel()
	d := newFakeDaemon(t, "secret", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		switch method {
		case "getnewaddress":
			return "bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a", nil
		default:
			return nil, methodNotFound()
		}
	})
	client := newTestClient(d.server.URL, StaticCredentials{User: "user", Password: "secret"})

	address, err := client.NewAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a", address)
	assert.Equal(t, []string{"createnewaddress", "getunusedaddress", "getnewaddress"}, d.methods())
}

func TestNewAddressFromPaymentRequest(t *testing.T) {
	t.Parallel()
	d := newFakeDaemon(t, "secret", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		if method != "addrequest" {
			return nil, methodNotFound()
		}
		assert.Len(t, params, 4)
		return map[string]interface{}{"address": "qz7xc0vl85nck65ffrsx5wvewjznp9lflgktxc5878"}, nil
	})
	client := newTestClient(d.server.URL, StaticCredentials{User: "user", Password: "secret"})

	address, err := client.NewAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "qz7xc0vl85nck65ffrsx5wvewjznp9lflgktxc5878", address)
}

func TestAuthFailureRegeneratesCredentialsOnce(t *testing.T) {
	t.Parallel()
	d := newFakeDaemon(t, "fresh", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		return map[string]interface{}{"blockchain_height": 820000}, nil
	})
	creds := &countingCredentials{passwords: []string{"stale", "fresh"}}
	client := newTestClient(d.server.URL, creds)

	height, err := client.BlockHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(820000), height)
	assert.Equal(t, int32(2), creds.calls.Load())

	// refreshed credentials are reused
	_, err = client.BlockHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), creds.calls.Load())
}

func TestAuthFailureSurfacesAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	d := newFakeDaemon(t, "never", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		return true, nil
	})
	creds := &countingCredentials{passwords: []string{"stale", "still-stale"}}
	client := newTestClient(d.server.URL, creds)

	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, common.IsAuthentication(err))
	// initial load plus one refresh before each of the two retries
	assert.Equal(t, int32(3), creds.calls.Load())
	assert.Len(t, d.methods(), 0)
}

func TestAuthFailureUsesEveryAttempt(t *testing.T) {
	t.Parallel()
	d := newFakeDaemon(t, "rotated", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		return true, nil
	})
	// the daemon's config file catches up only on the second refresh
	creds := &countingCredentials{passwords: []string{"stale", "stale", "rotated"}}
	client := newTestClient(d.server.URL, creds)

	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, int32(3), creds.calls.Load())
	assert.Equal(t, []string{"getinfo"}, d.methods())
}

func TestSingleAttemptDoesNotRefresh(t *testing.T) {
	t.Parallel()
	d := newFakeDaemon(t, "fresh", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		return true, nil
	})
	creds := &countingCredentials{passwords: []string{"stale", "fresh"}}
	client := NewElectronCashClient(ElectronCashOptions{URL: d.server.URL, Credentials: creds, MaxAttempts: 1}, testLogger())

	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, common.IsAuthentication(err))
	assert.Equal(t, int32(1), creds.calls.Load())
}

func TestTransientErrors(t *testing.T) {
	t.Parallel()
	unavailable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unavailable.Close()
	client := newTestClient(unavailable.URL, StaticCredentials{})
	_, err := client.AddressBalance(context.Background(), "qz0")
	assert.True(t, common.IsTransient(err))

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	client = newTestClient(closed.URL, StaticCredentials{})
	_, err = client.AddressHistory(context.Background(), "qz0")
	assert.True(t, common.IsTransient(err))
}

func TestAddressBalanceAmountEncodings(t *testing.T) {
	t.Parallel()
	d := newFakeDaemon(t, "secret", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		var address string
		_ = json.Unmarshal(params[0], &address)
		if address == "coins" {
			return map[string]interface{}{"confirmed": "0.05", "unconfirmed": "0.001"}, nil
		}
		return json.RawMessage(`{"confirmed": 5000000, "unconfirmed": 0}`), nil
	})
	client := newTestClient(d.server.URL, StaticCredentials{Password: "secret"})

	balance, err := client.AddressBalance(context.Background(), "coins")
	require.NoError(t, err)
	assert.Equal(t, "0.051", balance.Total().String())

	balance, err = client.AddressBalance(context.Background(), "sats")
	require.NoError(t, err)
	assert.Equal(t, "0.05", balance.Confirmed.String())
	assert.True(t, balance.Unconfirmed.IsZero())
}

func TestTransactionNotFound(t *testing.T) {
	t.Parallel()
	d := newFakeDaemon(t, "secret", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		return nil, &RPCError{Code: 1, Message: "Transaction not found"}
	})
	client := newTestClient(d.server.URL, StaticCredentials{Password: "secret"})

	_, err := client.Transaction(context.Background(), "ab")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestTransactionVerbosePayload(t *testing.T) {
	t.Parallel()
	txHash := "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	d := newFakeDaemon(t, "secret", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		switch method {
		case "gettransaction":
			return nil, methodNotFound()
		case "getrawtransaction":
			return json.RawMessage(`{
				"txid": "` + txHash + `",
				"confirmations": 0,
				"time": 1700000000,
				"size": 226,
				"fee": "0.00000452",
				"vin": [{"txid": "aa", "vout": 1, "sequence": 4294967295}],
				"vout": [
					{"value": 0.05, "scriptPubKey": {"addresses": ["bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a"]}},
					{"value": 0.1234, "scriptPubKey": {"addresses": ["bitcoincash:qz7xc0vl85nck65ffrsx5wvewjznp9lflgktxc5878"]}}
				]
			}`), nil
		}
		return nil, methodNotFound()
	})
	client := newTestClient(d.server.URL, StaticCredentials{Password: "secret"})

	tx, err := client.Transaction(context.Background(), txHash)
	require.NoError(t, err)
	assert.Equal(t, int64(0), tx.Confirmations)
	assert.Equal(t, int64(1700000000), tx.Timestamp.Unix())
	assert.Equal(t, "0.05", tx.ReceivedBy("qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a").String())
	assert.True(t, tx.ReceivedBy("qzunknown").IsZero())
	rate, ok := tx.FeeRate()
	assert.True(t, ok)
	assert.InDelta(t, 2.0, rate, 0.0001)
	assert.False(t, tx.IsReplaceable())
	assert.Equal(t, "aa:1", tx.Inputs[0].Outpoint())
}

func buildRawTx(t *testing.T, sequence uint32, value int64) (*wire.MsgTx, string) {
	prev, err := chainhash.NewHashFromStr("0e3e2357e806b6cdb1f70b54c3a3a17b6714ee1f0e68bebb44a74b1efd512098")
	require.NoError(t, err)
	msg := wire.NewMsgTx(2)
	in := wire.NewTxIn(wire.NewOutPoint(prev, 0), []byte{0x51}, nil)
	in.Sequence = sequence
	msg.AddTxIn(in)
	msg.AddTxOut(wire.NewTxOut(value, []byte{0x76, 0xa9, 0x14}))
	buf := bytes.Buffer{}
	require.NoError(t, msg.SerializeNoWitness(&buf))
	return msg, hex.EncodeToString(buf.Bytes())
}

func TestTransactionFromRawHex(t *testing.T) {
	t.Parallel()
	msg, rawHex := buildRawTx(t, 0xfffffffd, 5000000)
	txHash := msg.TxHash().String()
	d := newFakeDaemon(t, "secret", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		switch method {
		case "gettransaction":
			return map[string]interface{}{"hex": rawHex, "complete": true}, nil
		case "getrawtransaction":
			return nil, &RPCError{Code: 2, Message: "No such mempool or blockchain transaction"}
		case "deserialize":
			return map[string]interface{}{
				"outputs": []map[string]interface{}{{"address": "bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a", "value": 5000000}},
			}, nil
		}
		return nil, methodNotFound()
	})
	client := newTestClient(d.server.URL, StaticCredentials{Password: "secret"})

	tx, err := client.Transaction(context.Background(), txHash)
	require.NoError(t, err)
	require.Len(t, tx.Inputs, 1)
	assert.Equal(t, uint32(0xfffffffd), tx.Inputs[0].Sequence)
	assert.True(t, tx.IsReplaceable())
	assert.Equal(t, int64(len(rawHex)/2), tx.Size)
	assert.Equal(t, "0.05", tx.ReceivedBy("qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a").String())
	_, ok := tx.FeeRate()
	assert.False(t, ok)
}

func TestTransactionHexMismatchIsInconsistent(t *testing.T) {
	t.Parallel()
	_, rawHex := buildRawTx(t, wire.MaxTxInSequenceNum, 1000)
	d := newFakeDaemon(t, "secret", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		if method == "gettransaction" {
			return map[string]interface{}{"hex": rawHex, "confirmations": 3, "size": 100}, nil
		}
		return nil, methodNotFound()
	})
	client := newTestClient(d.server.URL, StaticCredentials{Password: "secret"})

	_, err := client.Transaction(context.Background(), "00000000000000000000000000000000000000000000000000000000000000ff")
	assert.True(t, common.IsDataInconsistency(err))
}

func TestMempoolAndHistory(t *testing.T) {
	t.Parallel()
	d := newFakeDaemon(t, "secret", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		switch method {
		case "getmempooltransactions":
			return []map[string]string{{"tx_hash": "aa"}, {"txid": "bb"}}, nil
		case "history":
			return json.RawMessage(`{"transactions": [{"txid": "cc", "value": "+0.05", "timestamp": 1700000100, "confirmations": 2}]}`), nil
		}
		return nil, methodNotFound()
	})
	client := newTestClient(d.server.URL, StaticCredentials{Password: "secret"})

	mempool, err := client.MempoolTransactions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"aa", "bb"}, mempool)

	history, err := client.WalletHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "cc", history[0].TxHash)
	assert.Equal(t, "0.05", history[0].Value.String())
	assert.Equal(t, int64(2), history[0].Confirmations)
}

func TestBroadcastLegacyResult(t *testing.T) {
	t.Parallel()
	msg, rawHex := buildRawTx(t, wire.MaxTxInSequenceNum, 1000)
	d := newFakeDaemon(t, "secret", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		return []interface{}{true, msg.TxHash().String()}, nil
	})
	client := newTestClient(d.server.URL, StaticCredentials{Password: "secret"})

	txid, err := client.Broadcast(context.Background(), rawHex)
	require.NoError(t, err)
	assert.Equal(t, msg.TxHash().String(), txid)

	_, err = client.Broadcast(context.Background(), "zz")
	assert.Error(t, err)
}

func TestConcurrentCallsShareClient(t *testing.T) {
	t.Parallel()
	d := newFakeDaemon(t, "secret", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		return []map[string]interface{}{{"tx_hash": "aa", "height": 0}}, nil
	})
	client := NewElectronCashClient(ElectronCashOptions{
		URL:            d.server.URL,
		Credentials:    StaticCredentials{Password: "secret"},
		MaxConcurrency: 2,
	}, testLogger())

	wg := sync.WaitGroup{}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			history, err := client.AddressHistory(context.Background(), "qz0")
			assert.NoError(t, err)
			assert.Len(t, history, 1)
		}()
	}
	wg.Wait()
	assert.Len(t, d.methods(), 16)
}

func TestWalletBalance(t *testing.T) {
	t.Parallel()
	d := newFakeDaemon(t, "secret", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		assert.Equal(t, "getbalance", method)
		assert.Empty(t, params)
		return map[string]interface{}{"confirmed": "1.25", "unconfirmed": "0.004"}, nil
	})
	client := newTestClient(d.server.URL, StaticCredentials{Password: "secret"})

	balance, err := client.WalletBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.25", balance.Confirmed.String())
	assert.Equal(t, "0.004", balance.Unconfirmed.String())
}

func TestPayToCompleteTransaction(t *testing.T) {
	t.Parallel()
	_, rawHex := buildRawTx(t, wire.MaxTxInSequenceNum, 24999000)
	d := newFakeDaemon(t, "secret", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		var address, amount string
		require.NoError(t, json.Unmarshal(params[0], &address))
		require.NoError(t, json.Unmarshal(params[1], &amount))
		assert.Equal(t, "bitcoincash:qpayout", address)
		assert.Equal(t, "0.24999000", amount)
		return rawHex, nil
	})
	client := newTestClient(d.server.URL, StaticCredentials{Password: "secret"})

	signed, err := client.PayTo(context.Background(), "bitcoincash:qpayout", decimal.RequireFromString("0.24999"))
	require.NoError(t, err)
	assert.Equal(t, rawHex, signed)
	assert.Equal(t, []string{"payto"}, d.methods())
}

func TestPayToSignsIncompleteTransaction(t *testing.T) {
	t.Parallel()
	_, rawHex := buildRawTx(t, wire.MaxTxInSequenceNum, 1000000)
	d := newFakeDaemon(t, "secret", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		switch method {
		case "payto":
			return map[string]interface{}{"hex": "0100unsigned", "complete": false}, nil
		case "signtransaction":
			var unsigned string
			require.NoError(t, json.Unmarshal(params[0], &unsigned))
			assert.Equal(t, "0100unsigned", unsigned)
			return map[string]interface{}{"hex": rawHex, "complete": true}, nil
		}
		return nil, &RPCError{Code: -32601, Message: "unknown method"}
	})
	client := newTestClient(d.server.URL, StaticCredentials{Password: "secret"})

	signed, err := client.PayTo(context.Background(), "bitcoincash:qpayout", decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	assert.Equal(t, rawHex, signed)
	assert.Equal(t, []string{"payto", "signtransaction"}, d.methods())
}

func TestPayToRejectsUnsignedResult(t *testing.T) {
	t.Parallel()
	d := newFakeDaemon(t, "secret", func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		return map[string]interface{}{"hex": "0100unsigned", "complete": false}, nil
	})
	client := newTestClient(d.server.URL, StaticCredentials{Password: "secret"})

	_, err := client.PayTo(context.Background(), "bitcoincash:qpayout", decimal.RequireFromString("0.01"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete")
}
