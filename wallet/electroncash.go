package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oratio/bchhub.go/common"
	"github.com/shopspring/decimal"
	"github.com/ziflex/lecho/v3"
	"golang.org/x/sync/semaphore"
)

const (
	sourceName = "wallet"

	maxResponseBytes = 4 << 20

	rpcMethodNotFoundCode = -32601
)

var (
	ErrMethodNotFound = errors.New("rpc method not found")

	errUnauthorized = errors.New("unauthorized")
)

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type ElectronCashOptions struct {
	URL            string
	Credentials    CredentialSource
	Timeout        time.Duration
	MaxAttempts    int
	MaxConcurrency int64
	HTTPClient     *http.Client
}

// ElectronCashClient talks JSON-RPC 2.0 to an Electron Cash daemon.
type ElectronCashClient struct {
	url         string
	httpClient  *http.Client
	credentials CredentialSource
	maxAttempts int
	sem         *semaphore.Weighted
	requestID   atomic.Uint64
	logger      *lecho.Logger

	mu      sync.RWMutex
	current *Credentials
}

func NewElectronCashClient(options ElectronCashOptions, logger *lecho.Logger) *ElectronCashClient {
	httpClient := options.HTTPClient
	if httpClient == nil {
		timeout := options.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxAttempts := options.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	maxConcurrency := options.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	credentials := options.Credentials
	if credentials == nil {
		credentials = EnvCredentials{}
	}
	return &ElectronCashClient{
		url:         options.URL,
		httpClient:  httpClient,
		credentials: credentials,
		maxAttempts: maxAttempts,
		sem:         semaphore.NewWeighted(maxConcurrency),
		logger:      logger,
	}
}

func (c *ElectronCashClient) currentCredentials(ctx context.Context) (Credentials, error) {
	c.mu.RLock()
	current := c.current
	c.mu.RUnlock()
	if current != nil {
		return *current, nil
	}
	return c.refreshCredentials(ctx)
}

func (c *ElectronCashClient) refreshCredentials(ctx context.Context) (Credentials, error) {
	creds, err := c.credentials.Credentials(ctx)
	if err != nil {
		return Credentials{}, err
	}
	c.mu.Lock()
	c.current = &creds
	c.mu.Unlock()
	return creds, nil
}

// call performs one RPC with at most maxAttempts requests. Each
// authentication failure regenerates the credentials before the next
// attempt. Every other failure is returned typed and without retry.
func (c *ElectronCashClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return common.NewTransientError(sourceName, err)
	}
	defer c.sem.Release(1)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		creds, err := c.currentCredentials(ctx)
		if err != nil {
			return &common.AuthenticationError{Source: sourceName, Err: err}
		}
		err = c.do(ctx, creds, method, params, result)
		if !errors.Is(err, errUnauthorized) {
			return err
		}
		lastErr = err
		if attempt == c.maxAttempts {
			break
		}
		c.logger.Warnf("wallet rpc %s: authentication failed (attempt %d/%d), regenerating credentials", method, attempt, c.maxAttempts)
		if _, err := c.refreshCredentials(ctx); err != nil {
			return &common.AuthenticationError{Source: sourceName, Err: err}
		}
	}
	return &common.AuthenticationError{Source: sourceName, Err: lastErr}
}

func (c *ElectronCashClient) do(ctx context.Context, creds Credentials, method string, params interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(creds.User, creds.Password)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return common.NewTransientError(sourceName, fmt.Errorf("%s: %w", method, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%s: %w (status %d)", method, errUnauthorized, resp.StatusCode)
	}

	rpcResp := rpcResponse{}
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&rpcResp)
	if resp.StatusCode >= http.StatusInternalServerError && (decodeErr != nil || rpcResp.Error == nil) {
		return common.NewTransientError(sourceName, fmt.Errorf("%s: status code %d", method, resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK && rpcResp.Error == nil {
		return fmt.Errorf("Got a bad http response status code from wallet %d for %s", resp.StatusCode, method)
	}
	if decodeErr != nil {
		return common.NewDataInconsistencyError(sourceName, "%s: decoding response: %v", method, decodeErr)
	}
	if rpcResp.Error != nil {
		return classifyRPCError(method, rpcResp.Error)
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return fmt.Errorf("%s: empty result: %w", method, common.ErrNotFound)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return common.NewDataInconsistencyError(sourceName, "%s: decoding result: %v", method, err)
	}
	return nil
}

func classifyRPCError(method string, rpcErr *RPCError) error {
	msg := strings.ToLower(rpcErr.Message)
	switch {
	case rpcErr.Code == rpcMethodNotFoundCode,
		strings.Contains(msg, "method not found"),
		strings.Contains(msg, "unknown method"):
		return fmt.Errorf("%s: %w", method, ErrMethodNotFound)
	case strings.Contains(msg, "not found"),
		strings.Contains(msg, "no such"),
		strings.Contains(msg, "unknown transaction"):
		return fmt.Errorf("%s: %v: %w", method, rpcErr, common.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", method, rpcErr)
}

type addressMethod struct {
	method string
	params []interface{}
}

// newAddressMethods lists the address generation calls of successive
// daemon versions, newest first.
var newAddressMethods = []addressMethod{
	{method: "createnewaddress"},
	{method: "getunusedaddress"},
	{method: "getnewaddress"},
	{method: "addrequest", params: []interface{}{nil, "bchhub invoice", nil, true}},
}

func (c *ElectronCashClient) NewAddress(ctx context.Context) (string, error) {
	var lastErr error
	for _, m := range newAddressMethods {
		params := m.params
		if params == nil {
			params = []interface{}{}
		}
		raw := json.RawMessage{}
		err := c.call(ctx, m.method, params, &raw)
		if errors.Is(err, ErrMethodNotFound) {
			c.logger.Debugf("wallet rpc %s unavailable, trying next address method", m.method)
			lastErr = err
			continue
		}
		if err != nil {
			return "", err
		}
		address, err := decodeAddress(raw)
		if err != nil {
			return "", common.NewDataInconsistencyError(sourceName, "%s: %v", m.method, err)
		}
		return address, nil
	}
	return "", fmt.Errorf("no address generation method available: %w", lastErr)
}

func decodeAddress(raw json.RawMessage) (string, error) {
	var address string
	if err := json.Unmarshal(raw, &address); err == nil {
		if address == "" {
			return "", errors.New("empty address")
		}
		return address, nil
	}
	request := struct {
		Address string `json:"address"`
	}{}
	if err := json.Unmarshal(raw, &request); err != nil {
		return "", err
	}
	if request.Address == "" {
		return "", errors.New("payment request has no address")
	}
	return request.Address, nil
}

type balancePayload struct {
	Confirmed   json.RawMessage `json:"confirmed"`
	Unconfirmed json.RawMessage `json:"unconfirmed"`
}

func (p balancePayload) toBalance() (*Balance, error) {
	confirmed, _, err := parseAmount(p.Confirmed)
	if err != nil {
		return nil, common.NewDataInconsistencyError(sourceName, "confirmed balance: %v", err)
	}
	unconfirmed, _, err := parseAmount(p.Unconfirmed)
	if err != nil {
		return nil, common.NewDataInconsistencyError(sourceName, "unconfirmed balance: %v", err)
	}
	if confirmed.IsNegative() {
		return nil, common.NewDataInconsistencyError(sourceName, "negative confirmed balance %s", confirmed)
	}
	return &Balance{Confirmed: confirmed, Unconfirmed: unconfirmed}, nil
}

func (c *ElectronCashClient) AddressBalance(ctx context.Context, address string) (*Balance, error) {
	payload := balancePayload{}
	if err := c.call(ctx, "getaddressbalance", []interface{}{address}, &payload); err != nil {
		return nil, err
	}
	return payload.toBalance()
}

// WalletBalance is the balance of every address the wallet holds.
func (c *ElectronCashClient) WalletBalance(ctx context.Context) (*Balance, error) {
	payload := balancePayload{}
	if err := c.call(ctx, "getbalance", nil, &payload); err != nil {
		return nil, err
	}
	return payload.toBalance()
}

func (c *ElectronCashClient) AddressHistory(ctx context.Context, address string) ([]HistoryItem, error) {
	payload := []struct {
		TxHash string `json:"tx_hash"`
		Height int64  `json:"height"`
	}{}
	if err := c.call(ctx, "getaddresshistory", []interface{}{address}, &payload); err != nil {
		return nil, err
	}
	history := make([]HistoryItem, 0, len(payload))
	for _, item := range payload {
		if item.TxHash == "" {
			continue
		}
		history = append(history, HistoryItem{TxHash: item.TxHash, Height: item.Height})
	}
	return history, nil
}

// Transaction assembles the transaction view from gettransaction, the
// verbose getrawtransaction and the raw hex, whichever the daemon offers.
func (c *ElectronCashClient) Transaction(ctx context.Context, txHash string) (*Transaction, error) {
	payload := &txPayload{}
	err := c.call(ctx, "gettransaction", []interface{}{txHash}, payload)
	switch {
	case errors.Is(err, ErrMethodNotFound):
		payload = &txPayload{}
	case err != nil:
		return nil, err
	}

	if !payload.complete() {
		verbose := &txPayload{}
		verr := c.call(ctx, "getrawtransaction", []interface{}{txHash, true}, verbose)
		switch {
		case verr == nil:
			payload.merge(verbose)
		case errors.Is(err, ErrMethodNotFound):
			// gettransaction is unavailable, the verbose lookup was the only one
			return nil, verr
		default:
			c.logger.Debugf("wallet rpc getrawtransaction %s: %v", txHash, verr)
		}
	}

	tx, err := payload.toTransaction(txHash)
	if err != nil {
		return nil, err
	}

	if outputsNeedAddresses(tx) && payload.Hex != "" {
		if err := c.fillOutputAddresses(ctx, tx, payload.Hex); err != nil {
			c.logger.Debugf("wallet rpc deserialize %s: %v", txHash, err)
		}
	}

	if payload.Confirmations == nil && payload.Height != nil && *payload.Height > 0 {
		tip, err := c.BlockHeight(ctx)
		if err != nil {
			c.logger.Debugf("wallet block height for %s: %v", txHash, err)
		} else if tip >= *payload.Height {
			tx.Confirmations = tip - *payload.Height + 1
		}
	}
	return tx, nil
}

func (c *ElectronCashClient) fillOutputAddresses(ctx context.Context, tx *Transaction, rawHex string) error {
	decoded := struct {
		Outputs []outputPayload `json:"outputs"`
	}{}
	if err := c.call(ctx, "deserialize", []interface{}{rawHex}, &decoded); err != nil {
		return err
	}
	if len(decoded.Outputs) != len(tx.Outputs) {
		return fmt.Errorf("deserialize returned %d outputs, expected %d", len(decoded.Outputs), len(tx.Outputs))
	}
	for i, out := range decoded.Outputs {
		tx.Outputs[i].Address = out.address()
	}
	return nil
}

func (c *ElectronCashClient) WalletHistory(ctx context.Context) ([]WalletTx, error) {
	raw := json.RawMessage{}
	if err := c.call(ctx, "history", nil, &raw); err != nil {
		return nil, err
	}
	entries := []walletTxPayload{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		wrapped := struct {
			Transactions []walletTxPayload `json:"transactions"`
		}{}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, common.NewDataInconsistencyError(sourceName, "history: %v", err)
		}
		entries = wrapped.Transactions
	} else if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, common.NewDataInconsistencyError(sourceName, "history: %v", err)
	}

	history := make([]WalletTx, 0, len(entries))
	for _, entry := range entries {
		wtx, err := entry.toWalletTx()
		if err != nil {
			return nil, common.NewDataInconsistencyError(sourceName, "history: %v", err)
		}
		history = append(history, wtx)
	}
	return history, nil
}

var mempoolMethods = []string{"getrawmempool", "getmempooltransactions"}

func (c *ElectronCashClient) MempoolTransactions(ctx context.Context) ([]string, error) {
	var lastErr error
	for _, method := range mempoolMethods {
		raw := json.RawMessage{}
		err := c.call(ctx, method, nil, &raw)
		if errors.Is(err, ErrMethodNotFound) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		return decodeTxList(raw)
	}
	return nil, lastErr
}

func decodeTxList(raw json.RawMessage) ([]string, error) {
	hashes := []string{}
	if err := json.Unmarshal(raw, &hashes); err == nil {
		return hashes, nil
	}
	items := []struct {
		TxHash string `json:"tx_hash"`
		TxID   string `json:"txid"`
	}{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, common.NewDataInconsistencyError(sourceName, "mempool: %v", err)
	}
	for _, item := range items {
		if item.TxHash != "" {
			hashes = append(hashes, item.TxHash)
		} else if item.TxID != "" {
			hashes = append(hashes, item.TxID)
		}
	}
	return hashes, nil
}

func (c *ElectronCashClient) BlockHeight(ctx context.Context) (int64, error) {
	info := struct {
		BlockchainHeight int64 `json:"blockchain_height"`
	}{}
	if err := c.call(ctx, "getinfo", nil, &info); err != nil {
		return 0, err
	}
	if info.BlockchainHeight <= 0 {
		return 0, common.NewDataInconsistencyError(sourceName, "getinfo reported height %d", info.BlockchainHeight)
	}
	return info.BlockchainHeight, nil
}

func (c *ElectronCashClient) Ping(ctx context.Context) error {
	return c.call(ctx, "getinfo", nil, nil)
}

// Broadcast relays an already signed transaction and returns its id.
func (c *ElectronCashClient) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	msg, _, err := decodeRawTransaction(rawTxHex)
	if err != nil {
		return "", fmt.Errorf("refusing to broadcast undecodable transaction: %w", err)
	}
	raw := json.RawMessage{}
	if err := c.call(ctx, "broadcast", []interface{}{rawTxHex}, &raw); err != nil {
		return "", err
	}
	var txid string
	if err := json.Unmarshal(raw, &txid); err == nil {
		return txid, nil
	}
	// older daemons answer [success, txid-or-message]
	pair := []json.RawMessage{}
	if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
		return "", common.NewDataInconsistencyError(sourceName, "broadcast: unexpected result %s", raw)
	}
	var ok bool
	var message string
	if err := json.Unmarshal(pair[0], &ok); err != nil {
		return "", common.NewDataInconsistencyError(sourceName, "broadcast: %v", err)
	}
	if err := json.Unmarshal(pair[1], &message); err != nil {
		return "", common.NewDataInconsistencyError(sourceName, "broadcast: %v", err)
	}
	if !ok {
		return "", fmt.Errorf("broadcast rejected: %s", message)
	}
	if message == "" {
		message = msg.TxHash().String()
	}
	return message, nil
}

// signedTx is either a bare hex string or {"hex", "complete"}.
type signedTx struct {
	Hex      string
	Complete bool
}

func decodeSignedTx(raw json.RawMessage) (signedTx, error) {
	var hexStr string
	if err := json.Unmarshal(raw, &hexStr); err == nil {
		return signedTx{Hex: hexStr, Complete: true}, nil
	}
	payload := struct {
		Hex      string `json:"hex"`
		Complete *bool  `json:"complete"`
	}{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return signedTx{}, err
	}
	if payload.Hex == "" {
		return signedTx{}, errors.New("no transaction hex")
	}
	return signedTx{Hex: payload.Hex, Complete: payload.Complete == nil || *payload.Complete}, nil
}

// PayTo has the daemon build and sign a transaction paying amount to
// address. Nothing is broadcast.
func (c *ElectronCashClient) PayTo(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	raw := json.RawMessage{}
	if err := c.call(ctx, "payto", []interface{}{address, amount.StringFixed(8)}, &raw); err != nil {
		return "", err
	}
	tx, err := decodeSignedTx(raw)
	if err != nil {
		return "", common.NewDataInconsistencyError(sourceName, "payto: %v", err)
	}
	if !tx.Complete {
		raw = json.RawMessage{}
		if err := c.call(ctx, "signtransaction", []interface{}{tx.Hex}, &raw); err != nil {
			return "", err
		}
		if tx, err = decodeSignedTx(raw); err != nil {
			return "", common.NewDataInconsistencyError(sourceName, "signtransaction: %v", err)
		}
		if !tx.Complete {
			return "", common.NewDataInconsistencyError(sourceName, "signtransaction left the transaction incomplete")
		}
	}
	if _, _, err := decodeRawTransaction(tx.Hex); err != nil {
		return "", common.NewDataInconsistencyError(sourceName, "payto returned undecodable transaction: %v", err)
	}
	return tx.Hex, nil
}
