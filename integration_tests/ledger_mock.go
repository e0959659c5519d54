package integration_tests

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/oratio/bchhub.go/common"
	"github.com/oratio/bchhub.go/wallet"
	"github.com/shopspring/decimal"
)

const (
	mockFeeSat        = 250
	mockAddressPrefix = "bchreg:qzmock"
)

// MockPayout is a transaction the wallet broadcast out of its own funds.
type MockPayout struct {
	TxHash  string
	Address string
	Amount  decimal.Decimal
}

type mockTx struct {
	hash      string
	address   string
	amount    decimal.Decimal
	height    int64 // 0 while in the mempool
	inputs    []wallet.Input
	timestamp time.Time
	dropped   bool
}

// MockLedger is an in-memory wallet daemon and chain. The explorer mock
// serves the same chain, so taking the wallet down leaves the chain visible.
type MockLedger struct {
	mu          sync.Mutex
	height      int64
	addresses   int
	txs         map[string]*mockTx
	order       []string
	balanceOnly map[string]decimal.Decimal
	down        bool
	calls       map[string]int
	spent       decimal.Decimal
	unsigned    map[string]MockPayout
	payouts     []MockPayout
}

func NewMockLedger() *MockLedger {
	return &MockLedger{
		height:      800000,
		txs:         map[string]*mockTx{},
		balanceOnly: map[string]decimal.Decimal{},
		calls:       map[string]int{},
		unsigned:    map[string]MockPayout{},
	}
}

func randomHash() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// enter counts the call and reports whether the daemon is reachable.
func (ml *MockLedger) enter(method string) error {
	ml.calls[method]++
	if ml.down {
		return common.NewTransientError("mock-ledger", errors.New("connection refused"))
	}
	return nil
}

func (ml *MockLedger) confirmations(tx *mockTx) int64 {
	if tx.height <= 0 {
		return 0
	}
	return ml.height - tx.height + 1
}

func (ml *MockLedger) visible() []*mockTx {
	txs := []*mockTx{}
	for _, hash := range ml.order {
		if tx := ml.txs[hash]; !tx.dropped {
			txs = append(txs, tx)
		}
	}
	return txs
}

func (ml *MockLedger) NewAddress(ctx context.Context) (string, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if err := ml.enter("NewAddress"); err != nil {
		return "", err
	}
	ml.addresses++
	return fmt.Sprintf("%s%034d", mockAddressPrefix, ml.addresses), nil
}

func (ml *MockLedger) AddressBalance(ctx context.Context, address string) (*wallet.Balance, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if err := ml.enter("AddressBalance"); err != nil {
		return nil, err
	}
	balance := &wallet.Balance{Confirmed: ml.balanceOnly[address]}
	for _, tx := range ml.visible() {
		if tx.address != address {
			continue
		}
		if tx.height > 0 {
			balance.Confirmed = balance.Confirmed.Add(tx.amount)
		} else {
			balance.Unconfirmed = balance.Unconfirmed.Add(tx.amount)
		}
	}
	return balance, nil
}

func (ml *MockLedger) AddressHistory(ctx context.Context, address string) ([]wallet.HistoryItem, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if err := ml.enter("AddressHistory"); err != nil {
		return nil, err
	}
	items := []wallet.HistoryItem{}
	for _, tx := range ml.visible() {
		if tx.address == address {
			items = append(items, wallet.HistoryItem{TxHash: tx.hash, Height: tx.height})
		}
	}
	return items, nil
}

func (ml *MockLedger) Transaction(ctx context.Context, txHash string) (*wallet.Transaction, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if err := ml.enter("Transaction"); err != nil {
		return nil, err
	}
	tx, ok := ml.txs[txHash]
	if !ok || tx.dropped {
		return nil, fmt.Errorf("mock-ledger tx %s: %w", txHash, common.ErrNotFound)
	}
	return &wallet.Transaction{
		TxHash:        tx.hash,
		Confirmations: ml.confirmations(tx),
		Timestamp:     tx.timestamp,
		Amount:        tx.amount,
		Fee:           btcutil.Amount(mockFeeSat),
		FeeKnown:      true,
		Size:          mockFeeSat,
		Inputs:        append([]wallet.Input{}, tx.inputs...),
		Outputs:       []wallet.Output{{Address: tx.address, Value: tx.amount}},
	}, nil
}

func (ml *MockLedger) WalletHistory(ctx context.Context) ([]wallet.WalletTx, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if err := ml.enter("WalletHistory"); err != nil {
		return nil, err
	}
	history := []wallet.WalletTx{}
	for _, tx := range ml.visible() {
		history = append(history, wallet.WalletTx{
			TxHash:        tx.hash,
			Value:         tx.amount,
			Confirmations: ml.confirmations(tx),
			Timestamp:     tx.timestamp,
		})
	}
	return history, nil
}

func (ml *MockLedger) MempoolTransactions(ctx context.Context) ([]string, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if err := ml.enter("MempoolTransactions"); err != nil {
		return nil, err
	}
	hashes := []string{}
	for _, tx := range ml.visible() {
		if tx.height == 0 {
			hashes = append(hashes, tx.hash)
		}
	}
	return hashes, nil
}

func (ml *MockLedger) BlockHeight(ctx context.Context) (int64, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if err := ml.enter("BlockHeight"); err != nil {
		return 0, err
	}
	return ml.height, nil
}

func (ml *MockLedger) WalletBalance(ctx context.Context) (*wallet.Balance, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if err := ml.enter("WalletBalance"); err != nil {
		return nil, err
	}
	return ml.walletBalance(), nil
}

func (ml *MockLedger) walletBalance() *wallet.Balance {
	balance := &wallet.Balance{Confirmed: ml.spent.Neg()}
	for _, amount := range ml.balanceOnly {
		balance.Confirmed = balance.Confirmed.Add(amount)
	}
	for _, tx := range ml.visible() {
		if !strings.HasPrefix(tx.address, mockAddressPrefix) {
			continue
		}
		if tx.height > 0 {
			balance.Confirmed = balance.Confirmed.Add(tx.amount)
		} else {
			balance.Unconfirmed = balance.Unconfirmed.Add(tx.amount)
		}
	}
	return balance
}

// PayTo signs a transaction paying amount from confirmed funds. Nothing is
// spent until the transaction is broadcast.
func (ml *MockLedger) PayTo(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if err := ml.enter("PayTo"); err != nil {
		return "", err
	}
	fee := common.SatoshisToCoins(mockFeeSat)
	if ml.walletBalance().Confirmed.LessThan(amount.Add(fee)) {
		return "", errors.New("mock-ledger: insufficient funds")
	}
	prev, err := chainhash.NewHashFromStr(randomHash())
	if err != nil {
		return "", err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(prev, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(common.CoinsToSatoshis(amount), []byte(address)))
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	ml.unsigned[tx.TxHash().String()] = MockPayout{Address: address, Amount: amount}
	return hex.EncodeToString(buf.Bytes()), nil
}

func (ml *MockLedger) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if err := ml.enter("Broadcast"); err != nil {
		return "", err
	}
	raw, err := hex.DecodeString(rawTxHex)
	if err != nil {
		return "", err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return "", err
	}
	txid := tx.TxHash().String()
	payout, ok := ml.unsigned[txid]
	if !ok {
		return "", fmt.Errorf("mock-ledger: unknown transaction %s", txid)
	}
	delete(ml.unsigned, txid)
	payout.TxHash = txid
	ml.payouts = append(ml.payouts, payout)
	ml.spent = ml.spent.Add(payout.Amount).Add(common.SatoshisToCoins(mockFeeSat))
	return txid, nil
}

// Payouts lists the broadcast payouts in order.
func (ml *MockLedger) Payouts() []MockPayout {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return append([]MockPayout{}, ml.payouts...)
}

func (ml *MockLedger) Ping(ctx context.Context) error {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.enter("Ping")
}

// Pay puts a payment to address in the mempool and returns its hash.
func (ml *MockLedger) Pay(address string, amount string) string {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	tx := &mockTx{
		hash:      randomHash(),
		address:   address,
		amount:    decimal.RequireFromString(amount),
		inputs:    []wallet.Input{{PrevTxHash: randomHash(), PrevIndex: 0, Sequence: wire.MaxTxInSequenceNum}},
		timestamp: time.Now().UTC(),
	}
	ml.txs[tx.hash] = tx
	ml.order = append(ml.order, tx.hash)
	return tx.hash
}

// Mine adds n blocks, the first one including every mempool transaction.
func (ml *MockLedger) Mine(n int64) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	for _, tx := range ml.visible() {
		if tx.height == 0 {
			tx.height = ml.height + 1
		}
	}
	ml.height += n
}

// DoubleSpend broadcasts a conflicting transaction spending the same inputs
// as txHash to another address.
func (ml *MockLedger) DoubleSpend(txHash string) string {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	original := ml.txs[txHash]
	tx := &mockTx{
		hash:      randomHash(),
		address:   "bchreg:qzattacker",
		amount:    original.amount,
		inputs:    append([]wallet.Input{}, original.inputs...),
		timestamp: time.Now().UTC(),
	}
	ml.txs[tx.hash] = tx
	ml.order = append(ml.order, tx.hash)
	return tx.hash
}

// Drop removes a transaction from the mempool and the chain.
func (ml *MockLedger) Drop(txHash string) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.txs[txHash].dropped = true
}

// FundWithoutHistory credits address without a transaction the wallet can
// show, as happens with an address imported from another wallet.
func (ml *MockLedger) FundWithoutHistory(address string, amount string) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.balanceOnly[address] = ml.balanceOnly[address].Add(decimal.RequireFromString(amount))
}

func (ml *MockLedger) SetDown(down bool) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.down = down
}

func (ml *MockLedger) Calls(method string) int {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.calls[method]
}

// chainView is what a block explorer sees for address: confirmed balance in
// satoshis and the transactions, regardless of the wallet being reachable.
func (ml *MockLedger) chainView(address string) (int64, []*mockTx, int64) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	var balance int64
	txs := []*mockTx{}
	for _, tx := range ml.visible() {
		if !common.SameAddress(tx.address, address) {
			continue
		}
		balance += common.CoinsToSatoshis(tx.amount)
		copied := *tx
		txs = append(txs, &copied)
	}
	return balance, txs, ml.height
}

func (ml *MockLedger) chainTx(txHash string) (*mockTx, int64) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	tx, ok := ml.txs[txHash]
	if !ok || tx.dropped {
		return nil, ml.height
	}
	copied := *tx
	return &copied, ml.height
}

var _ wallet.Client = (*MockLedger)(nil)
