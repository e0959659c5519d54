package explorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oratio/bchhub.go/common"
	"github.com/ziflex/lecho/v3"
)

const blockchairTimeLayout = "2006-01-02 15:04:05"

type Blockchair struct {
	baseURL string
	apiKey  string
	http    httpGetter
	logger  *lecho.Logger
}

func NewBlockchair(baseURL, apiKey string, opts httpOptions, logger *lecho.Logger) *Blockchair {
	return &Blockchair{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    newHTTPGetter(BLOCKCHAIR_PROVIDER, opts),
		logger:  logger,
	}
}

func (b *Blockchair) Name() string { return BLOCKCHAIR_PROVIDER }

type blockchairContext struct {
	State int64 `json:"state"`
}

type blockchairTx struct {
	BlockID       int64  `json:"block_id"`
	Hash          string `json:"hash"`
	Time          string `json:"time"`
	BalanceChange int64  `json:"balance_change"`
}

type blockchairAddressDashboard struct {
	Address struct {
		Balance int64 `json:"balance"`
	} `json:"address"`
	Transactions []blockchairTx `json:"transactions"`
}

type blockchairResponse struct {
	Data    json.RawMessage   `json:"data"`
	Context blockchairContext `json:"context"`
}

// dataEntries decodes the keyed "data" object. Blockchair answers an empty
// array or null for unknown keys.
func (r *blockchairResponse) dataEntries(out interface{}) (bool, error) {
	trimmed := bytes.TrimSpace(r.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		return false, nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return false, common.NewDataInconsistencyError(BLOCKCHAIR_PROVIDER, "decoding data: %v", err)
	}
	return true, nil
}

func (b *Blockchair) endpoint(path string) string {
	u := b.baseURL + path
	if b.apiKey != "" {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "key=" + url.QueryEscape(b.apiKey)
	}
	return u
}

func (b *Blockchair) addressDashboard(ctx context.Context, address string) (*blockchairAddressDashboard, int64, error) {
	addr := common.NormalizeAddress(address)
	resp := &blockchairResponse{}
	path := fmt.Sprintf("/bitcoin-cash/dashboards/address/%s?transaction_details=true", url.PathEscape(addr))
	if err := b.http.getJSON(ctx, b.endpoint(path), resp); err != nil {
		return nil, 0, err
	}
	entries := map[string]blockchairAddressDashboard{}
	ok, err := resp.dataEntries(&entries)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, fmt.Errorf("blockchair address %s: %w", addr, common.ErrNotFound)
	}
	for key, dashboard := range entries {
		if common.SameAddress(key, addr) {
			d := dashboard
			return &d, resp.Context.State, nil
		}
	}
	return nil, 0, common.NewDataInconsistencyError(BLOCKCHAIR_PROVIDER, "response does not describe address %s", addr)
}

func (b *Blockchair) AddressBalance(ctx context.Context, address string) (*Balance, error) {
	dashboard, _, err := b.addressDashboard(ctx, address)
	if err != nil {
		return nil, err
	}
	var unconfirmed int64
	for _, tx := range dashboard.Transactions {
		if tx.BlockID < 0 {
			unconfirmed += tx.BalanceChange
		}
	}
	return &Balance{
		Confirmed:   common.SatoshisToCoins(dashboard.Address.Balance - unconfirmed),
		Unconfirmed: common.SatoshisToCoins(unconfirmed),
	}, nil
}

func (b *Blockchair) AddressTransactions(ctx context.Context, address string) ([]AddressTx, error) {
	dashboard, state, err := b.addressDashboard(ctx, address)
	if err != nil {
		return nil, err
	}
	txs := make([]AddressTx, 0, len(dashboard.Transactions))
	for _, tx := range dashboard.Transactions {
		if !validTxHash(tx.Hash) {
			b.logger.Warnf("blockchair: skipping transaction with invalid hash %q", tx.Hash)
			continue
		}
		atx := AddressTx{
			TxHash:        tx.Hash,
			Received:      common.SatoshisToCoins(tx.BalanceChange),
			Confirmations: blockchairConfirmations(tx.BlockID, state),
		}
		if tx.Time != "" {
			ts, err := time.Parse(blockchairTimeLayout, tx.Time)
			if err != nil {
				b.logger.Warnf("blockchair: unparseable time %q for %s", tx.Time, tx.Hash)
			} else {
				atx.Timestamp = ts.UTC()
			}
		}
		txs = append(txs, atx)
	}
	return txs, nil
}

func (b *Blockchair) TransactionConfirmations(ctx context.Context, txHash string) (int64, error) {
	if !validTxHash(txHash) {
		return 0, common.NewDataInconsistencyError(BLOCKCHAIR_PROVIDER, "invalid tx hash %q", txHash)
	}
	resp := &blockchairResponse{}
	path := fmt.Sprintf("/bitcoin-cash/dashboards/transaction/%s", txHash)
	if err := b.http.getJSON(ctx, b.endpoint(path), resp); err != nil {
		return 0, err
	}
	entries := map[string]struct {
		Transaction *struct {
			BlockID int64 `json:"block_id"`
		} `json:"transaction"`
	}{}
	ok, err := resp.dataEntries(&entries)
	if err != nil {
		return 0, err
	}
	entry, found := entries[txHash]
	if !ok || !found || entry.Transaction == nil {
		return 0, fmt.Errorf("blockchair tx %s: %w", txHash, common.ErrNotFound)
	}
	return blockchairConfirmations(entry.Transaction.BlockID, resp.Context.State), nil
}

// block_id is -1 for mempool transactions
func blockchairConfirmations(blockID, state int64) int64 {
	if blockID < 0 || state < blockID {
		return 0
	}
	return state - blockID + 1
}
