package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oratio/bchhub.go/common"
	"github.com/ziflex/lecho/v3"
)

// btc.com reports unknown objects with err_no 1 and null data
const btccomErrNotFound = 1

type BTCCom struct {
	baseURL string
	http    httpGetter
	logger  *lecho.Logger
}

func NewBTCCom(baseURL string, opts httpOptions, logger *lecho.Logger) *BTCCom {
	return &BTCCom{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPGetter(BTCCOM_PROVIDER, opts),
		logger:  logger,
	}
}

func (b *BTCCom) Name() string { return BTCCOM_PROVIDER }

type btccomResponse struct {
	ErrNo  int             `json:"err_no"`
	ErrMsg string          `json:"err_msg"`
	Data   json.RawMessage `json:"data"`
}

func (b *BTCCom) get(ctx context.Context, path string, out interface{}) error {
	resp := &btccomResponse{}
	if err := b.http.getJSON(ctx, b.baseURL+path, resp); err != nil {
		return err
	}
	if resp.ErrNo == btccomErrNotFound || len(resp.Data) == 0 || string(resp.Data) == "null" {
		return fmt.Errorf("btccom %s: %w", path, common.ErrNotFound)
	}
	if resp.ErrNo != 0 {
		return common.NewDataInconsistencyError(BTCCOM_PROVIDER, "err_no %d: %s", resp.ErrNo, resp.ErrMsg)
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return common.NewDataInconsistencyError(BTCCOM_PROVIDER, "decoding data: %v", err)
	}
	return nil
}

func (b *BTCCom) AddressBalance(ctx context.Context, address string) (*Balance, error) {
	addr := common.NormalizeAddress(address)
	data := struct {
		Balance             int64 `json:"balance"`
		UnconfirmedReceived int64 `json:"unconfirmed_received"`
		UnconfirmedSent     int64 `json:"unconfirmed_sent"`
	}{}
	if err := b.get(ctx, "/v3/address/"+url.PathEscape(addr), &data); err != nil {
		return nil, err
	}
	unconfirmed := data.UnconfirmedReceived - data.UnconfirmedSent
	return &Balance{
		Confirmed:   common.SatoshisToCoins(data.Balance - unconfirmed),
		Unconfirmed: common.SatoshisToCoins(unconfirmed),
	}, nil
}

func (b *BTCCom) AddressTransactions(ctx context.Context, address string) ([]AddressTx, error) {
	addr := common.NormalizeAddress(address)
	data := struct {
		List []struct {
			Hash          string `json:"hash"`
			Confirmations int64  `json:"confirmations"`
			BlockTime     int64  `json:"block_time"`
			BalanceDiff   int64  `json:"balance_diff"`
		} `json:"list"`
	}{}
	err := b.get(ctx, "/v3/address/"+url.PathEscape(addr)+"/tx", &data)
	if err != nil {
		return nil, err
	}
	txs := make([]AddressTx, 0, len(data.List))
	for _, tx := range data.List {
		if !validTxHash(tx.Hash) {
			b.logger.Warnf("btccom: skipping transaction with invalid hash %q", tx.Hash)
			continue
		}
		atx := AddressTx{
			TxHash:        tx.Hash,
			Received:      common.SatoshisToCoins(tx.BalanceDiff),
			Confirmations: tx.Confirmations,
		}
		if atx.Confirmations < 0 {
			atx.Confirmations = 0
		}
		if tx.BlockTime > 0 {
			atx.Timestamp = time.Unix(tx.BlockTime, 0).UTC()
		}
		txs = append(txs, atx)
	}
	return txs, nil
}

func (b *BTCCom) TransactionConfirmations(ctx context.Context, txHash string) (int64, error) {
	if !validTxHash(txHash) {
		return 0, common.NewDataInconsistencyError(BTCCOM_PROVIDER, "invalid tx hash %q", txHash)
	}
	data := struct {
		Hash          string `json:"hash"`
		Confirmations int64  `json:"confirmations"`
	}{}
	if err := b.get(ctx, "/v3/tx/"+txHash, &data); err != nil {
		return 0, err
	}
	if data.Hash != "" && data.Hash != txHash {
		return 0, common.NewDataInconsistencyError(BTCCOM_PROVIDER, "asked for tx %s, got %s", txHash, data.Hash)
	}
	if data.Confirmations < 0 {
		return 0, nil
	}
	return data.Confirmations, nil
}
