package wallet

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/oratio/bchhub.go/common"
	"github.com/shopspring/decimal"
)

// parseAmount decodes the amount encodings seen across daemon versions:
// strings are coins ("0.05", "+0.05"), integers are satoshis and numbers
// with a fraction or exponent are coins.
func parseAmount(raw json.RawMessage) (amount decimal.Decimal, ok bool, err error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero, false, nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return decimal.Zero, false, err
		}
		str = strings.TrimPrefix(strings.TrimSpace(str), "+")
		if str == "" {
			return decimal.Zero, false, nil
		}
		amount, err = decimal.NewFromString(str)
		if err != nil {
			return decimal.Zero, false, err
		}
		return amount, true, nil
	}
	if strings.ContainsAny(s, ".eE") {
		amount, err = decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false, err
		}
		return amount, true, nil
	}
	var sat int64
	if err := json.Unmarshal(raw, &sat); err != nil {
		return decimal.Zero, false, err
	}
	return common.SatoshisToCoins(sat), true, nil
}

type inputPayload struct {
	PrevoutHash string  `json:"prevout_hash"`
	PrevoutN    uint32  `json:"prevout_n"`
	TxID        string  `json:"txid"`
	Vout        uint32  `json:"vout"`
	Sequence    *uint32 `json:"sequence"`
	Coinbase    string  `json:"coinbase"`
}

type outputPayload struct {
	Address      string          `json:"address"`
	Value        json.RawMessage `json:"value"`
	ScriptPubKey *struct {
		Address   string   `json:"address"`
		Addresses []string `json:"addresses"`
	} `json:"scriptPubKey"`
}

func (o outputPayload) address() string {
	if o.Address != "" {
		return o.Address
	}
	if o.ScriptPubKey != nil {
		if o.ScriptPubKey.Address != "" {
			return o.ScriptPubKey.Address
		}
		if len(o.ScriptPubKey.Addresses) == 1 {
			return o.ScriptPubKey.Addresses[0]
		}
	}
	return ""
}

// txPayload accepts both the wallet's own transaction view and the verbose
// node-style view (vin/vout).
type txPayload struct {
	TxID          string          `json:"txid"`
	TxHash        string          `json:"tx_hash"`
	Hex           string          `json:"hex"`
	Confirmations *int64          `json:"confirmations"`
	Height        *int64          `json:"height"`
	Timestamp     *int64          `json:"timestamp"`
	Time          *int64          `json:"time"`
	Fee           json.RawMessage `json:"fee"`
	Size          int64           `json:"size"`
	Amount        json.RawMessage `json:"amount"`
	Inputs        []inputPayload  `json:"inputs"`
	Vin           []inputPayload  `json:"vin"`
	Outputs       []outputPayload `json:"outputs"`
	Vout          []outputPayload `json:"vout"`
}

func (p *txPayload) inputs() []inputPayload {
	if len(p.Inputs) > 0 {
		return p.Inputs
	}
	return p.Vin
}

func (p *txPayload) outputs() []outputPayload {
	if len(p.Outputs) > 0 {
		return p.Outputs
	}
	return p.Vout
}

func (p *txPayload) hasConfirmations() bool {
	return p.Confirmations != nil || p.Height != nil
}

func (p *txPayload) complete() bool {
	return p.hasConfirmations() && (len(p.inputs()) > 0 || p.Hex != "") && p.Size > 0
}

// merge fills fields missing from p with the ones other carries.
func (p *txPayload) merge(other *txPayload) {
	if other == nil {
		return
	}
	if p.Hex == "" {
		p.Hex = other.Hex
	}
	if p.Confirmations == nil {
		p.Confirmations = other.Confirmations
	}
	if p.Height == nil {
		p.Height = other.Height
	}
	if p.Timestamp == nil && p.Time == nil {
		p.Timestamp, p.Time = other.Timestamp, other.Time
	}
	if len(p.Fee) == 0 || string(p.Fee) == "null" {
		p.Fee = other.Fee
	}
	if p.Size == 0 {
		p.Size = other.Size
	}
	if len(p.Amount) == 0 {
		p.Amount = other.Amount
	}
	if len(p.inputs()) == 0 {
		p.Inputs, p.Vin = other.Inputs, other.Vin
	}
	if len(p.outputs()) == 0 {
		p.Outputs, p.Vout = other.Outputs, other.Vout
	}
}

func (p *txPayload) toTransaction(txHash string) (*Transaction, error) {
	tx := &Transaction{TxHash: txHash, Size: p.Size}
	if p.Confirmations != nil && *p.Confirmations > 0 {
		tx.Confirmations = *p.Confirmations
	}
	ts := p.Timestamp
	if ts == nil {
		ts = p.Time
	}
	if ts != nil && *ts > 0 {
		tx.Timestamp = time.Unix(*ts, 0).UTC()
	}

	amount, ok, err := parseAmount(p.Amount)
	if err != nil {
		return nil, common.NewDataInconsistencyError(sourceName, "tx %s amount: %v", txHash, err)
	}
	if ok {
		tx.Amount = amount
	}
	fee, ok, err := parseAmount(p.Fee)
	if err != nil {
		return nil, common.NewDataInconsistencyError(sourceName, "tx %s fee: %v", txHash, err)
	}
	if ok {
		tx.Fee = btcutil.Amount(common.CoinsToSatoshis(fee.Abs()))
		tx.FeeKnown = true
	}

	for _, in := range p.inputs() {
		if in.Coinbase != "" {
			continue
		}
		input := Input{PrevTxHash: in.PrevoutHash, PrevIndex: in.PrevoutN, Sequence: wire.MaxTxInSequenceNum}
		if input.PrevTxHash == "" {
			input.PrevTxHash, input.PrevIndex = in.TxID, in.Vout
		}
		if in.Sequence != nil {
			input.Sequence = *in.Sequence
		}
		tx.Inputs = append(tx.Inputs, input)
	}
	for _, out := range p.outputs() {
		value, _, err := parseAmount(out.Value)
		if err != nil {
			return nil, common.NewDataInconsistencyError(sourceName, "tx %s output value: %v", txHash, err)
		}
		tx.Outputs = append(tx.Outputs, Output{Address: out.address(), Value: value})
	}

	if p.Hex != "" {
		if err := fillFromRaw(tx, p.Hex); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

func decodeRawTransaction(rawHex string) (*wire.MsgTx, int, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, 0, err
	}
	msg := &wire.MsgTx{}
	if err := msg.DeserializeNoWitness(bytes.NewReader(raw)); err != nil {
		return nil, 0, err
	}
	return msg, len(raw), nil
}

// fillFromRaw takes inputs, sequences, size and output values from the
// serialized transaction when the decoded view left them out.
func fillFromRaw(tx *Transaction, rawHex string) error {
	msg, size, err := decodeRawTransaction(rawHex)
	if err != nil {
		return common.NewDataInconsistencyError(sourceName, "tx %s hex: %v", tx.TxHash, err)
	}
	if got := msg.TxHash().String(); tx.TxHash != "" && got != tx.TxHash {
		return common.NewDataInconsistencyError(sourceName, "tx hex hashes to %s, asked for %s", got, tx.TxHash)
	}
	if tx.Size == 0 {
		tx.Size = int64(size)
	}
	if len(tx.Inputs) == 0 {
		for _, in := range msg.TxIn {
			tx.Inputs = append(tx.Inputs, Input{
				PrevTxHash: in.PreviousOutPoint.Hash.String(),
				PrevIndex:  in.PreviousOutPoint.Index,
				Sequence:   in.Sequence,
			})
		}
	}
	if len(tx.Outputs) == 0 {
		for _, out := range msg.TxOut {
			tx.Outputs = append(tx.Outputs, Output{Value: common.SatoshisToCoins(out.Value)})
		}
	}
	return nil
}

func outputsNeedAddresses(tx *Transaction) bool {
	if len(tx.Outputs) == 0 {
		return false
	}
	for _, out := range tx.Outputs {
		if out.Address != "" {
			return false
		}
	}
	return true
}

type walletTxPayload struct {
	TxID          string          `json:"txid"`
	TxHash        string          `json:"tx_hash"`
	Value         json.RawMessage `json:"value"`
	Timestamp     *int64          `json:"timestamp"`
	Confirmations int64           `json:"confirmations"`
}

func (p walletTxPayload) toWalletTx() (WalletTx, error) {
	hash := p.TxID
	if hash == "" {
		hash = p.TxHash
	}
	value, _, err := parseAmount(p.Value)
	if err != nil {
		return WalletTx{}, fmt.Errorf("history value for %s: %w", hash, err)
	}
	wtx := WalletTx{TxHash: hash, Value: value, Confirmations: p.Confirmations}
	if p.Timestamp != nil && *p.Timestamp > 0 {
		wtx.Timestamp = time.Unix(*p.Timestamp, 0).UTC()
	}
	return wtx, nil
}
