package integration_tests

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"

	"github.com/oratio/bchhub.go/common"
)

// MockBlockchair serves the blockchair dashboard API over the mock ledger's
// chain and counts the requests it answers.
type MockBlockchair struct {
	*httptest.Server
	ledger   *MockLedger
	requests atomic.Int32
	failing  atomic.Bool
}

func NewMockBlockchair(ledger *MockLedger) *MockBlockchair {
	mb := &MockBlockchair{ledger: ledger}
	mux := http.NewServeMux()
	mux.HandleFunc("/bitcoin-cash/dashboards/address/", mb.address)
	mux.HandleFunc("/bitcoin-cash/dashboards/transaction/", mb.transaction)
	mb.Server = httptest.NewServer(mb.guard(mux))
	return mb
}

func (mb *MockBlockchair) Requests() int {
	return int(mb.requests.Load())
}

// SetFailing makes every request answer 503.
func (mb *MockBlockchair) SetFailing(failing bool) {
	mb.failing.Store(failing)
}

func (mb *MockBlockchair) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mb.requests.Add(1)
		if mb.failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func blockID(height int64) int64 {
	if height <= 0 {
		return -1
	}
	return height
}

func (mb *MockBlockchair) address(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimPrefix(r.URL.Path, "/bitcoin-cash/dashboards/address/")
	balance, txs, height := mb.ledger.chainView(address)
	transactions := []map[string]interface{}{}
	for _, tx := range txs {
		transactions = append(transactions, map[string]interface{}{
			"block_id":       blockID(tx.height),
			"hash":           tx.hash,
			"time":           tx.timestamp.Format("2006-01-02 15:04:05"),
			"balance_change": common.CoinsToSatoshis(tx.amount),
		})
	}
	writeJSON(w, map[string]interface{}{
		"data": map[string]interface{}{
			common.NormalizeAddress(address): map[string]interface{}{
				"address":      map[string]interface{}{"balance": balance},
				"transactions": transactions,
			},
		},
		"context": map[string]interface{}{"state": height},
	})
}

func (mb *MockBlockchair) transaction(w http.ResponseWriter, r *http.Request) {
	hash := strings.TrimPrefix(r.URL.Path, "/bitcoin-cash/dashboards/transaction/")
	tx, height := mb.ledger.chainTx(hash)
	if tx == nil {
		writeJSON(w, map[string]interface{}{"data": []interface{}{}, "context": map[string]interface{}{"state": height}})
		return
	}
	writeJSON(w, map[string]interface{}{
		"data": map[string]interface{}{
			hash: map[string]interface{}{"transaction": map[string]interface{}{"block_id": blockID(tx.height)}},
		},
		"context": map[string]interface{}{"state": height},
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
