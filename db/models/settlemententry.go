package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementEntry : append-only ledger line. Balances are derived from these.
type SettlementEntry struct {
	ID               string          `json:"id" bun:",pk,type:uuid"`
	UserID           string          `json:"user_id" bun:",notnull"`
	Amount           decimal.Decimal `json:"amount" bun:"type:numeric(20,8),notnull"`
	Type             string          `json:"type" bun:",notnull"`
	RelatedInvoiceID string          `json:"related_invoice_id,omitempty" bun:",nullzero"`
	Description      string          `json:"description" bun:",nullzero"`
	CreatedAt        time.Time       `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
}
