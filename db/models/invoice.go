package models

import (
	"context"
	"time"

	"github.com/oratio/bchhub.go/common"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Invoice : Invoice Model
type Invoice struct {
	ID             string          `json:"id" bun:",pk,type:uuid"`
	PaymentAddress string          `json:"payment_address" bun:",notnull"`
	Amount         decimal.Decimal `json:"amount" bun:"type:numeric(20,8),notnull"`
	Status         string          `json:"status" bun:",notnull,default:'pending'"`
	TxHash         string          `json:"tx_hash,omitempty" bun:",nullzero"`
	Confirmations  int64           `json:"confirmations" bun:",notnull"`
	UserID         string          `json:"user_id,omitempty" bun:",nullzero"`
	EvidenceSource string          `json:"evidence_source,omitempty" bun:",nullzero"`
	ZeroConf       bool            `json:"zero_conf" bun:",notnull"`
	CreatedAt      time.Time       `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
	ExpiresAt      time.Time       `json:"expires_at" bun:",notnull"`
	PaidAt         bun.NullTime    `json:"paid_at" bun:",nullzero"`
	UpdatedAt      bun.NullTime    `json:"updated_at"`
}

func (i *Invoice) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.UpdateQuery:
		i.UpdatedAt = bun.NullTime{Time: time.Now().UTC()}
	}
	return nil
}

func (i *Invoice) IsTerminal() bool {
	return common.IsTerminalStatus(i.Status)
}

func (i *Invoice) IsExpiredAt(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

var _ bun.BeforeAppendModelHook = (*Invoice)(nil)
