package models

import "time"

type Address struct {
	Address   string    `bun:",pk"`
	InvoiceID string    `bun:",nullzero"`
	Used      bool      `bun:",notnull"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}
