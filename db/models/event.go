package models

import "time"

// InvoiceEvent is emitted for every persisted status change.
type InvoiceEvent struct {
	Invoice    Invoice   `json:"invoice"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	OccurredAt time.Time `json:"occurred_at"`
}
