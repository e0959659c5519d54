package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

const addConstraintsSQL = `
	-- invoices must ask for a positive amount
		alter table invoices
		ADD CONSTRAINT check_invoice_amount_positive
		CHECK (amount > 0);

	-- ledger lines are never zero or negative, the type carries the sign
		alter table settlement_entries
		ADD CONSTRAINT check_settlement_amount_positive
		CHECK (amount > 0);

	-- tx_hash and paid_at are set together
		alter table invoices
		ADD CONSTRAINT check_invoice_tx_hash_paid_at
		CHECK ((tx_hash IS NULL) = (paid_at IS NULL));

	-- status is one of the lifecycle states
		alter table invoices
		ADD CONSTRAINT check_invoice_status
		CHECK (status IN ('pending','balance_matched_unverified','paid','completed','expired','double_spend_detected'));
`

const dropConstraintsSQL = `
	alter table invoices drop constraint if exists check_invoice_amount_positive;
	alter table settlement_entries drop constraint if exists check_settlement_amount_positive;
	alter table invoices drop constraint if exists check_invoice_tx_hash_paid_at;
	alter table invoices drop constraint if exists check_invoice_status;
`

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		if db.Dialect().Name().String() != "pg" {
			fmt.Printf("\033[1;31m%s\033[0m", "You are not using PostgreSQL. DB level checks can not be enabled!\n")
			return nil
		}
		if _, err := db.Exec(addConstraintsSQL); err != nil {
			return err
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		if db.Dialect().Name().String() != "pg" {
			return nil
		}
		_, err := db.Exec(dropConstraintsSQL)
		return err
	})
}
