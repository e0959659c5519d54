package migrations

import (
	"context"

	"github.com/oratio/bchhub.go/db/models"
	"github.com/uptrace/bun"
)

/* This init reflects the latest model fields when run on a fresh db.
Later migrations that add or remove columns must use IfNotExists/IfExists.
*/
func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		if _, err := db.NewCreateTable().Model((*models.Invoice)(nil)).IfNotExists().Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.SettlementEntry)(nil)).IfNotExists().Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.Address)(nil)).IfNotExists().Exec(ctx); err != nil {
			return err
		}
		return nil
	}, nil)
}
