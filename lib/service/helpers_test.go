package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/oratio/bchhub.go/common"
	"github.com/oratio/bchhub.go/db"
	"github.com/oratio/bchhub.go/db/migrations"
	"github.com/oratio/bchhub.go/db/models"
	"github.com/oratio/bchhub.go/explorer"
	"github.com/oratio/bchhub.go/lib/logging"
	"github.com/oratio/bchhub.go/wallet"
	"github.com/oratio/bchhub.go/wallet/mock_wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

const (
	testAddress = "bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a"
	testTxHash  = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	otherTxHash = "0e3e2357e806b6cdb1f70b54c3a3a17b6714ee1f0e68bebb44a74b1efd512098"
	fundingHash = "9b0fc92260312ce44e74ef369f5c66bbb85848f2eddd5a7a1cde251e54ccfdd5"
	testUserID  = "forum-user-42"
)

func testConfig() *Config {
	return &Config{
		InvoiceTTL:                3600,
		MinConfirmations:          1,
		AddressAllocationAttempts: 3,
		ZeroConfEnabled:           true,
		ZeroConfMinFeePercent:     50,
		MinRelayFeeRate:           1,
		ZeroConfDoubleSpendCheck:  true,
		ReconcileInterval:         30,
		ReconcileConcurrency:      4,
		ReconcileInvoiceTimeout:   10,
		WalletTransientRetries:    2,
		WalletRetryInterval:       1,
	}
}

func newTestDB(t *testing.T) *bun.DB {
	ctx := context.Background()
	dbConn, err := db.Open(&db.Config{DatabaseUri: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())})
	require.NoError(t, err)
	t.Cleanup(func() { dbConn.Close() })

	migrator := migrate.NewMigrator(dbConn, migrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)
	return dbConn
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	svc    *BchhubService
	wallet *mock_wallet.MockClient
	clock  *testClock
}

// newTestEnv wires a service over sqlite and a gomock wallet. Explorer
// providers are optional.
func newTestEnv(t *testing.T, providers ...explorer.Provider) *testEnv {
	ctrl := gomock.NewController(t)
	w := mock_wallet.NewMockClient(ctrl)
	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	logger := logging.Discard()
	cfg := testConfig()

	var chain *explorer.Chain
	if len(providers) > 0 {
		chain = explorer.NewChain(providers, 0.00001, logger)
	}
	svc := &BchhubService{
		Config:        cfg,
		DB:            newTestDB(t),
		Wallet:        w,
		Explorers:     chain,
		Validator:     NewValidator(cfg, w, logger),
		Logger:        logger,
		InvoicePubSub: NewPubsub(),
		Clock:         clock.Now,
	}
	svc.EvidenceSources = DefaultEvidenceSources(w, chain, cfg.RetryPolicy(), logger)
	return &testEnv{svc: svc, wallet: w, clock: clock}
}

func coins(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// insertInvoice stores an invoice directly, bypassing address allocation.
func (e *testEnv) insertInvoice(t *testing.T, amount string, status string) *models.Invoice {
	now := e.clock.Now()
	invoice := &models.Invoice{
		ID:             uuid.NewString(),
		PaymentAddress: testAddress,
		Amount:         coins(amount),
		Status:         status,
		UserID:         testUserID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Hour),
	}
	_, err := e.svc.DB.NewInsert().Model(invoice).Exec(context.Background())
	require.NoError(t, err)
	return invoice
}

func paymentTx(hash string, amount string, confirmations int64) *wallet.Transaction {
	return &wallet.Transaction{
		TxHash:        hash,
		Confirmations: confirmations,
		Amount:        coins(amount),
		Fee:           226,
		FeeKnown:      true,
		Size:          226,
		Inputs:        []wallet.Input{{PrevTxHash: fundingHash, PrevIndex: 0, Sequence: 0xffffffff}},
		Outputs:       []wallet.Output{{Address: testAddress, Value: coins(amount)}},
	}
}

func (e *testEnv) settlementEntries(t *testing.T) []models.SettlementEntry {
	entries, err := e.svc.SettlementEntriesForUser(context.Background(), testUserID)
	require.NoError(t, err)
	return entries
}

func notFound() error {
	return fmt.Errorf("wallet: %w", common.ErrNotFound)
}

