package integration_tests

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oratio/bchhub.go/db"
	"github.com/oratio/bchhub.go/db/migrations"
	"github.com/oratio/bchhub.go/db/models"
	"github.com/oratio/bchhub.go/explorer"
	"github.com/oratio/bchhub.go/lib/logging"
	"github.com/oratio/bchhub.go/lib/service"
	"github.com/oratio/bchhub.go/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/uptrace/bun/migrate"
)

const testUserID = "forum-user-7"

func testConfig() *service.Config {
	return &service.Config{
		InvoiceTTL:                3600,
		InvoiceExpiryGrace:        600,
		MinConfirmations:          1,
		AddressAllocationAttempts: 3,
		ZeroConfEnabled:           true,
		ZeroConfMinFeePercent:     50,
		MinRelayFeeRate:           1,
		ZeroConfDoubleSpendCheck:  true,
		ReconcileInterval:         1,
		ReconcileConcurrency:      4,
		ReconcileInvoiceTimeout:   10,
		WalletTransientRetries:    1,
		WalletRetryInterval:       1,
		WebhookRetries:            1,
	}
}

// BchhubTestServiceInit wires the service over a fresh in-memory sqlite
// database, the given wallet and, when set, a blockchair mock.
func BchhubTestServiceInit(ledger wallet.Client, blockchair *MockBlockchair) (*service.BchhubService, error) {
	ctx := context.Background()
	dbConn, err := db.Open(&db.Config{DatabaseUri: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	migrator := migrate.NewMigrator(dbConn, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to init migrations: %w", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	c := testConfig()
	logger := logging.Discard()
	var chain *explorer.Chain
	if blockchair != nil {
		providers, err := explorer.InitProviders(&explorer.Config{
			ExplorerProviders: explorer.BLOCKCHAIR_PROVIDER,
			ExplorerTimeout:   2,
			ExplorerRateLimit: 1000,
			ExplorerRateBurst: 100,
			BlockchairURL:     blockchair.URL,
		}, logger)
		if err != nil {
			return nil, err
		}
		chain = explorer.NewChain(providers, 0.00001, logger)
	}

	svc := &service.BchhubService{
		Config:        c,
		DB:            dbConn,
		Wallet:        ledger,
		Explorers:     chain,
		Validator:     service.NewValidator(c, ledger, logger),
		Logger:        logger,
		InvoicePubSub: service.NewPubsub(),
	}
	svc.EvidenceSources = service.DefaultEvidenceSources(ledger, chain, c.RetryPolicy(), logger)
	return svc, nil
}

// offsetClock runs ahead of the wall clock by a settable offset.
type offsetClock struct {
	mu     sync.Mutex
	offset time.Duration
}

func (c *offsetClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.offset)
}

func (c *offsetClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

type TestSuite struct {
	suite.Suite
	ledger     *MockLedger
	blockchair *MockBlockchair
	clock      *offsetClock
	svc        *service.BchhubService
}

func (suite *TestSuite) SetupTest() {
	suite.ledger = NewMockLedger()
	suite.blockchair = NewMockBlockchair(suite.ledger)
	suite.clock = &offsetClock{}
	svc, err := BchhubTestServiceInit(suite.ledger, suite.blockchair)
	suite.Require().NoError(err)
	svc.Clock = suite.clock.Now
	suite.svc = svc
}

func (suite *TestSuite) TearDownTest() {
	suite.blockchair.Close()
	suite.svc.DB.Close()
}

func (suite *TestSuite) createInvoice(amount string) *models.Invoice {
	invoice, err := suite.svc.CreateInvoice(context.Background(), decimal.RequireFromString(amount), testUserID)
	suite.Require().NoError(err)
	return invoice
}

func (suite *TestSuite) reconcile(id string) *models.Invoice {
	invoice, err := suite.svc.Reconcile(context.Background(), id)
	suite.Require().NoError(err)
	return invoice
}

func (suite *TestSuite) credits() []models.SettlementEntry {
	entries, err := suite.svc.SettlementEntriesForUser(context.Background(), testUserID)
	suite.Require().NoError(err)
	return entries
}

func (suite *TestSuite) TTL() time.Duration {
	return time.Duration(suite.svc.Config.InvoiceTTL) * time.Second
}
