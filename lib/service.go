package lib

import (
	"context"
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/oratio/bchhub.go/db"
	"github.com/oratio/bchhub.go/db/migrations"
	"github.com/oratio/bchhub.go/explorer"
	"github.com/oratio/bchhub.go/lib/service"
	"github.com/oratio/bchhub.go/wallet"
	"github.com/uptrace/bun/migrate"
	"github.com/ziflex/lecho/v3"
)

// LoadConfig reads an optional .env file and the service configuration.
func LoadConfig() (*service.Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		fmt.Println("Failed to load .env file")
	}
	return service.LoadConfig()
}

// InitSentry enables exception tracking when a DSN is configured.
func InitSentry(c *service.Config, logger *lecho.Logger) {
	if c.SentryDSN == "" {
		return
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              c.SentryDSN,
		EnableTracing:    c.SentryTracesSampleRate > 0,
		TracesSampleRate: c.SentryTracesSampleRate,
	}); err != nil {
		logger.Errorf("sentry init error: %v", err)
	}
}

// InitService opens and migrates the database, then wires the wallet, the
// explorer chain and the zero-conf validator into a BchhubService.
func InitService(ctx context.Context, c *service.Config, logger *lecho.Logger) (*service.BchhubService, error) {
	dbConfig, err := db.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading db config: %w", err)
	}
	dbConn, err := db.Open(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("initializing db connection: %w", err)
	}
	migrator := migrate.NewMigrator(dbConn, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing db migrator: %w", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	if !group.IsZero() {
		logger.Infof("Migrated database to %s", group)
	}

	walletConfig, err := wallet.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading wallet config: %w", err)
	}
	walletClient, err := wallet.InitWalletClient(walletConfig, logger)
	if err != nil {
		return nil, err
	}

	explorerConfig, err := explorer.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading explorer config: %w", err)
	}
	providers, err := explorer.InitProviders(explorerConfig, logger)
	if err != nil {
		return nil, err
	}
	var chain *explorer.Chain
	if len(providers) > 0 {
		chain = explorer.NewChain(providers, explorerConfig.StaleBalanceTolerance, logger)
	}
	logger.Infof("Using wallet at %s and %d explorer providers", walletConfig.WalletRPCURL, len(providers))

	svc := &service.BchhubService{
		Config:        c,
		DB:            dbConn,
		Wallet:        walletClient,
		Explorers:     chain,
		Validator:     service.NewValidator(c, walletClient, logger),
		Logger:        logger,
		InvoicePubSub: service.NewPubsub(),
	}
	svc.EvidenceSources = service.DefaultEvidenceSources(walletClient, chain, c.RetryPolicy(), logger)
	return svc, nil
}
