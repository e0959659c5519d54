package main

import (
	"context"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/oratio/bchhub.go/lib"
	"github.com/oratio/bchhub.go/lib/logging"
	"github.com/oratio/bchhub.go/lib/service"
)

// runs a single expiry sweep and reconciliation pass, for cron jobs and
// manual recovery after an outage
func main() {
	c, err := lib.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading environment variables: %v", err)
	}

	// Setup logging to STDOUT or a configured log file
	logger := logging.Logger(c.LogFilePath)
	lib.InitSentry(c, logger)
	defer sentry.Flush(2 * time.Second)

	ctx := context.Background()
	svc, err := lib.InitService(ctx, c, logger)
	if err != nil {
		logger.Fatalf("Error initializing service: %v", err)
	}
	defer svc.DB.Close()

	lock, err := service.InitCycleLock(c)
	if err != nil {
		logger.Fatalf("Error initializing cycle lock: %v", err)
	}
	err = service.NewReconciliationScheduler(svc, lock).RunCycle(ctx)
	if err != nil {
		sentry.CaptureException(err)
		svc.Logger.Error(err)
	}
}
