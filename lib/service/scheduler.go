package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/errgroup"
)

// ReconciliationScheduler expires stale invoices and reconciles every open
// invoice, once at start and then on every tick.
type ReconciliationScheduler struct {
	svc            *BchhubService
	lock           CycleLock
	interval       time.Duration
	invoiceTimeout time.Duration
	concurrency    int

	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewReconciliationScheduler(svc *BchhubService, lock CycleLock) *ReconciliationScheduler {
	if lock == nil {
		lock = NoopCycleLock()
	}
	return &ReconciliationScheduler{
		svc:            svc,
		lock:           lock,
		interval:       time.Duration(svc.Config.ReconcileInterval) * time.Second,
		invoiceTimeout: time.Duration(svc.Config.ReconcileInvoiceTimeout) * time.Second,
		concurrency:    svc.Config.ReconcileConcurrency,
	}
}

// Start runs the loop in the background until ctx is done or Stop is called.
func (s *ReconciliationScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.svc.Logger.Infof("Starting reconciliation scheduler, interval %s, concurrency %d", s.interval, s.concurrency)
		s.runLogged(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.svc.Logger.Info("Reconciliation scheduler stopped")
				return
			case <-ticker.C:
				s.runLogged(ctx)
			}
		}
	}()
}

// Stop stops dispatching and waits for in-flight reconciliations.
func (s *ReconciliationScheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	s.wg.Wait()
}

func (s *ReconciliationScheduler) runLogged(ctx context.Context) {
	if err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
		s.svc.Logger.Errorf("Reconciliation cycle failed: %v", err)
		sentry.CaptureException(err)
	}
}

// RunCycle performs one expiry sweep and one reconciliation pass over all
// non-terminal invoices, then forwards settled funds when enabled.
func (s *ReconciliationScheduler) RunCycle(ctx context.Context) error {
	start := time.Now()
	defer func() {
		reconcileCycleSeconds.Observe(time.Since(start).Seconds())
	}()

	acquired, err := s.lock.Acquire(ctx, s.interval+s.invoiceTimeout)
	if err != nil {
		s.svc.Logger.Warnf("Cycle lock unavailable, running anyway: %v", err)
	} else if !acquired {
		s.svc.Logger.Debug("Another instance holds the reconciliation cycle")
		return nil
	} else {
		defer s.releaseLock(ctx)
	}

	expired, err := s.svc.ExpireStaleInvoices(ctx)
	if err != nil {
		return fmt.Errorf("expiring stale invoices: %w", err)
	}
	invoices, err := s.svc.NonTerminalInvoices(ctx)
	if err != nil {
		return fmt.Errorf("listing open invoices: %w", err)
	}

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	dispatched := 0
	for _, invoice := range invoices {
		if ctx.Err() != nil {
			break
		}
		id := invoice.ID
		g.Go(func() error {
			s.reconcileOne(ctx, id)
			return nil
		})
		dispatched++
	}
	_ = g.Wait()
	s.svc.Logger.Infof("Reconciliation cycle done: %d expired, %d of %d open invoices reconciled in %s",
		expired, dispatched, len(invoices), time.Since(start))

	// payouts need the lock even when the cycle ran without it
	if s.svc.Config.ForwardPayments && acquired && ctx.Err() == nil {
		if _, err := s.svc.ForwardToPayoutWallet(ctx); err != nil {
			s.svc.Logger.Errorf("Forwarding to payout wallet failed: %v", err)
			sentry.CaptureException(err)
		}
	}
	return nil
}

// releaseLock runs on shutdown too, so it does not inherit cancellation.
func (s *ReconciliationScheduler) releaseLock(ctx context.Context) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.lock.Release(releaseCtx); err != nil {
		s.svc.Logger.Warnf("Releasing cycle lock failed: %v", err)
	}
}

// reconcileOne never lets one invoice take the batch down. It detaches from
// the cycle context so shutdown lets it finish within its own timeout.
func (s *ReconciliationScheduler) reconcileOne(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic reconciling invoice %s: %v", id, r)
			s.svc.Logger.Error(err)
			sentry.CaptureException(err)
		}
	}()
	invoiceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.invoiceTimeout)
	defer cancel()
	if _, err := s.svc.Reconcile(invoiceCtx, id); err != nil {
		s.svc.Logger.Errorf("Reconciling invoice %s failed: %v", id, err)
		sentry.CaptureException(err)
	}
}
