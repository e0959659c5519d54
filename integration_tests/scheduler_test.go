package integration_tests

import (
	"context"
	"testing"
	"time"

	"github.com/oratio/bchhub.go/common"
	"github.com/oratio/bchhub.go/lib/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type SchedulerTestSuite struct {
	TestSuite
}

func (suite *SchedulerTestSuite) status(id string) string {
	invoice, err := suite.svc.GetInvoice(context.Background(), id)
	suite.Require().NoError(err)
	return invoice.Status
}

func (suite *SchedulerTestSuite) TestCycleSettlesAndExpires() {
	paid := suite.createInvoice("0.01")
	stale := suite.createInvoice("0.01")
	suite.ledger.Pay(paid.PaymentAddress, "0.01")
	suite.ledger.Mine(1)
	// past expiry but inside the grace window, so each is reconciled first
	suite.clock.Advance(suite.TTL() + time.Minute)

	scheduler := service.NewReconciliationScheduler(suite.svc, nil)
	suite.Require().NoError(scheduler.RunCycle(context.Background()))

	assert.Equal(suite.T(), common.InvoiceStatusCompleted, suite.status(paid.ID))
	assert.Equal(suite.T(), common.InvoiceStatusExpired, suite.status(stale.ID))
	assert.Len(suite.T(), suite.credits(), 1)
}

func (suite *SchedulerTestSuite) TestSweepExpiresWithoutLedger() {
	invoice := suite.createInvoice("0.01")
	suite.ledger.SetDown(true)
	suite.blockchair.SetFailing(true)
	suite.clock.Advance(suite.TTL() + time.Hour)

	scheduler := service.NewReconciliationScheduler(suite.svc, nil)
	suite.Require().NoError(scheduler.RunCycle(context.Background()))
	assert.Equal(suite.T(), common.InvoiceStatusExpired, suite.status(invoice.ID))
}

func (suite *SchedulerTestSuite) TestCycleForwardsConfirmedFunds() {
	suite.svc.Config.ForwardPayments = true
	suite.svc.Config.PayoutAddress = "bchreg:qzpayout"
	suite.svc.Config.MinPayoutAmount = decimal.RequireFromString("0.01")
	suite.svc.Config.PayoutFeeReserve = decimal.RequireFromString("0.00001")

	confirmed := suite.createInvoice("0.02")
	unconfirmed := suite.createInvoice("0.03")
	suite.ledger.Pay(confirmed.PaymentAddress, "0.02")
	suite.ledger.Mine(1)
	suite.ledger.Pay(unconfirmed.PaymentAddress, "0.03")

	scheduler := service.NewReconciliationScheduler(suite.svc, nil)
	suite.Require().NoError(scheduler.RunCycle(context.Background()))

	assert.Equal(suite.T(), common.InvoiceStatusCompleted, suite.status(confirmed.ID))
	assert.Equal(suite.T(), common.InvoiceStatusPaid, suite.status(unconfirmed.ID))
	payouts := suite.ledger.Payouts()
	suite.Require().Len(payouts, 1)
	assert.Equal(suite.T(), "bchreg:qzpayout", payouts[0].Address)
	assert.True(suite.T(), decimal.RequireFromString("0.01999").Equal(payouts[0].Amount))
	assert.NotEmpty(suite.T(), payouts[0].TxHash)

	// the remainder is below the minimum and mempool funds are not spent
	suite.Require().NoError(scheduler.RunCycle(context.Background()))
	assert.Len(suite.T(), suite.ledger.Payouts(), 1)
	assert.Equal(suite.T(), 1, suite.ledger.Calls("Broadcast"))
}

func (suite *SchedulerTestSuite) TestBackgroundLoop() {
	invoices := []string{}
	for i := 0; i < 6; i++ {
		invoice := suite.createInvoice("0.01")
		suite.ledger.Pay(invoice.PaymentAddress, "0.01")
		invoices = append(invoices, invoice.ID)
	}

	scheduler := service.NewReconciliationScheduler(suite.svc, nil)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	// first pass accepts them as zero-conf
	suite.Require().Eventually(func() bool {
		for _, id := range invoices {
			if suite.status(id) != common.InvoiceStatusPaid {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	suite.ledger.Mine(1)
	suite.Require().Eventually(func() bool {
		for _, id := range invoices {
			if suite.status(id) != common.InvoiceStatusCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	scheduler.Stop()
	assert.Len(suite.T(), suite.credits(), len(invoices))
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}
