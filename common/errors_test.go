package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	transient := fmt.Errorf("lookup: %w", NewTransientError("wallet", errors.New("connection refused")))
	assert.True(t, IsTransient(transient))
	assert.False(t, IsDataInconsistency(transient))

	inconsistent := NewDataInconsistencyError("blockchair", "negative balance %d", -5)
	assert.True(t, IsDataInconsistency(inconsistent))
	assert.Equal(t, "blockchair: inconsistent data: negative balance -5", inconsistent.Error())

	auth := &AuthenticationError{Source: "wallet", Err: errors.New("401")}
	assert.True(t, IsAuthentication(fmt.Errorf("call: %w", auth)))
	assert.False(t, IsTransient(auth))

	assert.True(t, errors.Is(fmt.Errorf("tx: %w", ErrNotFound), ErrNotFound))
}

func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, IsTerminalStatus(InvoiceStatusCompleted))
	assert.True(t, IsTerminalStatus(InvoiceStatusExpired))
	assert.True(t, IsTerminalStatus(InvoiceStatusDoubleSpendDetected))
	assert.False(t, IsTerminalStatus(InvoiceStatusPaid))
	assert.False(t, IsTerminalStatus(InvoiceStatusBalanceMatchedUnverified))
}
