package common

const (
	InvoiceStatusPending                  = "pending"
	InvoiceStatusBalanceMatchedUnverified = "balance_matched_unverified"
	InvoiceStatusPaid                     = "paid"
	InvoiceStatusCompleted                = "completed"
	InvoiceStatusExpired                  = "expired"
	InvoiceStatusDoubleSpendDetected      = "double_spend_detected"

	EvidenceSourceWalletHistory = "wallet_history"
	EvidenceSourceWalletBalance = "wallet_balance"
	EvidenceSourceExplorer      = "explorer"
	EvidenceSourceOperator      = "operator"

	EntryTypeCredit = "credit"
	EntryTypeDebit  = "debit"

	ClockSkewTolerance = 300 // seconds
)

// TerminalStatuses are never left by a reconciliation pass.
var TerminalStatuses = []string{
	InvoiceStatusCompleted,
	InvoiceStatusExpired,
	InvoiceStatusDoubleSpendDetected,
}

// NonTerminalStatuses are revisited by every scheduler cycle.
var NonTerminalStatuses = []string{
	InvoiceStatusPending,
	InvoiceStatusBalanceMatchedUnverified,
	InvoiceStatusPaid,
}

func IsTerminalStatus(status string) bool {
	for _, s := range TerminalStatuses {
		if s == status {
			return true
		}
	}
	return false
}
