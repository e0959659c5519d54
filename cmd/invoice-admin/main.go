package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "invoice-admin",
		Short:        "Operator tools for bchhub invoices",
		Long:         `Create and inspect invoices, trigger reconciliation, resolve invoices that need operator review and forward funds to the payout wallet.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newCreateCommand(),
		newShowCommand(),
		newReconcileCommand(),
		newConfirmCommand(),
		newRejectCommand(),
		newFlagDoubleSpendCommand(),
		newBalanceCommand(),
		newForwardPayoutCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
