package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/oratio/bchhub.go/lib"
	"github.com/oratio/bchhub.go/lib/logging"
	"github.com/oratio/bchhub.go/lib/service"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	amount string
	userID string
	txHash string
	reason string
)

var validate = validator.New()

// invoiceCommand wraps commands taking a single invoice id.
func invoiceCommand(use, short string, run func(ctx context.Context, svc *service.BchhubService, id string) (interface{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <invoice-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := validate.Var(id, "required,uuid4"); err != nil {
				return fmt.Errorf("invalid invoice id %q", id)
			}
			return withService(cmd, func(ctx context.Context, svc *service.BchhubService) error {
				result, err := run(ctx, svc, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
}

func newCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an invoice",
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", amount, err)
			}
			return withService(cmd, func(ctx context.Context, svc *service.BchhubService) error {
				invoice, err := svc.CreateInvoice(ctx, value, userID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), invoice)
			})
		},
	}
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "Amount in BCH (required)")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User credited once the invoice completes")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func newShowCommand() *cobra.Command {
	return invoiceCommand("show", "Show an invoice", func(ctx context.Context, svc *service.BchhubService, id string) (interface{}, error) {
		return svc.GetInvoice(ctx, id)
	})
}

func newReconcileCommand() *cobra.Command {
	return invoiceCommand("reconcile", "Reconcile one invoice against the wallet and explorers", func(ctx context.Context, svc *service.BchhubService, id string) (interface{}, error) {
		return svc.Reconcile(ctx, id)
	})
}

func newConfirmCommand() *cobra.Command {
	cmd := invoiceCommand("confirm", "Confirm an invoice waiting for review", func(ctx context.Context, svc *service.BchhubService, id string) (interface{}, error) {
		return svc.ConfirmUnverified(ctx, id, txHash)
	})
	cmd.Long = `Confirm a balance_matched_unverified invoice. With --tx-hash the invoice becomes paid and is confirmed by the reconciler; without it the invoice is completed and credited directly.`
	cmd.Flags().StringVar(&txHash, "tx-hash", "", "Transaction paying the invoice")
	return cmd
}

func newRejectCommand() *cobra.Command {
	return invoiceCommand("reject", "Reject an invoice waiting for review", func(ctx context.Context, svc *service.BchhubService, id string) (interface{}, error) {
		return svc.RejectUnverified(ctx, id)
	})
}

func newFlagDoubleSpendCommand() *cobra.Command {
	cmd := invoiceCommand("flag-double-spend", "Mark a paid or completed invoice as double spent", func(ctx context.Context, svc *service.BchhubService, id string) (interface{}, error) {
		return svc.FlagDoubleSpend(ctx, id, reason)
	})
	cmd.Flags().StringVarP(&reason, "reason", "r", "flagged by operator", "Reason recorded in the logs")
	return cmd
}

type balanceOutput struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
	Entries interface{}     `json:"entries"`
}

func newBalanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user-id>",
		Short: "Show the derived balance and ledger lines of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *service.BchhubService) error {
				entries, err := svc.SettlementEntriesForUser(ctx, args[0])
				if err != nil {
					return err
				}
				balance, err := svc.BalanceForUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), balanceOutput{UserID: args[0], Balance: balance, Entries: entries})
			})
		},
	}
}

type payoutOutput struct {
	TxHash string `json:"tx_hash,omitempty"`
}

func newForwardPayoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "forward-payout",
		Short: "Forward the confirmed wallet balance to the payout address now",
		Long:  `Run one payout outside the reconciliation cycle. Requires FORWARD_PAYMENTS and PAYOUT_WALLET; nothing is sent while the confirmed balance is below MIN_PAYOUT_AMOUNT.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *service.BchhubService) error {
				if !svc.Config.ForwardPayments {
					return fmt.Errorf("payout forwarding is disabled, set FORWARD_PAYMENTS")
				}
				txid, err := svc.ForwardToPayoutWallet(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), payoutOutput{TxHash: txid})
			})
		},
	}
}

func withService(cmd *cobra.Command, run func(ctx context.Context, svc *service.BchhubService) error) error {
	c, err := lib.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.Logger(c.LogFilePath)
	if c.LogFilePath == "" {
		// keep stdout for the command output
		logger.SetOutput(os.Stderr)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := lib.InitService(ctx, c, logger)
	if err != nil {
		return err
	}
	defer svc.DB.Close()
	return run(ctx, svc)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
