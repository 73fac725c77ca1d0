package main

import (
	"context"

	"github.com/spf13/cobra"

	"constantProduct/internal/api"
)

func newAccountCmd() *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Fund and inspect ledger accounts",
	}

	creditCmd := &cobra.Command{
		Use:   "credit <account> <asset>",
		Short: "Mint an asset into an account",
		Args:  cobra.ExactArgs(2),
		RunE:  runAccountCredit,
	}
	creditCmd.Flags().String("amount", "0", "amount to mint")

	balanceCmd := &cobra.Command{
		Use:   "balance <account> <asset>",
		Short: "Show an account balance",
		Args:  cobra.ExactArgs(2),
		RunE:  runAccountBalance,
	}

	accountCmd.AddCommand(creditCmd, balanceCmd)
	return accountCmd
}

func runAccountCredit(cmd *cobra.Command, args []string) error {
	ids, err := parseAddresses(args, "account", "asset")
	if err != nil {
		return err
	}
	amount, err := amountFlag(cmd, "amount")
	if err != nil {
		return err
	}

	return runApp(cmd, func(ctx context.Context, a *app) error {
		balance, err := a.svc.Credit(ctx, ids[0], ids[1], amount)
		if err != nil {
			return err
		}
		return printJSON(cmd, api.BalanceView{Account: ids[0], Asset: ids[1], Balance: balance})
	})
}

func runAccountBalance(cmd *cobra.Command, args []string) error {
	ids, err := parseAddresses(args, "account", "asset")
	if err != nil {
		return err
	}
	return runApp(cmd, func(ctx context.Context, a *app) error {
		balance, err := a.svc.Balance(ctx, ids[0], ids[1])
		if err != nil {
			return err
		}
		return printJSON(cmd, api.BalanceView{Account: ids[0], Asset: ids[1], Balance: balance})
	})
}
