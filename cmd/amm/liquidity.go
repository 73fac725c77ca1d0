package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newLiquidityCmd() *cobra.Command {
	liquidityCmd := &cobra.Command{
		Use:   "liquidity",
		Short: "Deposit into or withdraw from a pool",
	}

	addCmd := &cobra.Command{
		Use:   "add <asset-a> <asset-b>",
		Short: "Deposit both assets and mint LP shares",
		Long:  "Deposit both assets and mint LP shares. --amount-a pays the first asset argument.",
		Args:  cobra.ExactArgs(2),
		RunE:  runLiquidityAdd,
	}
	addCmd.Flags().String("account", "", "depositor account")
	addCmd.Flags().String("amount-a", "0", "amount of the first asset")
	addCmd.Flags().String("amount-b", "0", "amount of the second asset")
	_ = addCmd.MarkFlagRequired("account")

	removeCmd := &cobra.Command{
		Use:   "remove <asset-a> <asset-b>",
		Short: "Burn LP shares for a pro-rata share of the reserves",
		Args:  cobra.ExactArgs(2),
		RunE:  runLiquidityRemove,
	}
	removeCmd.Flags().String("account", "", "withdrawer account")
	removeCmd.Flags().String("lp-tokens", "0", "LP shares to burn")
	_ = removeCmd.MarkFlagRequired("account")

	liquidityCmd.AddCommand(addCmd, removeCmd)
	return liquidityCmd
}

func runLiquidityAdd(cmd *cobra.Command, args []string) error {
	assets, err := parseAddresses(args, "asset-a", "asset-b")
	if err != nil {
		return err
	}
	accountFlag, _ := cmd.Flags().GetString("account")
	account, err := parseAddress("account", accountFlag)
	if err != nil {
		return err
	}
	amountA, err := amountFlag(cmd, "amount-a")
	if err != nil {
		return err
	}
	amountB, err := amountFlag(cmd, "amount-b")
	if err != nil {
		return err
	}

	return runApp(cmd, func(ctx context.Context, a *app) error {
		receipt, err := a.svc.AddLiquidity(ctx, account, assets[0], assets[1], amountA, amountB)
		if err != nil {
			return err
		}
		return printJSON(cmd, receipt)
	})
}

func runLiquidityRemove(cmd *cobra.Command, args []string) error {
	assets, err := parseAddresses(args, "asset-a", "asset-b")
	if err != nil {
		return err
	}
	accountFlag, _ := cmd.Flags().GetString("account")
	account, err := parseAddress("account", accountFlag)
	if err != nil {
		return err
	}
	lpTokens, err := amountFlag(cmd, "lp-tokens")
	if err != nil {
		return err
	}

	return runApp(cmd, func(ctx context.Context, a *app) error {
		receipt, err := a.svc.RemoveLiquidity(ctx, account, assets[0], assets[1], lpTokens)
		if err != nil {
			return err
		}
		return printJSON(cmd, receipt)
	})
}
