package main

import (
	"context"

	"github.com/spf13/cobra"

	"constantProduct/internal/api"
)

func newSwapCmd() *cobra.Command {
	swapCmd := &cobra.Command{
		Use:   "swap <asset-in> <asset-out>",
		Short: "Swap an exact input amount through a pool",
		Args:  cobra.ExactArgs(2),
		RunE:  runSwap,
	}
	swapCmd.Flags().String("account", "", "trader account")
	swapCmd.Flags().String("input", "0", "exact input amount")
	swapCmd.Flags().String("min-output", "0", "minimum acceptable output")
	_ = swapCmd.MarkFlagRequired("account")
	return swapCmd
}

func newQuoteCmd() *cobra.Command {
	quoteCmd := &cobra.Command{
		Use:   "quote <asset-in> <asset-out>",
		Short: "Price a swap without executing it",
		Args:  cobra.ExactArgs(2),
		RunE:  runQuote,
	}
	quoteCmd.Flags().String("input", "0", "exact input amount")
	return quoteCmd
}

func runSwap(cmd *cobra.Command, args []string) error {
	assets, err := parseAddresses(args, "asset-in", "asset-out")
	if err != nil {
		return err
	}
	accountFlag, _ := cmd.Flags().GetString("account")
	trader, err := parseAddress("account", accountFlag)
	if err != nil {
		return err
	}
	input, err := amountFlag(cmd, "input")
	if err != nil {
		return err
	}
	minimumOutput, err := amountFlag(cmd, "min-output")
	if err != nil {
		return err
	}

	return runApp(cmd, func(ctx context.Context, a *app) error {
		receipt, err := a.svc.Swap(ctx, trader, assets[0], assets[1], input, minimumOutput)
		if err != nil {
			return err
		}
		return printJSON(cmd, receipt)
	})
}

func runQuote(cmd *cobra.Command, args []string) error {
	assets, err := parseAddresses(args, "asset-in", "asset-out")
	if err != nil {
		return err
	}
	input, err := amountFlag(cmd, "input")
	if err != nil {
		return err
	}

	return runApp(cmd, func(ctx context.Context, a *app) error {
		pool, quote, err := a.svc.QuoteSwap(ctx, assets[0], assets[1], input)
		if err != nil {
			return err
		}
		return printJSON(cmd, api.NewQuoteView(pool, quote))
	})
}
