package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"constantProduct/internal/api"
)

func newPoolCmd() *cobra.Command {
	poolCmd := &cobra.Command{
		Use:   "pool",
		Short: "Create and inspect pools",
	}

	createCmd := &cobra.Command{
		Use:   "create <asset-a> <asset-b>",
		Short: "Create an empty pool for an asset pair",
		Args:  cobra.ExactArgs(2),
		RunE:  runPoolCreate,
	}
	createCmd.Flags().String("fee-numerator", "3", "swap fee numerator")
	createCmd.Flags().String("fee-denominator", "1000", "swap fee denominator")

	showCmd := &cobra.Command{
		Use:   "show <asset-a> <asset-b>",
		Short: "Show a pool",
		Args:  cobra.ExactArgs(2),
		RunE:  runPoolShow,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all pools",
		Args:  cobra.NoArgs,
		RunE:  runPoolList,
	}

	poolCmd.AddCommand(createCmd, showCmd, listCmd)
	return poolCmd
}

func runPoolCreate(cmd *cobra.Command, args []string) error {
	assets, err := parseAddresses(args, "asset-a", "asset-b")
	if err != nil {
		return err
	}
	feeNumerator, err := amountFlag(cmd, "fee-numerator")
	if err != nil {
		return err
	}
	feeDenominator, err := amountFlag(cmd, "fee-denominator")
	if err != nil {
		return err
	}

	return runApp(cmd, func(ctx context.Context, a *app) error {
		pool, err := a.svc.CreatePool(ctx, assets[0], assets[1], feeNumerator, feeDenominator)
		if err != nil {
			return err
		}
		a.logger.Info("pool created", zap.String("pair_key", pool.Key().Hex()))
		return printJSON(cmd, api.NewPoolView(pool))
	})
}

func runPoolShow(cmd *cobra.Command, args []string) error {
	assets, err := parseAddresses(args, "asset-a", "asset-b")
	if err != nil {
		return err
	}
	return runApp(cmd, func(ctx context.Context, a *app) error {
		pool, err := a.svc.Pool(ctx, assets[0], assets[1])
		if err != nil {
			return err
		}
		return printJSON(cmd, api.NewPoolView(pool))
	})
}

func runPoolList(cmd *cobra.Command, _ []string) error {
	return runApp(cmd, func(ctx context.Context, a *app) error {
		pools, err := a.svc.Pools(ctx)
		if err != nil {
			return err
		}
		views := make([]api.PoolView, 0, len(pools))
		for _, pool := range pools {
			views = append(views, api.NewPoolView(pool))
		}
		return printJSON(cmd, views)
	})
}
