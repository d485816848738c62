package main

import (
	"context"

	chandv1 "github.com/lockstep-labs/chand/api-spec/chand/v1"
	"github.com/urfave/cli/v2"
)

var (
	depositCmd = &cli.Command{
		Name:   "deposit",
		Usage:  "Credit funds received from outside to an account",
		Flags:  []cli.Flag{urlFlag, datadirFlag, ownerFlag, assetFlag, amountFlag},
		Action: deposit,
	}
	withdrawCmd = &cli.Command{
		Name:   "withdraw",
		Usage:  "Debit funds leaving the system from an account",
		Flags:  []cli.Flag{urlFlag, datadirFlag, ownerFlag, assetFlag, amountFlag},
		Action: withdraw,
	}
	balanceCmd = &cli.Command{
		Name:   "balance",
		Usage:  "Get the balances of an account, a channel escrow or a swap escrow",
		Flags:  []cli.Flag{urlFlag, datadirFlag, ownerFlag},
		Action: balance,
	}
	channelCmd = &cli.Command{
		Name:   "channel",
		Usage:  "Get the state of a channel",
		Flags:  []cli.Flag{urlFlag, datadirFlag, idFlag},
		Action: getChannel,
	}
	swapCmd = &cli.Command{
		Name:   "swap",
		Usage:  "Get a swap record",
		Flags:  []cli.Flag{urlFlag, datadirFlag, idFlag},
		Action: getSwap,
	}
)

func deposit(ctx *cli.Context) error {
	client, closeFn, err := getAdminClient(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	resp, err := client.Deposit(context.Background(), &chandv1.TransferRequest{
		Owner:  ctx.String(ownerFlagName),
		Asset:  ctx.String(assetFlagName),
		Amount: ctx.String(amountFlagName),
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func withdraw(ctx *cli.Context) error {
	client, closeFn, err := getAdminClient(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	resp, err := client.Withdraw(context.Background(), &chandv1.TransferRequest{
		Owner:  ctx.String(ownerFlagName),
		Asset:  ctx.String(assetFlagName),
		Amount: ctx.String(amountFlagName),
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func balance(ctx *cli.Context) error {
	client, closeFn, err := getAdminClient(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	resp, err := client.GetBalances(context.Background(), &chandv1.GetBalancesRequest{
		Owner: ctx.String(ownerFlagName),
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func getChannel(ctx *cli.Context) error {
	client, closeFn, err := getAdminClient(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	resp, err := client.GetChannel(context.Background(), &chandv1.GetChannelRequest{
		ChannelId: ctx.String(idFlagName),
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func getSwap(ctx *cli.Context) error {
	client, closeFn, err := getAdminClient(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	resp, err := client.GetSwap(context.Background(), &chandv1.GetSwapRequest{
		SwapId: ctx.String(idFlagName),
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}
