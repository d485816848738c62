package main

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lockstep-labs/chand/internal/config"
	"github.com/urfave/cli/v2"
)

const (
	urlFlagName     = "url"
	datadirFlagName = "datadir"
	ownerFlagName   = "owner"
	assetFlagName   = "asset"
	amountFlagName  = "amount"
	idFlagName      = "id"
)

var (
	urlFlag = &cli.StringFlag{
		Name:  urlFlagName,
		Usage: "the url where to reach chand",
		Value: fmt.Sprintf("http://127.0.0.1:%d", config.DefaultPort),
	}
	datadirFlag = &cli.StringFlag{
		Name:  datadirFlagName,
		Usage: "chand datadir from where to source the TLS cert if needed",
		Value: btcutil.AppDataDir("chand", false),
	}
	ownerFlag = &cli.StringFlag{
		Name:     ownerFlagName,
		Usage:    "hex address of the account owner",
		Required: true,
	}
	assetFlag = &cli.StringFlag{
		Name:  assetFlagName,
		Usage: "hex address of the asset, native coin if omitted",
	}
	amountFlag = &cli.StringFlag{
		Name:     amountFlagName,
		Usage:    "amount in base units",
		Required: true,
	}
	idFlag = &cli.StringFlag{
		Name:     idFlagName,
		Usage:    "hex id of the channel or swap",
		Required: true,
	}
)
