package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lockstep-labs/chand/internal/config"
	grpcservice "github.com/lockstep-labs/chand/internal/interface/grpc"
	"github.com/lockstep-labs/chand/internal/telemetry"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// Version will be set during build time
var Version string

func main() {
	app := cli.NewApp()
	app.Name = "chand"
	app.Version = Version
	app.Usage = "payment channel and atomic swap daemon"
	app.Flags = config.Flags
	app.Action = mainAction
	app.Commands = cli.Commands{
		depositCmd,
		withdrawCmd,
		balanceCmd,
		channelCmd,
		swapCmd,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func mainAction(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}

	log.SetLevel(log.Level(cfg.LogLevel))
	if cfg.OtelCollectorEndpoint != "" {
		log.AddHook(telemetry.NewOTelHook())
	}

	svcConfig := grpcservice.Config{
		Datadir:           cfg.Datadir,
		Port:              cfg.Port,
		NoTLS:             cfg.NoTLS,
		HeartbeatInterval: time.Duration(cfg.HeartbeatInterval) * time.Second,
	}

	svc, err := grpcservice.NewService(Version, svcConfig, cfg)
	if err != nil {
		return err
	}

	log.Debugf("chand config: %s", cfg)

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		return err
	}

	log.RegisterExitHandler(svc.Stop)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(
		sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP, os.Interrupt,
	)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)

	return nil
}
