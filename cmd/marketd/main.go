package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tokenmarket/marketd/internal/config"
	httpservice "github.com/tokenmarket/marketd/internal/interface/http"
	"github.com/urfave/cli/v2"
)

// Version will be set during build time
var Version string

const timeout = 30 * time.Second

func mainAction(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}

	log.SetLevel(log.Level(cfg.LogLevel))
	if cfg.LogLevel >= int(log.DebugLevel) {
		log.SetReportCaller(true)
	}

	svcConfig := httpservice.Config{
		Port:              cfg.Port,
		EnablePprof:       cfg.EnablePprof,
		HeartbeatInterval: time.Duration(cfg.HeartbeatInterval) * time.Second,
	}

	svc, err := httpservice.NewService(Version, svcConfig, cfg)
	if err != nil {
		return err
	}

	log.Infof("marketd config: %s", cfg)

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

func main() {
	app := cli.NewApp()
	app.Version = Version
	app.Name = "marketd"
	app.Usage = "run or manage the asset marketplace ledger"
	app.UsageText = "Run the marketplace ledger daemon or query it with subcommands"
	app.Commands = append(
		app.Commands,
		infoCmd,
		feeCmd,
		setFeeCmd,
		mintCmd,
		buyCmd,
		listingCmd,
		latestCmd,
		listingsCmd,
		mineCmd,
		tokenCmd,
		salesCmd,
		balanceCmd,
	)
	app.Flags = config.Flags
	app.Action = mainAction

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
