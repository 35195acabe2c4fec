package main

import (
	"context"
	"log"
	"os"

	relaycli "github.com/chatrelay/relay-go-utils/relay-cli"
	relaycron "github.com/chatrelay/relay-go-utils/relay-cron"
	relayddb "github.com/chatrelay/relay-go-utils/relay-ddb"
	relaysecret "github.com/chatrelay/relay-go-utils/relay-secret"
	relayws "github.com/chatrelay/relay-go-utils/relay-ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

var service = relaycli.NewService("relay-sweeper")

func main() {
	flags := append([]cli.Flag{}, relaycli.CommonFlags...)
	flags = append(flags, relayddb.DDBFlags...)
	flags = append(flags, relaysecret.SecretFlags...)
	flags = append(flags, relayws.RelayFlags...)

	app := relaycli.App(service, action, flags...)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	logger := relaycli.Logger(service)

	s := relayddb.Session()
	if err := relayws.LoadOverrides(s); err != nil {
		return err
	}

	registry, err := relayws.BuildSharedRegistry(s)
	if err != nil {
		return err
	}

	metrics := relayws.BuildMetrics(service, s, prometheus.NewRegistry())
	cfg, err := relayws.ConfigFromFlags(logger, metrics)
	if err != nil {
		return err
	}

	sweeper := relayws.NewSweeper(cfg, registry, relayws.NewManagementSenders(s).For)
	handler := relaycron.NewHandler(logger, metrics, "sweep", func(ctx context.Context) error {
		_, err := sweeper.Sweep(ctx)
		return err
	})
	return handler.Start()
}
