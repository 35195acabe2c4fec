package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	relaycli "github.com/chatrelay/relay-go-utils/relay-cli"
	relayddb "github.com/chatrelay/relay-go-utils/relay-ddb"
	relaysecret "github.com/chatrelay/relay-go-utils/relay-secret"
	relayws "github.com/chatrelay/relay-go-utils/relay-ws"
	"github.com/chatrelay/relay-go-utils/relay-ws/localgw"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

var service = relaycli.NewService("relay-handler")

func main() {
	flags := append([]cli.Flag{}, relaycli.CommonFlags...)
	flags = append(flags, relaycli.PortFlag(3000))
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
	s := relayddb.Session()
	if err := relayws.LoadOverrides(s); err != nil {
		return err
	}

	registry, err := relayws.BuildRegistry(s)
	if err != nil {
		return err
	}

	if relaycli.CommonOpts.Console {
		return console(registry)
	}

	logger := relaycli.Logger(service)
	cfg, err := relayws.ConfigFromFlags(logger, relayws.BuildMetrics(service, s, nil))
	if err != nil {
		return err
	}

	h := relayws.NewHandler(cfg, registry, relayws.NewManagementSenders(s).For)
	lambda.Start(h.HandleEvent)
	return nil
}

// console serves the handler behind a local gateway:
// ws://localhost:{port}/{stage}?clientId=X
func console(registry relayws.Registry) error {
	logger := relaycli.ConsoleLogger(service, zerolog.InfoLevel)
	metrics := prometheus.NewRegistry()

	cfg, err := relayws.ConfigFromFlags(logger, relaycli.NewPromMetrics(service, metrics))
	if err != nil {
		return err
	}

	gw := localgw.New(localgw.Config{
		Logger:     logger,
		Registerer: metrics,
		Gatherer:   metrics,
	})
	h := relayws.NewHandler(cfg, registry, gw.SenderFor)

	addr := fmt.Sprintf(":%v", relaycli.CommonOpts.Port)
	logger.Info().Str("addr", addr).Str("fan_out", cfg.FanOut.String()).Msg("starting local gateway")
	return http.ListenAndServe(addr, gw.Routes(h.HandleEvent))
}
