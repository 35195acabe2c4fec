package main

import (
	"log"
	"os"

	relaycli "github.com/chatrelay/relay-go-utils/relay-cli"
	relayddb "github.com/chatrelay/relay-go-utils/relay-ddb"
	relayrest "github.com/chatrelay/relay-go-utils/relay-rest"
	relaysecret "github.com/chatrelay/relay-go-utils/relay-secret"
	relayws "github.com/chatrelay/relay-go-utils/relay-ws"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

var service = relaycli.NewSubpathService("relay-admin")

func main() {
	flags := append([]cli.Flag{}, relaycli.CommonFlags...)
	flags = append(flags, relaycli.PortFlag(3001))
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

	cfg, err := relayws.ConfigFromFlags(logger, relayws.BuildMetrics(service, s, prometheus.NewRegistry()))
	if err != nil {
		return err
	}
	lifecycle := relayws.NewLifecycle(cfg, registry)
	senders := relayws.NewManagementSenders(s)

	routes := relayrest.Middlewares(logger, chi.NewRouter())
	routes.Mount("/"+service.Subpath, relayws.AdminRoutes(lifecycle, registry, senders.For))
	return relayrest.Webserver(logger, routes)
}
