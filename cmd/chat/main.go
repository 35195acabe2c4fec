package main

import (
	"fmt"
	"log"
	"os"

	relaychat "github.com/chatrelay/relay-go-utils/relay-chat"
	relaycli "github.com/chatrelay/relay-go-utils/relay-cli"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

var service = relaycli.NewService("chat")

var opts struct {
	Verbose bool
}

func main() {
	app := relaycli.App(
		service,
		action,
		relaycli.BoolFlag("verbose", "log sent envelopes", &opts.Verbose),
	)
	app.ArgsUsage = "wss://<websocket server url> <clientId>"

	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.ShowAppHelp(c)
	}
	server, clientID := c.Args().Get(0), c.Args().Get(1)

	level := zerolog.WarnLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	logger := relaycli.ConsoleLogger(service, level)

	client, err := relaychat.Dial(c.Context, server, clientID, os.Stdout, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Print(relaychat.Usage)
	return client.Run(os.Stdin)
}
