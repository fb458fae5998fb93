package main

import (
	"os"

	"github.com/labstack/gommon/log"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "conversation-admin",
		Usage: "Maintenance tasks for the conversation service",
		Commands: []*cli.Command{
			BackfillSeenCommand(),
			KeygenCommand(),
			TokenCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
