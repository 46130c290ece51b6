package cmd

import (
	"github.com/urfave/cli/v3"
	"github.com/vinceanalytics/beacon/internal/config"
)

const version = "v0.1.0"

func App() *cli.Command {
	return &cli.Command{
		Name:      "beacon",
		Usage:     "privacy friendly web analytics ingestion and query server",
		Copyright: "@2024-present",
		Version:   version,
		Commands:  []*cli.Command{serve()},
	}
}

func serve() *cli.Command {
	o := config.Defaults()
	return &cli.Command{
		Name:   "serve",
		Usage:  "collects events on /v1/log and answers analytics queries",
		Flags:  config.Flags(o),
		Action: run(o),
	}
}
