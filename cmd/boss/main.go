package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/atlanticdynamic/boss/cmd/boss/server"
	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:    "boss",
		Version: Version,
		Usage:   "Button Operated Switch System appliance",
		Commands: []*cli.Command{
			versionCmd,
			validateCmd,
			serveCmd,
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, server.ErrRuntime) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
