package main

import (
	"context"

	"github.com/atlanticdynamic/boss/cmd/boss/server"
	"github.com/atlanticdynamic/boss/internal/config"
	"github.com/urfave/cli/v3"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "Start the appliance",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to the JSON configuration file (default: $BOSS_CONFIG_PATH, then ./boss_config.json)",
			Aliases: []string{"c"},
		},
		&cli.StringFlag{
			Name:    "mappings",
			Usage:   "Path to the switch mappings file (default: boss_mappings.json next to the config)",
			Aliases: []string{"m"},
		},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		configPath := config.ResolvePath(cmd.String("config"))
		mappingsPath := config.ResolveMappingsPath(cmd.String("mappings"), configPath)
		return server.Run(ctx, configPath, mappingsPath)
	},
}
