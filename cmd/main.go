package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Vasu1712/buddychat/internal/config"
	"github.com/Vasu1712/buddychat/internal/logger"
)

func main() {
	app := &cli.App{
		Name:  "buddychat",
		Usage: "Study buddy messaging service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a config file (yaml, json or toml)",
				EnvVars: []string{"BUDDYCHAT_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			seedCommand(),
			tokenCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger shared by every command.
func setup(c *cli.Context) (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(logger.Config{Development: cfg.Log.Development, Level: cfg.Log.Level})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
