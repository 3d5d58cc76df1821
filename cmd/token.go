package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Vasu1712/buddychat/internal/auth"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue a bearer token for local testing",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "user id to issue the token for", Required: true},
			&cli.DurationFlag{Name: "ttl", Usage: "token lifetime (defaults to auth.token_ttl)"},
		},
		Action: func(c *cli.Context) error {
			cfg, _, err := setup(c)
			if err != nil {
				return err
			}
			a, err := auth.NewAuthenticator(cfg.Auth.JWTSecret)
			if err != nil {
				return err
			}
			ttl := c.Duration("ttl")
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := a.Issue(c.String("user"), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, token)
			return nil
		},
	}
}
