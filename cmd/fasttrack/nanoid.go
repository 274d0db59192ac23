package main

import (
	"encoding/base64"
	"fmt"

	"fasttrack/internal/utils"

	"github.com/gorilla/securecookie"
	"github.com/urfave/cli/v2"
)

var nanoidCommand = &cli.Command{
	Name:  "nanoid",
	Usage: "Generate kiosk session ids, or cookie keys with --keys",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"c"},
			Usage:   "Number of IDs to generate",
			Value:   1,
		},
		&cli.BoolFlag{
			Name:  "keys",
			Usage: "Print COOKIE_HASH_KEY and COOKIE_BLOCK_KEY values instead",
		},
	},
	Action: func(c *cli.Context) error {
		if c.Bool("keys") {
			fmt.Printf("COOKIE_HASH_KEY=%s\n", base64.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(64)))
			fmt.Printf("COOKIE_BLOCK_KEY=%s\n", base64.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)))
			return nil
		}

		for range c.Int("count") {
			id, err := utils.NewSessionID()
			if err != nil {
				return err
			}
			fmt.Println(id)
		}
		return nil
	},
}
