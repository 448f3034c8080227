// rlctl is a small command line client for the revocation list registry HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	addrFlag = &cli.StringFlag{
		Name:    "addr",
		Value:   "http://localhost:8080",
		Usage:   "base URL of the registry",
		EnvVars: []string{"RLCTL_ADDR"},
	}
	tokenFlag = &cli.StringFlag{
		Name:    "token",
		Usage:   "bearer token for mutating requests",
		EnvVars: []string{"RLCTL_TOKEN"},
	}
	setFlag = &cli.StringFlag{
		Name:  "set",
		Usage: "comma separated indices to set",
	}
	clearFlag = &cli.StringFlag{
		Name:  "clear",
		Usage: "comma separated indices to clear",
	}
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "rlctl",
		Usage: "manage revocation lists",
		Flags: []cli.Flag{addrFlag, tokenFlag},
		Commands: []*cli.Command{
			{
				Name:      "register",
				Usage:     "create a new, all-zero revocation list",
				ArgsUsage: "ID",
				Action:    registerCmd,
			},
			{
				Name:      "set",
				Usage:     "apply a batch of set and clear indices",
				ArgsUsage: "ID",
				Flags:     []cli.Flag{setFlag, clearFlag},
				Action:    setCmd,
			},
			{
				Name:      "get",
				Usage:     "report whether one index is set",
				ArgsUsage: "ID INDEX",
				Action:    getCmd,
			},
			{
				Name:      "encoded",
				Usage:     "print the hex encoded list",
				ArgsUsage: "ID",
				Action:    encodedCmd,
			},
			{
				Name:      "replace",
				Usage:     "replace the whole list from its hex encoding",
				ArgsUsage: "ID HEX",
				Action:    replaceCmd,
			},
		},
	}
}
