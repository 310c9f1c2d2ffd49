package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "node configuration file",
		Value:   "ledgerd.toml",
		EnvVars: []string{"LEDGERD_CONFIG"},
	}
	connectFlag = &cli.StringSliceFlag{
		Name:  "connect",
		Usage: "extra host:port to dial once at startup",
	}
	outFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "identity file to write",
		Value: "ledgerd.identity.json",
	}
	forceFlag = &cli.BoolFlag{
		Name:  "force",
		Usage: "overwrite an existing file",
	}
	kindFlag = &cli.StringFlag{
		Name:  "kind",
		Usage: "template kind: node or production",
		Value: "node",
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "ledgerd",
		Usage: "ledger peer node",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "join the peer network and serve status",
				Flags:  []cli.Flag{connectFlag},
				Action: runNode,
			},
			{
				Name:   "keygen",
				Usage:  "generate a node identity",
				Flags:  []cli.Flag{outFlag, forceFlag},
				Action: keygen,
			},
			{
				Name:  "config",
				Usage: "configuration helpers",
				Subcommands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "write a starter configuration",
						Flags:  []cli.Flag{kindFlag, forceFlag},
						Action: configInit,
					},
				},
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerd: %v\n", err)
		os.Exit(1)
	}
}
