package main

import (
	"os"

	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "oxy-render"
	app.Usage = "render glTF models to images over HTTP"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "serve",
			Usage: "run the render server",
			Description: `
Start the HTTP render server. Requests are admitted one at a time and rendered
on a headless GPU device. Models are resolved from URLs or from the local model
directory configured in config.toml.`,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "config, c",
					Value: "config.toml",
					Usage: "path to the TOML configuration file",
				},
				cli.IntFlag{
					Name:  "port, p",
					Usage: "listen port, overrides the config file",
				},
				cli.StringFlag{
					Name:  "models, m",
					Usage: "local model directory, overrides the config file",
				},
				cli.BoolFlag{
					Name:  "software",
					Usage: "force the software fallback adapter",
				},
			},
			Action: Serve,
		},
		{
			Name:      "collect",
			Usage:     "collect model names from a local directory",
			ArgsUsage: "input-dir",
			Description: `
Scan a directory for .glb models and write their file names, one per line,
to models.txt for later use in config.toml.`,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "out, o",
					Value: "models.txt",
					Usage: "file to write the model names to",
				},
			},
			Action: Collect,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Critical(err.Error())
		os.Exit(1)
	}
}
