package main

import (
	"fmt"
	"strings"

	"github.com/desertthunder/melophiliacs/internal/formatter"
	"github.com/desertthunder/melophiliacs/internal/ui"
	"github.com/urfave/cli/v3"
)

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func sessionFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "session",
		Aliases:  []string{"s"},
		Usage:    "Session token (the app_session cookie value)",
		Required: true,
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Override server.port",
			},
		},
		Action: r.Serve,
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create configuration and storage",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write the example configuration file",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Create the sqlite store and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
		},
	}
}

func cacheCommand(r *Runner) *cli.Command {
	formats := append([]string{ui.FormatPretty}, formatter.Formats...)

	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or purge a session's cached library",
		Commands: []*cli.Command{
			{
				Name:  "inspect",
				Usage: "Show the cached library statistics of a session",
				Flags: []cli.Flag{
					configFlag(),
					sessionFlag(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   fmt.Sprintf("Output format (%s)", strings.Join(formats, ", ")),
						Value:   ui.FormatPretty,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the report to a file instead of stdout",
					},
				},
				Action: r.CacheInspect,
			},
			{
				Name:   "purge",
				Usage:  "Delete a session and its cached entries",
				Flags:  []cli.Flag{configFlag(), sessionFlag()},
				Action: r.CachePurge,
			},
		},
	}
}
