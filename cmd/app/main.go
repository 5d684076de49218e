package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "photoattr",
		Usage:   "Annotate photographs with JSON sidecar attributes",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Catalog root, overrides catalog.root",
				Sources: cli.EnvVars("PHOTOATTR_ROOT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API with live updates",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP protocol on stdin/stdout",
				Action: serveMCP,
			},
			{
				Name:      "scan",
				Usage:     "List images below DIR with their sidecar state",
				ArgsUsage: "[DIR]",
				Action:    scan,
			},
			{
				Name:      "show",
				Usage:     "Print the attributes of an image",
				ArgsUsage: "IMAGE",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print the full detail as JSON"},
				},
				Action: show,
			},
			{
				Name:      "set",
				Usage:     "Update attributes of an image",
				ArgsUsage: "IMAGE KEY=VALUE...",
				Action:    set,
			},
			{
				Name:      "clear",
				Usage:     "Delete the sidecar of an image",
				ArgsUsage: "IMAGE",
				Action:    clearImage,
			},
			{
				Name:      "suggest",
				Usage:     "Derive attributes from EXIF metadata",
				ArgsUsage: "IMAGE",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "apply", Usage: "Write suggestions into empty attributes"},
				},
				Action: suggest,
			},
			{
				Name:      "annotate",
				Usage:     "Step through the images below DIR and edit their attributes",
				ArgsUsage: "[DIR]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "autosave", Usage: "Save pending edits when moving on"},
				},
				Action: annotateDir,
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the attribute index from the sidecars",
				Action: reindex,
			},
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
