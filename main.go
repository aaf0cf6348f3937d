//usr/bin/env go run "$0" "$@"; exit "$?"
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/pkg/browser"
	"github.com/urfave/cli/v3"
	"github.com/xplshn/tracerr2"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Keep stdout for the startup lines.
	browser.Stdout = os.Stderr

	app := &cli.Command{
		Name:  "livedir",
		Usage: "Serve the current directory over HTTP and open it in the browser",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to an optional YAML config file"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd.String("config"), logger)
			if err != nil {
				return err
			}
			launcher, err := NewLauncher(cfg, logger, os.Stdout)
			if err != nil {
				return err
			}
			return launcher.Run(ctx)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if e, ok := err.(*tracerr.Error); ok {
			e.Print()
		} else {
			logger.Error("application failed to run", "error", err)
		}
		os.Exit(1)
	}
}
