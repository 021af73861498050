// Package main is the entry point for the pump binary: the process that
// claims outbox rows and publishes them onto the broker.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/leadsequencer/cmd/pump/commands"
)

const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "pump",
		Usage:   "Lead sequencer outbox pump",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the outbox claim-and-publish loop",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunPump(ctx, version)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("pump error", slog.Any("error", err))
		os.Exit(1)
	}
}
