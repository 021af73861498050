// Package main is the entry point for the worker binary: the process that
// consumes SEQUENCE_TOPIC, renders and sends emails, and advances lead
// sequence state.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/leadsequencer/cmd/worker/commands"
)

const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "worker",
		Usage:   "Lead sequencer worker",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Consume the sequence topic and send emails",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunWorker(ctx, version)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("worker error", slog.Any("error", err))
		os.Exit(1)
	}
}
