// Package main is the entry point for the scheduler binary: the process
// that finds leads due for their next sequence step and enqueues them onto
// the transactional outbox.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/leadsequencer/cmd/scheduler/commands"
)

const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "scheduler",
		Usage:   "Lead sequencer scheduler",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the scheduler tick loop",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunScheduler(ctx, version)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("scheduler error", slog.Any("error", err))
		os.Exit(1)
	}
}
