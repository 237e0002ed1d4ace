package cmd

import (
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ccxcon/ccxcon/internal/ver"
)

var ErrWorkerNeedsDurableQueue = errors.New("a standalone worker needs the redis queue")

func NewWorkerCmd(parent *cobra.Command, version ver.Version) {
	cmd := &cobra.Command{
		Use:     "worker",
		GroupID: "service",
		Short:   "Runs the worker pool consuming sync and webhook jobs",
		Long: `Runs the worker pool consuming sync and webhook jobs. For example:

ccxcon worker --config /etc/ccxcon/ccxcon.yaml

The worker writes a heartbeat which the status endpoint of the api reports.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cmd, version, componentWorker)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.durable() {
				return ErrWorkerNeedsDurableQueue
			}

			slog.Info("ccxcon worker started", slog.Int("workers", a.cfg.Queue.Workers), slog.String("queue", a.cfg.Queue.Name))
			a.runPool(ctx)
			return nil
		},
	}

	parent.AddCommand(cmd)
}
