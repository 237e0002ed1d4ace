package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ccxcon/ccxcon/internal/ver"
	"github.com/ccxcon/ccxcon/server"
)

func NewServerCmd(parent *cobra.Command, version ver.Version) {
	cmd := &cobra.Command{
		Use:     "server",
		GroupID: "service",
		Short:   "Runs the ccxcon http api",
		Long: `Runs the ccxcon http api. For example:

ccxcon server --config /etc/ccxcon/ccxcon.yaml

With the memory queue the workers always run inside the server process. With the
redis queue they run in separate "ccxcon worker" processes unless --worker is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			withWorker, _ := cmd.Flags().GetBool("worker")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cmd, version, componentServer)
			if err != nil {
				return err
			}
			defer a.Close()

			signer, err := server.NewSigner(a.cfg.Auth.JWTSecret)
			if err != nil {
				return err
			}
			s := server.NewServer(version, a.cfg, a.db, a.catalog, a.redis, a.heartbeat(), signer)

			if !a.durable() && !withWorker {
				slog.Info("Memory queue configured, running workers in-process")
				withWorker = true
			}
			var workers func(ctx context.Context)
			if withWorker {
				workers = a.runPool
			}
			slog.Info("ccxcon server listening", slog.String("addr", a.cfg.ListenAddr))
			serve(ctx, s, workers)
			slog.Info("ccxcon server stopped")
			return nil
		},
	}

	parent.AddCommand(cmd)
	cmd.Flags().Bool("worker", false, "also run the worker pool in this process")
}

type service interface {
	Start()
	Close()
}

// serve runs s and the optional workers until ctx is done. It returns only after the
// workers have finished their in-flight jobs, so callers can release what they share.
func serve(ctx context.Context, s service, workers func(ctx context.Context)) {
	var eg errgroup.Group
	if workers != nil {
		eg.Go(func() error {
			workers(ctx)
			return nil
		})
	}

	go s.Start()
	<-ctx.Done()
	s.Close()
	_ = eg.Wait()
}
