package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"connectivity-listener/internal/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(f *rootFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the state streams over websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := newStack(f, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer st.Close()
			if listen != "" {
				st.cfg.Server.Listen = listen
			}

			srv := server.New(st.mgr, server.Options{
				SendBuffer: st.cfg.Server.SendBuffer,
				Metrics:    st.metrics.Handler(),
				Logger:     st.log,
			})
			ln, err := net.Listen("tcp", st.cfg.Server.Listen)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Serve(ln) }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			st.log.Info("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				st.log.Warn("shutdown", "err", err)
			}
			return <-errCh
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "override server.listen")
	return cmd
}
