package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/matheuscscp/oauth2-flow-coordinator/internal/config"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/flows"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/logging"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/secrets"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator and its control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.LoadLevel(); err != nil {
				return err
			}

			conf, err := config.Load()
			if err != nil {
				return err
			}

			coordinator, err := flows.New(conf, secrets.NewMemoryStore())
			if err != nil {
				return err
			}
			defer coordinator.Close()

			srv := server.New(conf, coordinator)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logrus.WithError(err).Error("failed to shut down control API")
				}
			}()

			logrus.WithField("addr", srv.Addr).Info("control API listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			logrus.Info("coordinator stopped")
			return nil
		},
	}
}
