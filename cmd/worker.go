package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/extent-cli/internal/compute"
	"github.com/sells-group/extent-cli/internal/extent"
)

var workerPort int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Serve EOO/AOO computation over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := workerPort
		if port == 0 {
			port = cfg.Worker.Port
		}
		cfg.Worker.Port = port
		if err := cfg.Validate("worker"); err != nil {
			return err
		}

		handler := compute.NewWorkerRouter(extent.NewEngine(), compute.ServerOptions{
			RatePerSec:     cfg.Worker.RatePerSec,
			Burst:          cfg.Worker.Burst,
			AllowedOrigins: cfg.Worker.AllowedOrigins,
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down worker")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting worker", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "worker listen")
		}

		return nil
	},
}

func init() {
	workerCmd.Flags().IntVar(&workerPort, "port", 0, "worker port (default from config)")
	rootCmd.AddCommand(workerCmd)
}
