// serve.go implements the HTTP server command.
package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/heatwatch/heatwatch-go/internal/api"
	"github.com/heatwatch/heatwatch-go/internal/conf"
	"github.com/heatwatch/heatwatch-go/internal/datastore"
	"github.com/heatwatch/heatwatch-go/internal/detector"
	"github.com/heatwatch/heatwatch-go/internal/errors"
	"github.com/heatwatch/heatwatch-go/internal/imagestore"
	"github.com/heatwatch/heatwatch-go/internal/inspection"
	"github.com/heatwatch/heatwatch-go/internal/logging"
	"github.com/heatwatch/heatwatch-go/internal/observability"
)

const shutdownTimeout = 10 * time.Second

func serveCommand(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(settings)
		},
	}
	cmd.Flags().StringVar(&settings.Server.Host, "host", settings.Server.Host, "Listen address")
	cmd.Flags().IntVar(&settings.Server.Port, "port", settings.Server.Port, "Listen port")
	return cmd
}

func runServer(settings *conf.Settings) error {
	log := logging.Structured()

	ds := datastore.New(settings)
	if err := ds.Open(); err != nil {
		return err
	}
	defer func() {
		if err := ds.Close(); err != nil {
			log.Error("failed to close datastore", "error", err)
		}
	}()

	images, err := imagestore.New(settings.Images.Dir)
	if err != nil {
		return err
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return errors.New(err).
			Component("cmd").
			Category(errors.CategoryConfiguration).
			Context("operation", "init_metrics").
			Build()
	}

	det := detector.NewHTTPClient(settings.Detector.URL, settings.Detector.Timeout)
	svc := inspection.New(ds, images, det, metrics, settings)

	e := echo.New()
	e.HideBanner = true
	api.New(e, svc, images, settings, metrics)

	go func() {
		log.Info("server starting", "addr", settings.Addr())
		if err := e.Start(settings.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(ctx)
}
