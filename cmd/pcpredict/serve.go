package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pervious-predictor/internal/metrics"
	"pervious-predictor/internal/ml"
	"pervious-predictor/internal/registry"
	"pervious-predictor/internal/render"
	"pervious-predictor/internal/web"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var _ ml.MetricsInterface = (*metrics.Wrapper)(nil)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the prediction forms and JSON API",
	Long: `Load the strength and permeability artifacts and serve the web forms,
the JSON prediction API, /health and /metrics until SIGINT or SIGTERM.

A variant whose model or scaler cannot be loaded is served as a disabled
form showing the configuration error.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	renderer, err := newRenderer()
	if err != nil {
		return err
	}

	reg := openRegistry(settings.RegistryPath)
	variants, err := loadVariants(ctx, &settings, reg, renderer, mw)
	if reg != nil {
		// release the file lock so registry commands work while serving
		reg.Close()
	}
	if err != nil {
		return err
	}

	srv, err := web.New(variants, web.Options{
		Addr:           settings.ListenAddr,
		RequestTimeout: settings.RequestTimeout,
		Metrics:        mw,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func newRenderer() (*render.ForcePlot, error) {
	return render.New(render.Config{
		Format:    settings.PlotFormat,
		Width:     settings.PlotWidth,
		Height:    settings.PlotHeight,
		Threshold: settings.ContributionThreshold,
	})
}

// openRegistry opens the registry if REGISTRY_PATH is configured
func openRegistry(path string) *registry.Registry {
	if path == "" {
		return nil
	}
	reg, err := registry.Open(path)
	if err != nil {
		log.Warn().Err(err).Msg("registry unavailable, serving configured artifact paths")
		return nil
	}
	return reg
}
