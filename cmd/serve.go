package main

import (
	"context"

	"github.com/desertthunder/musiclink/internal/linking"
	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP service until the process is interrupted, purging expired correlation states in the
// background.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.prepare(ctx, cmd); err != nil {
		return err
	}

	router, err := server.New(server.Options{
		Coordinator:    r.coordinator,
		Migrator:       r.engine,
		Gateways:       r.gateways,
		Logger:         r.logger,
		Metrics:        r.metrics,
		MetricsHandler: r.metrics.Handler(),
		AuthLimit:      server.AuthLimit,
	})
	if err != nil {
		return err
	}

	housekeeper := linking.NewHousekeeper(r.coordinator, cmd.Duration("purge-interval"))
	housekeeper.Start()
	defer housekeeper.Stop()

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	providers := make([]string, 0, len(r.gateways))
	for _, p := range models.Providers() {
		if _, ok := r.gateways[p]; ok {
			providers = append(providers, string(p))
		}
	}
	r.logger.Info("starting musiclink service", "addr", addr, "providers", providers)

	return server.ListenAndServe(ctx, addr, router, r.logger)
}
