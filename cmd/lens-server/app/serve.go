package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rhuss/lens/pkg/auth/apikey"
	"github.com/rhuss/lens/pkg/config"
	"github.com/rhuss/lens/pkg/debug"
	"github.com/rhuss/lens/pkg/settings"
	"github.com/rhuss/lens/pkg/settings/postgres"
	transporthttp "github.com/rhuss/lens/pkg/transport/http"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server. The authentication strategy is selected once at
startup. With settings_source.type "postgres" the API key guard follows
changes to the settings row without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			logger := debug.Init(debug.Options{
				Categories: cfg.Logging.Debug,
				Level:      cfg.Logging.Level,
				Format:     cfg.Logging.Format,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	snapshot := cfg.AuthSettings()
	var src apikey.Source

	if cfg.SettingsSource.Type == config.SourcePostgres {
		pg, err := openPostgresSource(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pg.Close()

		snapshot, err = pg.Current(ctx)
		if err != nil {
			return fmt.Errorf("reading auth settings: %w", err)
		}
		src = pg
		g.Go(func() error { return pg.Run(ctx) })
	}

	st, err := buildStack(ctx, cfg, logger, snapshot, src)
	if err != nil {
		return err
	}

	srv := transporthttp.NewServer(st.handler,
		transporthttp.WithAddr(cfg.Addr()),
		transporthttp.WithReadHeaderTimeout(cfg.Server.ReadHeaderTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
	)
	g.Go(func() error { return srv.Run(ctx) })

	return g.Wait()
}

// openPostgresSource connects the live settings source. An empty settings
// table is seeded from the config file so the first start behaves like a
// static deployment.
func openPostgresSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*postgres.Source, error) {
	pgCfg := cfg.SettingsSource.Postgres
	src, err := postgres.New(ctx, postgres.Config{
		DSN:             pgCfg.DSN,
		Name:            pgCfg.Name,
		MaxConns:        pgCfg.MaxConns,
		RefreshInterval: pgCfg.RefreshInterval,
		MigrateOnStart:  pgCfg.MigrateOnStart,
	}, postgres.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("opening settings source: %w", err)
	}

	if _, err := src.Current(ctx); errors.Is(err, postgres.ErrNotLoaded) {
		seed := cfg.AuthSettings()
		logger.Info("seeding auth settings from config file",
			"name", pgCfg.Name,
			"type", settings.Normalize(seed.AuthenticationType),
		)
		if err := src.Put(ctx, seed); err != nil {
			src.Close()
			return nil, fmt.Errorf("seeding auth settings: %w", err)
		}
	}

	return src, nil
}
