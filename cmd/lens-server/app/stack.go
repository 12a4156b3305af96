package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/lens/pkg/apidocs"
	"github.com/rhuss/lens/pkg/auth"
	"github.com/rhuss/lens/pkg/auth/apikey"
	"github.com/rhuss/lens/pkg/auth/factory"
	"github.com/rhuss/lens/pkg/config"
	"github.com/rhuss/lens/pkg/settings"
	"github.com/rhuss/lens/pkg/transport"
	transporthttp "github.com/rhuss/lens/pkg/transport/http"
)

// stack is the assembled request handling of one process.
type stack struct {
	strategy auth.Strategy
	pipeline *transport.Pipeline
	docs     *apidocs.Builder
	handler  http.Handler
}

// buildStack selects the strategy for snapshot, registers it into a fresh
// pipeline and documentation builder, and mounts the routes. A non-nil src
// replaces the startup snapshot for the API key guard.
func buildStack(ctx context.Context, cfg *config.Config, logger *slog.Logger, snapshot settings.Auth, src apikey.Source) (*stack, error) {
	var opts []factory.Option
	if src != nil {
		opts = append(opts, factory.WithAPIKeySource(src))
	}

	f := factory.New(logger, opts...)
	strategy, err := f.Select(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("selecting authentication strategy: %w", err)
	}

	p := transport.NewPipeline(transport.WithBypass(transporthttp.PublicEndpoints...))
	tokens := func(o *auth.TokenValidationOptions) {
		o.ShowDetails = cfg.IsDevelopment()
	}
	if err := strategy.Configure(p, nil, tokens); err != nil {
		return nil, fmt.Errorf("configuring %s strategy: %w", strategy.Name(), err)
	}
	strategy.ApplyRequestFilters(p)

	docsSettings := cfg.DocsSettings()
	docs := apidocs.NewBuilder(docsSettings)
	strategy.DescribeForAPIDocs(docs, docsSettings)

	handler, err := transporthttp.NewHandler(transporthttp.HandlerConfig{
		Strategy:       strategy,
		Pipeline:       p,
		Docs:           docs,
		Logger:         logger,
		Warnings:       f.Warnings(),
		DisableMetrics: !cfg.Observability.Metrics.Enabled,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("authentication configured",
		"strategy", strategy.Name(),
		"stages", p.Registration().Stages,
		"requirements", p.Registration().Requirements,
	)

	return &stack{
		strategy: strategy,
		pipeline: p,
		docs:     docs,
		handler:  handler,
	}, nil
}
