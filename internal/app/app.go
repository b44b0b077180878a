package app

import (
	"context"
	"io"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/techshop/internal/backend"
	"github.com/xenking/techshop/internal/console"
	"github.com/xenking/techshop/internal/domain/session"
	"github.com/xenking/techshop/internal/shop"
	"github.com/xenking/techshop/internal/tokenstore"
	"github.com/xenking/techshop/pkg/health"
)

// Run creates all dependencies, restores the previous session, loads the
// catalog and serves the console on in and out until it exits or ctx is done.
// It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config, in io.Reader, out io.Writer) error {
	lg.Info("Initializing", zap.String("api_url", cfg.APIURL))

	client, err := backend.New(backend.Options{
		BaseURL:        cfg.APIURL,
		Timeout:        cfg.RequestTimeout,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create backend client")
	}

	tokens, err := newTokenStore(cfg)
	if err != nil {
		return errors.Wrap(err, "create token store")
	}

	store, err := shop.New(client, tokens, shop.Options{
		Logger:                lg.Named("store"),
		TracerProvider:        m.TracerProvider(),
		MeterProvider:         m.MeterProvider(),
		CheckoutDelay:         cfg.Checkout.Delay,
		SubmitOrders:          cfg.Checkout.SubmitOrders,
		ResolveProfileOnLogin: cfg.Session.ResolveProfileOnLogin,
	})
	if err != nil {
		return errors.Wrap(err, "create store")
	}

	monitor := health.NewMonitor(lg.Named("health"))
	monitor.Add("backend", cfg.Health.Timeout, client.Ping)
	if cfg.Health.Interval > 0 {
		monitor.Start(ctx, cfg.Health.Interval)
		defer monitor.Stop()
	}

	if store.Restore(ctx) {
		lg.Info("Session restored", zap.Bool("resolved", store.User() != nil))
	}
	store.LoadCatalog(ctx)
	lg.Info("Catalog ready", zap.Int("products", len(store.Catalog())))

	return console.New(store, monitor, out, lg.Named("console")).Run(ctx, in)
}

func newTokenStore(cfg *Config) (session.TokenStore, error) {
	if cfg.Ephemeral {
		return tokenstore.NewMemory(), nil
	}
	path := cfg.TokenFile
	if path == "" {
		p, err := tokenstore.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return tokenstore.NewFile(path), nil
}
