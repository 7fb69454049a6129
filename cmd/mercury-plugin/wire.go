package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gcpfirestore "cloud.google.com/go/firestore"
	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mihaimyh/gomercury/internal/config"
	"github.com/mihaimyh/gomercury/pkg/api"
	"github.com/mihaimyh/gomercury/pkg/banking"
	"github.com/mihaimyh/gomercury/pkg/mercury"
	"github.com/mihaimyh/gomercury/pkg/plugin"
	"github.com/mihaimyh/gomercury/pkg/subscription"
	"github.com/mihaimyh/gomercury/pkg/tools"
	"github.com/mihaimyh/gomercury/pkg/webhook"
	"github.com/mihaimyh/gomercury/pkg/workflow"
	"github.com/mihaimyh/gomercury/pkg/workflow/httpapi"
	"github.com/mihaimyh/gomercury/pkg/workflow/kafka"
	"github.com/mihaimyh/gomercury/pkg/workflow/rabbitmq"
	"github.com/mihaimyh/gomercury/pkg/workflow/temporal"
	"github.com/mihaimyh/gomercury/storage/firestore"
	"github.com/mihaimyh/gomercury/storage/memory"
	"github.com/mihaimyh/gomercury/storage/postgres"
	"github.com/mihaimyh/gomercury/storage/redis"
	"github.com/mihaimyh/gomercury/storage/tiered"
)

// application holds the wired components and what must be released on exit.
type application struct {
	plugin  *plugin.Plugin
	cleanup func(ctx context.Context)
	closers []func() error
}

func (a *application) close(logger mercury.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("close failed", mercury.Field{Key: "error", Value: err})
		}
	}
}

func build(ctx context.Context, cfg *config.Config, logger mercury.Logger, metrics mercury.Metrics, metricsHandler http.Handler) (*application, error) {
	app := &application{}
	p := plugin.New(plugin.Config{Name: "mercury", Logger: logger, MetricsHandler: metricsHandler})
	app.plugin = p

	newClient := tools.NewClientFactory(banking.Config{
		Environment: banking.Environment(cfg.Mercury.Environment),
		BaseURL:     cfg.Mercury.BaseURL,
		HTTPClient:  &http.Client{Timeout: cfg.Mercury.Timeout},
		Logger:      logger,
		Metrics:     metrics,
	})
	registry := tools.Default(newClient)
	for _, name := range registry.Names() {
		t, _ := registry.Get(name)
		if err := p.RegisterTool(t); err != nil {
			return nil, err
		}
	}
	p.SetCredentialValidator(newClient)

	invoker, err := buildInvoker(cfg.Invoker, logger, app)
	if err != nil {
		app.close(logger)
		return nil, err
	}

	static := webhook.StaticResolver(mercury.Binding{
		Secret: mercury.Secret(cfg.Webhook.Secret),
		Target: cfg.Webhook.Target,
	})
	var resolver webhook.Resolver = static

	if cfg.Store.Backend != config.StoreNone {
		store, err := buildStore(ctx, cfg.Store, cfg.Store.Backend, logger, app, p)
		if err != nil {
			app.close(logger)
			return nil, err
		}

		endpointBase := ""
		if cfg.Webhook.PublicURL != "" {
			endpointBase = strings.TrimRight(cfg.Webhook.PublicURL, "/") + "/endpoints/" + cfg.Webhook.Name
		}
		manager, err := subscription.NewManager(subscription.Config{
			Store:         subscription.Instrument(store, metrics),
			NewClient:     subscription.ClientFactory(newClient),
			Environment:   banking.Environment(cfg.Mercury.Environment),
			EndpointBase:  endpointBase,
			DefaultTarget: cfg.Webhook.Target,
			Logger:        logger,
			SubscriptionID: func(r *http.Request) string {
				return chi.URLParam(r, "subscription")
			},
		})
		if err != nil {
			app.close(logger)
			return nil, err
		}

		subscriptions, err := api.NewHandler(api.Config{
			Manager:           manager,
			Logger:            logger,
			GetSubscriptionID: func(r *http.Request) string { return chi.URLParam(r, "id") },
		})
		if err != nil {
			app.close(logger)
			return nil, err
		}
		p.SetSubscriptionAPI(subscriptions)

		// Deliveries without a subscription segment use the static binding.
		resolver = webhook.ResolverFunc(func(ctx context.Context, r *http.Request) (mercury.Binding, error) {
			if chi.URLParam(r, "subscription") == "" {
				return static.Resolve(ctx, r)
			}
			return manager.Resolve(ctx, r)
		})
	}

	handler, err := webhook.NewHandler(webhook.Config{
		Resolver:        resolver,
		Invoker:         invoker,
		Backend:         cfg.Invoker.Backend,
		Mode:            webhook.Mode(cfg.Webhook.Mode),
		Logger:          logger,
		Metrics:         metrics,
		MaxBodyBytes:    cfg.Webhook.MaxBodyBytes,
		DispatchTimeout: cfg.Webhook.DispatchTimeout,
		RateLimit:       cfg.Webhook.RateLimit,
		RateLimitWindow: cfg.Webhook.RateLimitWindow,
		RedactErrors:    cfg.Webhook.RedactErrors,

		TrustProxyHeaders: cfg.Webhook.TrustProxyHeaders,
	})
	if err != nil {
		app.close(logger)
		return nil, err
	}
	if err := p.RegisterEndpoint(cfg.Webhook.Name, handler); err != nil {
		app.close(logger)
		return nil, err
	}
	app.cleanup = func(ctx context.Context) {
		handler.RunLimiterCleanup(ctx, time.Minute)
	}

	return app, nil
}

func buildInvoker(cfg config.Invoker, logger mercury.Logger, app *application) (workflow.Invoker, error) {
	switch strings.ToLower(cfg.Backend) {
	case config.BackendTemporal:
		c, err := temporal.Dial(cfg.TemporalHostPort, cfg.TemporalNamespace, logger)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() error { c.Close(); return nil })
		return temporal.New(temporal.Config{
			Client:           c,
			TaskQueue:        cfg.TemporalTaskQueue,
			WorkflowIDPrefix: cfg.TemporalIDPrefix,
			Logger:           logger,
		})

	case config.BackendKafka:
		inv, err := kafka.New(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, inv.Close)
		return inv, nil

	case config.BackendRabbitMQ:
		inv, err := rabbitmq.Dial(cfg.RabbitMQURL, cfg.RabbitMQQueue, rabbitmq.Config{
			Exchange:   cfg.RabbitMQExchange,
			RoutingKey: cfg.RabbitMQRoutingKey,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, inv.Close)
		return inv, nil

	case config.BackendHTTP:
		return httpapi.New(httpapi.Config{
			BaseURL: cfg.HTTPBaseURL,
			APIKey:  cfg.HTTPAPIKey,
			Logger:  logger,
		})

	default:
		return workflow.NewLogInvoker(logger), nil
	}
}

func buildStore(ctx context.Context, cfg config.Store, backend string, logger mercury.Logger, app *application, p *plugin.Plugin) (subscription.Store, error) {
	switch backend {
	case config.StoreMemory:
		return memory.New(), nil

	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store, err := redis.New(client, redis.Config{KeyPrefix: cfg.RedisKeyPrefix, TTL: cfg.RedisTTL})
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, store.Close)
		p.AddHealthCheck("redis", store.Ping)
		return store, nil

	case config.StorePostgres:
		pgConfig := postgres.DefaultConfig()
		pgConfig.ConnectionString = cfg.PostgresDSN
		store, err := postgres.New(ctx, pgConfig)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() error { store.Close(); return nil })
		p.AddHealthCheck("postgres", store.Ping)
		return store, nil

	case config.StoreFirestore:
		client, err := gcpfirestore.NewClient(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, fmt.Errorf("create firestore client: %w", err)
		}
		store, err := firestore.New(client, firestore.Config{Collection: cfg.FirestoreCollection})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		app.closers = append(app.closers, store.Close)
		return store, nil

	case config.StoreTiered:
		hot, err := buildStore(ctx, cfg, cfg.Hot, logger, app, p)
		if err != nil {
			return nil, fmt.Errorf("hot tier: %w", err)
		}
		cold, err := buildStore(ctx, cfg, cfg.Cold, logger, app, p)
		if err != nil {
			return nil, fmt.Errorf("cold tier: %w", err)
		}
		return tiered.New(tiered.Config{
			Hot:  hot,
			Cold: cold,
			HotErrorHandler: func(err error) {
				logger.Warn("subscription cache write failed", mercury.Field{Key: "error", Value: err})
			},
		})

	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
