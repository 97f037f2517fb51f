// Command storyteller runs the story generation API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/talewise/storyteller/handler"
	"github.com/talewise/storyteller/migrations"
	"github.com/talewise/storyteller/modules"
	authroutes "github.com/talewise/storyteller/modules/auth"
	billingroutes "github.com/talewise/storyteller/modules/billing"
	contactroutes "github.com/talewise/storyteller/modules/contact"
	"github.com/talewise/storyteller/modules/health"
	"github.com/talewise/storyteller/modules/stories"
	"github.com/talewise/storyteller/pkg/billing"
	"github.com/talewise/storyteller/pkg/clientip"
	"github.com/talewise/storyteller/pkg/config"
	"github.com/talewise/storyteller/pkg/email"
	"github.com/talewise/storyteller/pkg/environment"
	"github.com/talewise/storyteller/pkg/file"
	"github.com/talewise/storyteller/pkg/httpserver"
	"github.com/talewise/storyteller/pkg/i18n"
	"github.com/talewise/storyteller/pkg/jwt"
	"github.com/talewise/storyteller/pkg/logger"
	"github.com/talewise/storyteller/pkg/metrics"
	"github.com/talewise/storyteller/pkg/mongo"
	"github.com/talewise/storyteller/pkg/pg"
	"github.com/talewise/storyteller/pkg/ratelimiter"
	"github.com/talewise/storyteller/pkg/redis"
	"github.com/talewise/storyteller/pkg/requestid"
	"github.com/talewise/storyteller/svc/auth"
	"github.com/talewise/storyteller/svc/contact"
	"github.com/talewise/storyteller/svc/story"
	"github.com/talewise/storyteller/svc/subscription"
	"github.com/talewise/storyteller/svc/user"
)

const serviceName = "storyteller"

type AppConfig struct {
	Env             string   `env:"APP_ENV" envDefault:"development"`
	LogLevel        string   `env:"LOG_LEVEL"`
	StoreDriver     string   `env:"STORE_DRIVER" envDefault:"memory"`
	BillingProvider string   `env:"BILLING_PROVIDER" envDefault:"stripe"`
	DedupBackend    string   `env:"DEDUP_BACKEND" envDefault:"memory"`
	ArchiveBackend  string   `env:"ARCHIVE_BACKEND"`
	ArchiveDir      string   `env:"ARCHIVE_DIR" envDefault:"./tmp/stories"`
	GoogleEnabled   bool     `env:"GOOGLE_OAUTH_ENABLED" envDefault:"false"`
	AllowedOrigins  []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("storyteller stopped", logger.Error(err))
		os.Exit(1)
	}
}

// backends are the connections the stores were built on.
type backends struct {
	users   user.Store
	stories story.Store
	checks  []httpserver.Check
	closers []func(context.Context) error
}

func run(ctx context.Context) error {
	var cfg AppConfig
	config.MustLoad(&cfg)
	env := environment.Parse(cfg.Env)

	opts := []logger.Option{
		logger.WithEnvironment(env, serviceName),
		logger.WithContextExtractors(requestid.LoggerExtractor(), environment.LoggerExtractor()),
	}
	if cfg.LogLevel != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			return fmt.Errorf("parse LOG_LEVEL: %w", err)
		}
		opts = append(opts, logger.WithLevel(lvl))
	}
	log := logger.New(opts...)
	slog.SetDefault(log)

	tr, err := i18n.Default()
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}
	m := metrics.New()

	be, err := openBackends(ctx, cfg.StoreDriver, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range be.closers {
			if err := c(context.WithoutCancel(ctx)); err != nil {
				log.Warn("failed to close backend", logger.Error(err))
			}
		}
	}()

	provider, err := newBillingProvider(cfg.BillingProvider)
	if err != nil {
		return err
	}
	dedup, err := newDeduplicator(ctx, cfg.DedupBackend, &be)
	if err != nil {
		return err
	}

	var jwtCfg jwt.Config
	config.MustLoad(&jwtCfg)
	tokens, err := jwt.New(jwtCfg)
	if err != nil {
		return fmt.Errorf("jwt: %w", err)
	}

	var geminiCfg story.GeminiConfig
	config.MustLoad(&geminiCfg)
	generator, err := story.NewGeminiGenerator(ctx, geminiCfg)
	if err != nil {
		return fmt.Errorf("gemini: %w", err)
	}

	storyOpts := []story.Option{story.WithLogger(log), story.WithMetrics(m)}
	archive, err := newArchive(ctx, cfg)
	if err != nil {
		return err
	}
	if archive != nil {
		storyOpts = append(storyOpts, story.WithArchive(archive))
	}
	storySvc := story.NewService(be.users, be.stories, generator, storyOpts...)

	var subCfg subscription.Config
	config.MustLoad(&subCfg)
	subs := subscription.NewService(provider, be.users, subCfg, subscription.WithLogger(log))
	reconciler := subscription.NewReconciler(provider, be.users,
		subscription.WithDeduplicator(dedup),
		subscription.WithReconcilerLogger(log),
		subscription.WithReconcilerMetrics(m),
	)

	sessions := auth.NewService(be.users, tokens, auth.WithLogger(log))
	requireUser := auth.RequireUser(tokens, be.users)

	contactSvc, err := newContact(env, log)
	if err != nil {
		return err
	}

	var limiterCfg ratelimiter.Config
	config.MustLoad(&limiterCfg)
	limiter, err := ratelimiter.New(limiterCfg)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	eh := handler.NewErrorHandler(log, tr)

	var authCfg authroutes.Config
	config.MustLoad(&authCfg)
	authOpts := []authroutes.Option{authroutes.WithLogger(log)}
	if cfg.GoogleEnabled {
		oauth, err := newGoogle(jwtCfg, sessions, log)
		if err != nil {
			return err
		}
		authOpts = append(authOpts, authroutes.WithGoogle(oauth))
	}

	billingMod := billingroutes.New(subs, reconciler, requireUser, tr, eh, billingroutes.WithLogger(log))
	api := modules.Router(modules.RouterOptions{
		Auth:         authroutes.New(sessions, requireUser, tr, eh, authCfg, authOpts...),
		Stories:      stories.New(storySvc, tr, eh, stories.WithRateLimiter(limiter)),
		Checkout:     billingMod,
		Subscription: billingMod.Subscription(),
		Contact:      contactroutes.New(contactSvc, tr, eh),
		Health:       health.New(log, be.checks...),
		Webhook:      billingMod.Webhook(),
		Metrics:      m.Handler(),
	})

	root := chi.NewRouter()
	root.Use(
		chimw.Recoverer,
		requestid.Middleware,
		clientip.Middleware,
		environment.Middleware(env),
		i18n.Middleware(tr),
		m.Middleware,
	)
	root.Mount("/", api)

	httpCfg := httpserver.Config{}
	config.MustLoad(&httpCfg)
	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, corsHandler(cfg.AllowedOrigins).Handler(root))
	})
	g.Go(func() error {
		select {
		case <-srv.Ready():
			log.InfoContext(gctx, "storyteller started",
				slog.String("addr", srv.Addr()),
				slog.String("store", cfg.StoreDriver),
				logger.Provider(provider.Name()))
		case <-gctx.Done():
		}
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("storyteller stopped")
	return nil
}

func corsHandler(origins []string) *cors.Cors {
	allowed := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
}

func openBackends(ctx context.Context, driver string, log *slog.Logger) (backends, error) {
	switch driver {
	case "memory", "":
		return backends{users: user.NewMemoryStore(), stories: story.NewMemoryStore()}, nil

	case "postgres":
		var pgCfg pg.Config
		config.MustLoad(&pgCfg)
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return backends{}, err
		}
		if err := pg.Migrate(ctx, pool, migrations.FS, pgCfg, log); err != nil {
			pool.Close()
			return backends{}, err
		}
		return backends{
			users:   user.NewPostgresStore(pool),
			stories: story.NewPostgresStore(pool),
			checks:  []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}},
			closers: []func(context.Context) error{func(context.Context) error { pool.Close(); return nil }},
		}, nil

	case "mongo":
		var mongoCfg mongo.Config
		config.MustLoad(&mongoCfg)
		db, err := mongo.ConnectDatabase(ctx, mongoCfg)
		if err != nil {
			return backends{}, err
		}
		if err := errors.Join(user.EnsureIndexes(ctx, db), story.EnsureIndexes(ctx, db)); err != nil {
			_ = db.Client().Disconnect(ctx)
			return backends{}, fmt.Errorf("mongo indexes: %w", err)
		}
		return backends{
			users:   user.NewMongoStore(db),
			stories: story.NewMongoStore(db),
			checks:  []httpserver.Check{{Name: "mongo", Fn: mongo.Healthcheck(db.Client())}},
			closers: []func(context.Context) error{db.Client().Disconnect},
		}, nil
	}
	return backends{}, fmt.Errorf("unknown STORE_DRIVER %q", driver)
}

func newBillingProvider(name string) (billing.Provider, error) {
	switch name {
	case "stripe", "":
		var c billing.StripeConfig
		config.MustLoad(&c)
		return billing.NewStripeProvider(c)
	case "paddle":
		var c billing.PaddleConfig
		config.MustLoad(&c)
		return billing.NewPaddleProvider(c)
	}
	return nil, fmt.Errorf("unknown BILLING_PROVIDER %q", name)
}

func newDeduplicator(ctx context.Context, backend string, be *backends) (subscription.Deduplicator, error) {
	switch backend {
	case "memory", "":
		return subscription.NewMemoryDeduplicator(subscription.DefaultDedupTTL), nil
	case "redis":
		var c redis.Config
		config.MustLoad(&c)
		client, err := redis.Connect(ctx, c)
		if err != nil {
			return nil, err
		}
		be.checks = append(be.checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
		be.closers = append(be.closers, func(context.Context) error { return client.Close() })
		return subscription.NewRedisDeduplicator(client, "", subscription.DefaultDedupTTL), nil
	}
	return nil, fmt.Errorf("unknown DEDUP_BACKEND %q", backend)
}

func newArchive(ctx context.Context, cfg AppConfig) (file.Storage, error) {
	switch cfg.ArchiveBackend {
	case "":
		return nil, nil
	case "local":
		return file.NewLocalStorage(cfg.ArchiveDir, "")
	case "s3":
		var c file.S3Config
		config.MustLoad(&c)
		return file.NewS3Storage(ctx, c)
	}
	return nil, fmt.Errorf("unknown ARCHIVE_BACKEND %q", cfg.ArchiveBackend)
}

// newContact only logs messages outside production. Postmark is required in production.
func newContact(env environment.Environment, log *slog.Logger) (*contact.Service, error) {
	var c contact.Config
	config.MustLoad(&c)
	var mail email.Config
	config.MustLoad(&mail)

	opts := []contact.Option{contact.WithLogger(log)}
	if !env.IsProduction() {
		opts = append(opts, contact.WithDevelopmentMode(true))
		return contact.NewService(email.NewDevSender(mail.DevOutputDir), c, opts...), nil
	}
	sender, err := email.NewPostmarkClient(mail)
	if err != nil {
		return nil, fmt.Errorf("postmark: %w", err)
	}
	return contact.NewService(sender, c, opts...), nil
}

// newGoogle signs OAuth states under their own issuer so that a state token is
// never accepted as an access token.
func newGoogle(jwtCfg jwt.Config, sessions *auth.Service, log *slog.Logger) (*auth.OAuth, error) {
	var gc auth.GoogleOAuthConfig
	config.MustLoad(&gc)

	stateCfg := jwtCfg
	stateCfg.Issuer = jwtCfg.Issuer + "/oauth-state"
	stateCfg.ExpiresIn = gc.StateTTL
	states, err := jwt.New(stateCfg)
	if err != nil {
		return nil, fmt.Errorf("oauth state signer: %w", err)
	}
	return auth.NewOAuth(auth.NewGoogleAdapter(gc), states, sessions,
		auth.WithOAuthLogger(log),
		auth.WithStateTTL(gc.StateTTL),
		auth.WithVerifiedOnly(gc.VerifiedOnly),
	), nil
}
