package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"lojapdv/backend/internal/cache"
	"lojapdv/backend/internal/catalog"
	"lojapdv/backend/internal/config"
	"lojapdv/backend/internal/httpapi"
	"lojapdv/backend/internal/logging"
	"lojapdv/backend/internal/metrics"
	"lojapdv/backend/internal/service"
	"lojapdv/backend/internal/store"
	"lojapdv/backend/internal/store/memory"
	pgstore "lojapdv/backend/internal/store/postgres"
	sqlitestore "lojapdv/backend/internal/store/sqlite"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("lojapdv stopped with an error")
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "lojapdv",
		Usage: "single-store checkout backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded before the environment",
				Value: ".env",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply the schema to the configured SQL store",
				Action: runMigrate,
			},
			{
				Name:  "seed",
				Usage: "import products and customers from a YAML catalog",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "catalog file, defaults to SEED_FILE",
					},
				},
				Action: runSeed,
			},
		},
	}
}

func setup(c *cli.Context) (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logging.New(cfg.LogLevel, cfg.LogFormat), nil
}

// openStore picks the repository named by the configuration. SQL stores are
// migrated on open.
func openStore(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (store.Repository, error) {
	switch cfg.StoreKind() {
	case "postgres":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "postgres unavailable and DATABASE_URL is set; refusing to fall back to memory")
		}
		log.WithField("store", "postgres").Info("repository ready")
		return pg, nil
	case "sqlite":
		lite, err := sqlitestore.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, errors.Wrapf(err, "sqlite %s", cfg.SQLitePath)
		}
		log.WithFields(logrus.Fields{"store": "sqlite", "path": cfg.SQLitePath}).Info("repository ready")
		return lite, nil
	default:
		log.WithField("store", "memory").Warn("repository is in-memory, data is lost on restart")
		return memory.NewSeeded(), nil
	}
}

func serve(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	if err := validateSecurityConfig(cfg); err != nil {
		return errors.Wrap(err, "invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	repo, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	closers := []func() error{repo.Close}

	saleCache := cache.SaleCache(cache.NoopSaleCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSaleCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unavailable, sale cache disabled")
			_ = redisCache.Close()
		} else {
			saleCache = redisCache
			closers = append(closers, redisCache.Close)
			log.WithField("addr", cfg.RedisAddr).Info("sale cache: redis")
		}
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	svc := service.New(repo, service.Options{
		Logger:            log,
		Metrics:           m,
		SaleCache:         saleCache,
		SaleCacheTTL:      cfg.SaleCacheTTL(),
		LowStockThreshold: cfg.LowStockThreshold,
		SessionIdle:       cfg.SessionIdle(),
	})
	m.RegisterSessions(svc.Sessions().Len)

	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo, log)
	if cfg.StoreKind() != "memory" {
		if _, err := auth.EnsureBootstrapUsers(ctx, cfg.SeedAdminPassword, cfg.SeedCashierPassword); err != nil {
			return errors.Wrap(err, "bootstrap users")
		}
	}
	if cfg.SeedFile != "" {
		if err := importCatalog(ctx, svc, cfg.SeedFile, log); err != nil {
			return err
		}
	}

	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		StoreName:     cfg.StoreName,
		Metrics:       m,
		Logger:        log,
	})
	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer closeAll(closers, log)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		log.WithField("addr", cfg.Address()).Info("checkout backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server error")
		}
		return nil
	})
	g.Go(func() error {
		sweepSessions(gctx, svc, time.Minute)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("server stopped")
	return err
}

// sweepSessions drops idle checkout sessions until ctx is done.
func sweepSessions(ctx context.Context, svc *service.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.SweepSessions()
		}
	}
}

func closeAll(closers []func() error, log logrus.FieldLogger) {
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.WithError(err).Warn("close error")
		}
	}
}

func runMigrate(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}

	var (
		db      *sql.DB
		migrate func(*sql.DB) error
	)
	switch cfg.StoreKind() {
	case "postgres":
		db, err = pgstore.Open(c.Context, cfg.DatabaseURL)
		migrate = pgstore.Migrate
	case "sqlite":
		db, err = sqlitestore.Open(c.Context, cfg.SQLitePath)
		migrate = sqlitestore.Migrate
	default:
		return errors.New("migrate needs DATABASE_URL or SQLITE_PATH")
	}
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrate(db); err != nil {
		return err
	}
	log.WithField("store", cfg.StoreKind()).Info("schema up to date")
	return nil
}

func runSeed(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	path := c.String("file")
	if path == "" {
		path = cfg.SeedFile
	}
	if path == "" {
		return errors.New("seed needs --file or SEED_FILE")
	}
	if cfg.StoreKind() == "memory" {
		return errors.New("seed needs DATABASE_URL or SQLITE_PATH, the memory store is not persistent")
	}

	repo, err := openStore(c.Context, cfg, log)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc := service.New(repo, service.Options{Logger: log})
	return importCatalog(c.Context, svc, path, log)
}

func importCatalog(ctx context.Context, svc *service.Service, path string, log logrus.FieldLogger) error {
	seed, err := catalog.Load(path)
	if err != nil {
		return err
	}
	result, err := svc.ImportSeed(ctx, seed)
	if err != nil {
		return errors.Wrapf(err, "import %s", path)
	}
	log.WithFields(logrus.Fields{
		"file":              path,
		"products_created":  result.ProductsCreated,
		"customers_created": result.CustomersCreated,
	}).Info("catalog imported")
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.StoreKind() == "memory" {
		return nil
	}
	for name, password := range map[string]string{
		"SEED_ADMIN_PASSWORD":   cfg.SeedAdminPassword,
		"SEED_CASHIER_PASSWORD": cfg.SeedCashierPassword,
	} {
		if password == "" {
			continue
		}
		if err := validatePasswordStrength(password); err != nil {
			return fmt.Errorf("%s is too weak: %w", name, err)
		}
	}
	return nil
}

// validatePasswordStrength rejects short passwords, well-known defaults and
// passwords made of a single repeated character.
func validatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("at least 8 characters required")
	}
	known := map[string]bool{
		"admin123": true, "cashier123": true, "password": true, "12345678": true,
		"123456789": true, "password1": true, "qwerty123": true, "changeme": true,
	}
	if known[strings.ToLower(password)] {
		return fmt.Errorf("common password not allowed")
	}

	allSame := true
	for i := 1; i < len(password); i++ {
		if password[i] != password[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("single-character password not allowed")
	}
	return nil
}
