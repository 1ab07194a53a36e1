package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/123123eeqweq/omocrm/api"
	"github.com/123123eeqweq/omocrm/config"
	"github.com/123123eeqweq/omocrm/domain"
	"github.com/123123eeqweq/omocrm/session"
	"github.com/123123eeqweq/omocrm/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	policy, err := domain.ParseAuthPolicy(cfg.AuthPolicy)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Login == "" || cfg.Password == "" {
		log.Warn("LOGIN or PASSWORD is empty; every login attempt will be rejected")
	}
	if policy == domain.AuthServerSession && cfg.SessionSecret == "change-me-in-production" {
		log.Warn("SESSION_SECRET is the built-in default")
	}

	ctx := context.Background()
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	repo, err := storage.Open(openCtx, storage.Options{
		Backend:          storage.Backend(cfg.StorageBackend),
		DatabaseURL:      cfg.DatabaseURL,
		ConnectionString: cfg.ConnectionString,
		Table:            cfg.BoardsTable,
	})
	cancel()
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	var (
		boards   storage.Repository = repo
		sessions session.Store      = session.NewMemoryStore()
		rc       *redis.Client
	)
	if cfg.RedisURL != "" {
		rc = redis.NewClient(redisOptions(cfg.RedisURL))
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rc.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		sessions = session.NewRedisStore(rc)
		boards = storage.NewCache(repo, rc, cfg.BoardCacheTTL)
	} else {
		log.Warn("REDIS_URL is empty; sessions are kept in memory and boards are not cached")
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)

	logger := log.StandardLogger()
	var sessionAPI api.Sessions
	if policy == domain.AuthServerSession {
		sessionAPI = session.NewManager(sessions, cfg.SessionSecret, cfg.SessionTTL)
	}
	gate := api.NewGate(api.GateConfig{
		Policy:       policy,
		Login:        cfg.Login,
		Password:     cfg.Password,
		CookieName:   cfg.SessionCookie,
		CookieSecure: cfg.CookieSecure,
	}, sessionAPI)

	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.JSONSerializer{}
	e.HTTPErrorHandler = api.HTTPErrorHandler(logger)
	e.Use(middleware.Recover())
	e.Use(api.CORS(cfg.Origins()))
	e.Use(api.GzipRequestMiddleware())
	e.Use(echoprometheus.NewMiddleware("omocrm"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, boards, gate, logger)

	go func() {
		log.WithFields(log.Fields{
			"addr":    cfg.Addr(),
			"backend": cfg.StorageBackend,
			"auth":    policy,
		}).Info("board server listening")
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("tracer shutdown")
	}
	if err := boards.Close(); err != nil {
		log.WithError(err).Warn("storage close")
	}
	if rc != nil {
		_ = rc.Close()
	}
}

// redisOptions accepts either a redis:// URL or the Azure-style
// "host:port,password=...,ssl=True" connection string.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts
}
