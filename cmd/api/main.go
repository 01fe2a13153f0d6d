package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/config"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/events"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/handlers"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/lock"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/repository"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/services"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/xref"
	xhttp "github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/http"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/logger"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/pg"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/prom"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.Info("starting xref api", "version", version, "commit", commit, "date", date)

	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), cfg.AppEnv == "dev")
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}
	if err = db.SetPool(cfg.PostgresPool()); err != nil {
		logger.Error("failed configuring pg pool", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, cfg.Redis("xref-api"))
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}
	defer redisAdap.Close() //nolint

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	go prom.ListenAndServer(cfg.AppDebugMetricsAddr, cfg.AppDebugMetricsURI)

	ctx := context.Background()

	xrefRepo := repository.NewXrefRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	customerRepo := repository.NewCustomerRepository(db)

	index := xref.NewIndex(xrefRepo)
	n, err := index.Load(ctx)
	if err != nil {
		logger.Error("failed loading xref index", "error", err)
		return
	}
	prom.SetXrefEntries(n)
	stored, err := xrefRepo.Count(ctx)
	if err != nil {
		logger.Error("failed counting stored xrefs", "error", err)
		return
	}
	if skipped := stored - int64(n); skipped > 0 {
		logger.Warn("xref rows with malformed card numbers were not loaded", "skipped", skipped)
	}
	logger.Info("xref index loaded", "entries", n, "stored", stored)

	validator := xref.NewValidator(index, accountRepo, customerRepo)
	locker := lock.NewRedisLocker(redisAdap, lock.LockConfig{LockTTL: cfg.XrefCascadeLockTTL})
	coordinator := xref.NewCoordinator(index, locker, xref.CascadeConfig{
		MaxRetries: cfg.XrefCascadeMaxRetries,
		BaseDelay:  cfg.XrefCascadeRetryDelay,
	})
	pager := xref.NewPager(index)

	var publisher services.EventPublisher
	if cfg.XrefEventsPublishEnable {
		stream, err := events.NewStream(ctx, redisAdap, events.StreamConfig{
			Name:          cfg.XrefEventsStream,
			ConsumerGroup: cfg.XrefEventsGroup,
			MaxLen:        cfg.XrefEventsMaxLen,
		})
		if err != nil {
			logger.Error("failed creating event stream", "error", err)
			return
		}
		publisher = stream
	}

	// services
	xrefService := services.NewXrefService(index, validator, coordinator, pager, publisher, services.XrefServiceConfig{
		DefaultPageSize: cfg.XrefDefaultPageSize,
		MaxPageSize:     cfg.XrefMaxPageSize,
	})
	healthService := services.NewHealthService(db, redisAdap, index)

	// transport
	s := xhttp.CreateServer(cfg.HttpServerReadTimeout, cfg.HttpServerWriteTimeout)
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout))

	// v1 handlers
	g := s.Router.Group(cfg.HttpBaseRequestUrl)
	handlers.RegisterXrefRoutes(g, handlers.NewXrefHandler(xrefService))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(healthService))

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(cfg.HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	s.Shutdown()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Stat(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
