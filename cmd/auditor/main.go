package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/audit"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/config"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/events"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/repository"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/xref"
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
	logger.Info("starting xref auditor", "version", version, "commit", commit, "date", date)

	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), false)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}
	if err = db.SetPool(cfg.PostgresPool()); err != nil {
		logger.Error("failed configuring pg pool", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, cfg.Redis("xref-auditor"))
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the auditor keeps its own copy of the index and reloads it on every sweep
	index := xref.NewIndex(repository.NewXrefRepository(db))
	validator := xref.NewValidator(index, repository.NewAccountRepository(db), repository.NewCustomerRepository(db))

	consumer := cfg.XrefEventsConsumer
	if consumer == "" {
		consumer = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}
	stream, err := events.NewStream(ctx, redisAdap, events.StreamConfig{
		Name:              cfg.XrefEventsStream,
		ConsumerGroup:     cfg.XrefEventsGroup,
		ConsumerName:      consumer,
		MaxRetries:        cfg.XrefEventsMaxRetries,
		VisibilityTimeout: cfg.XrefEventsVisibility,
		PollInterval:      cfg.XrefEventsPollInterval,
		BatchSize:         cfg.XrefEventsBatchSize,
		MaxLen:            cfg.XrefEventsMaxLen,
		EnableDLQ:         cfg.XrefEventsEnableDLQ,
	})
	if err != nil {
		logger.Error("failed creating event stream", "error", err)
		return
	}

	auditor := audit.NewAuditor(index, validator, stream, audit.AuditConfig{
		Interval:  cfg.AuditInterval,
		Workers:   cfg.AuditWorkers,
		QueueSize: cfg.AuditQueueSize,
	})
	if err := auditor.Run(ctx); err != nil {
		logger.Error("auditor stopped with error", "error", err)
	}
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
