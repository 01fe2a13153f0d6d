package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/events"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/model"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/logger"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/prom"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/worker"
)

const (
	ModeSweep       = "sweep"
	ModeIncremental = "incremental"
)

var reasons = []model.FindingReason{model.ReasonAccountMissing, model.ReasonCustomerMissing}

// Loader refreshes the in-memory index from the store.
type Loader interface {
	Load(ctx context.Context) (int, error)
}

type Checker interface {
	Audit(ctx context.Context) (model.IntegrityReport, error)
	CheckEntries(ctx context.Context, entries []model.CardXref) ([]model.Finding, error)
}

// EventSource delivers cross-reference change events until ctx is cancelled.
type EventSource interface {
	Consume(ctx context.Context, handler events.Handler) error
}

type AuditConfig struct {
	Interval  time.Duration
	Workers   int
	QueueSize int
}

func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Interval:  5 * time.Minute,
		Workers:   4,
		QueueSize: 1_000,
	}
}

// Auditor runs periodic full sweeps of the index and checks single entries as
// change events arrive. It only reports; it never repairs the relation.
type Auditor struct {
	loader  Loader
	checker Checker
	source  EventSource
	config  AuditConfig
	workers *worker.WorkerManager[model.XrefEvent]
	metrics *Metrics
	trigger chan struct{}

	mu   sync.RWMutex
	last *model.IntegrityReport
}

// NewAuditor returns an auditor. A nil source disables incremental checks.
func NewAuditor(loader Loader, checker Checker, source EventSource, config AuditConfig) *Auditor {
	def := DefaultAuditConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	a := &Auditor{
		loader:  loader,
		checker: checker,
		source:  source,
		config:  config,
		metrics: NewMetrics(),
		trigger: make(chan struct{}, 1),
	}
	a.workers = worker.NewWorkerManager(config.QueueSize, config.Workers, a.workerHandler)
	return a
}

// Run performs an initial sweep and then audits until ctx is cancelled.
func (a *Auditor) Run(ctx context.Context) error {
	logger.Info("starting auditor", "interval", a.config.Interval, "workers", a.config.Workers)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.workers.Start(ctx); err != nil && !errors.Is(err, worker.ErrStopped) {
			logger.Error("audit workers stopped", "error", err)
		}
	}()

	if a.source != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.source.Consume(ctx, a.eventHandler); err != nil {
				logger.Error("event consumer stopped", "error", err)
			}
		}()
	}

	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	a.sweepAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			logger.Info("auditor stopped", "stats", a.metrics.GetStats())
			return nil
		case <-ticker.C:
			a.sweepAndLog(ctx)
		case <-a.trigger:
			a.sweepAndLog(ctx)
		}
	}
}

// RequestSweep schedules a sweep. Requests made while one is pending coalesce.
func (a *Auditor) RequestSweep() {
	select {
	case a.trigger <- struct{}{}:
	default:
	}
}

// Sweep reloads the index and audits every entry.
func (a *Auditor) Sweep(ctx context.Context) (model.IntegrityReport, error) {
	start := time.Now()
	if _, err := a.loader.Load(ctx); err != nil {
		prom.IncAuditRun(ModeSweep, "error")
		a.metrics.RecordFailure()
		return model.IntegrityReport{}, err
	}
	report, err := a.checker.Audit(ctx)
	if err != nil {
		prom.IncAuditRun(ModeSweep, "error")
		a.metrics.RecordFailure()
		return model.IntegrityReport{}, err
	}

	a.mu.Lock()
	a.last = &report
	a.mu.Unlock()

	prom.SetAuditChecked(report.Checked)
	for reason, n := range countReasons(report.Findings) {
		prom.SetAuditFindings(string(reason), n)
	}
	prom.IncAuditRun(ModeSweep, result(report.Findings))
	a.metrics.RecordSweep(time.Since(start), len(report.Findings))
	return report, nil
}

// LastReport returns the most recent sweep result.
func (a *Auditor) LastReport() (model.IntegrityReport, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last == nil {
		return model.IntegrityReport{}, false
	}
	return *a.last, true
}

// CheckEvent audits the entry an event describes. Cascades schedule a full sweep.
func (a *Auditor) CheckEvent(ctx context.Context, ev model.XrefEvent) ([]model.Finding, error) {
	switch ev.Type {
	case model.EventCardLinked:
		entry := model.CardXref{CardNumber: ev.CardNumber, AccountID: ev.AccountID, CustomerID: ev.CustomerID}
		findings, err := a.checker.CheckEntries(ctx, []model.CardXref{entry})
		if err != nil {
			prom.IncAuditRun(ModeIncremental, "error")
			a.metrics.RecordFailure()
			return nil, err
		}
		prom.IncAuditRun(ModeIncremental, result(findings))
		a.metrics.RecordIncremental(len(findings))
		return findings, nil
	case model.EventAccountCascaded, model.EventCustomerCascaded:
		a.RequestSweep()
	}
	return nil, nil
}

func (a *Auditor) eventHandler(ctx context.Context, ev model.XrefEvent) error {
	return a.workers.Enqueue(ctx, ev)
}

func (a *Auditor) workerHandler(ctx context.Context, idx int, ev model.XrefEvent) {
	findings, err := a.CheckEvent(ctx, ev)
	if err != nil {
		logger.Error("incremental audit failed", "worker", idx, "event", ev.ID, "type", ev.Type, "error", err)
		return
	}
	for _, f := range findings {
		logger.Warn("integrity finding", "mode", ModeIncremental, "xref", f.Xref.String(), "reasons", f.Reasons)
	}
}

func (a *Auditor) sweepAndLog(ctx context.Context) {
	report, err := a.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("integrity sweep failed", "error", err)
		}
		return
	}
	for _, f := range report.Findings {
		logger.Warn("integrity finding", "mode", ModeSweep, "xref", f.Xref.String(), "reasons", f.Reasons)
	}
	logger.Info("integrity sweep finished",
		"checked", report.Checked,
		"findings", len(report.Findings),
		"duration", report.FinishedAt.Sub(report.StartedAt))
}

func countReasons(findings []model.Finding) map[model.FindingReason]int {
	counts := make(map[model.FindingReason]int, len(reasons))
	for _, r := range reasons {
		counts[r] = 0
	}
	for _, f := range findings {
		for _, r := range f.Reasons {
			counts[r]++
		}
	}
	return counts
}

func result(findings []model.Finding) string {
	if len(findings) > 0 {
		return "findings"
	}
	return "clean"
}
