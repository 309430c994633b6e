package rayscout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rayscout/rayscout/internal/config"
	"github.com/rayscout/rayscout/internal/events"
	"github.com/rayscout/rayscout/internal/metrics"
	"github.com/rayscout/rayscout/internal/models"
	"github.com/rayscout/rayscout/internal/risk"
	"github.com/rayscout/rayscout/internal/sniper"
	"github.com/rayscout/rayscout/pkg/logger"
	"github.com/rayscout/rayscout/pkg/validation"
)

var ErrInvalidAddress = errors.New("invalid token address")

// TokenMonitor is the part of the monitor the application drives
type TokenMonitor interface {
	Start(ctx context.Context) error
	Stop()
	IsActive() bool
}

// Rayscout is the application core. It reacts to detected tokens with a risk analysis
// and serves the commands of the chat gateway and the HTTP API.
type Rayscout struct {
	logger *logger.Logger
	config *config.Config

	monitor    TokenMonitor
	store      models.EventStore
	oracle     models.RiskOracle
	classifier *risk.Classifier
	planner    *sniper.Planner
	bus        *events.Bus
	recorder   models.ErrorRecorder
	metrics    *metrics.ScoutMetrics

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

func NewRayscout(
	monitor TokenMonitor,
	store models.EventStore,
	oracle models.RiskOracle,
	classifier *risk.Classifier,
	planner *sniper.Planner,
	bus *events.Bus,
	recorder models.ErrorRecorder,
	metrics *metrics.ScoutMetrics,
	logger *logger.Logger,
	config *config.Config,
) *Rayscout {
	return &Rayscout{
		monitor:    monitor,
		store:      store,
		oracle:     oracle,
		classifier: classifier,
		planner:    planner,
		bus:        bus,
		recorder:   recorder,
		metrics:    metrics,
		logger:     logger,
		config:     config,
	}
}

// Start attaches the analysis pipeline to the bus and starts monitoring.
// A monitoring failure is returned; the pipeline stays attached so a later
// StartMonitoring can recover.
func (r *Rayscout) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.unsubscribe == nil {
		r.ctx, r.cancel = context.WithCancel(ctx)
		r.unsubscribe = r.bus.Subscribe(events.NewToken, r.onNewToken)
	}
	r.mu.Unlock()

	return r.StartMonitoring(ctx)
}

// Close stops monitoring, detaches from the bus and waits for in-flight analyses.
func (r *Rayscout) Close() {
	r.monitor.Stop()

	// Cancelling under mu orders every wg.Add in onNewToken before the Wait below.
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	r.wg.Wait()
}

func (r *Rayscout) onNewToken(ev events.Event) {
	if ev.Token == nil {
		return
	}
	token := *ev.Token

	r.mu.Lock()
	ctx := r.ctx
	if ctx == nil || ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.recorder.Record("Processing new token", fmt.Errorf("panic: %v", p))
			}
		}()
		r.logger.Info("New token detected", "mint", token.BaseAsset.Address)
		analysis := r.analyze(ctx, token)
		r.bus.Publish(events.Event{Topic: events.AnalysisComplete, Analysis: &analysis})
		r.maybeSnipe(analysis)
	}()
}

// analyze consults the oracle and classifies the token. The stored record is never
// touched; only the copy carried by the analysis holds the report.
func (r *Rayscout) analyze(ctx context.Context, token models.TokenRecord) models.Analysis {
	report := r.oracle.Check(ctx, token.BaseAsset.Address)
	return r.classify(token.WithRiskReport(report))
}

func (r *Rayscout) classify(token models.TokenRecord) models.Analysis {
	analysis := r.classifier.Analyze(token)
	if r.metrics != nil {
		r.metrics.AnalysesCompleted.WithLabelValues(string(analysis.Verdict.Level)).Inc()
	}
	r.logger.Info("Rug analysis completed",
		"mint", token.BaseAsset.Address,
		"level", analysis.Verdict.Level,
		"recommendation", analysis.Verdict.Recommendation,
		"passesGate", analysis.PassesGate,
	)
	return analysis
}

func (r *Rayscout) maybeSnipe(analysis models.Analysis) {
	mint := analysis.Token.BaseAsset.Address
	if !analysis.PassesGate {
		r.logger.Warn("Token did not pass security check", "mint", mint)
		return
	}
	if !r.config.AutoSnipeEnabled {
		r.logger.Info("Token passed security check, auto snipe disabled", "mint", mint)
		return
	}

	plan := r.planner.Plan(analysis)
	if r.metrics != nil {
		r.metrics.SnipePlans.WithLabelValues(strconv.FormatBool(plan.Safe)).Inc()
	}
	r.logger.Info("Token passed security check, snipe plan ready",
		"mint", mint, "safe", plan.Safe, "amountSol", plan.AmountSOL, "reasons", plan.Reasons)
	r.bus.Publish(events.Event{Topic: events.SnipeReady, Analysis: &analysis, Plan: &plan})
}

func (r *Rayscout) Status(ctx context.Context) models.Status {
	return models.Status{
		IsActive:      r.monitor.IsActive(),
		LatestRecords: r.store.Latest(ctx, r.config.StatusLimit, r.config.RecordMaxAgeDays),
	}
}

func (r *Rayscout) Report(ctx context.Context, address string) (*models.Analysis, error) {
	address, err := validation.ValidateAndNormalizeAddress(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	token := r.store.FindByAssetAddress(ctx, address, r.config.RecordMaxAgeDays)
	if token == nil {
		return nil, nil
	}

	analysis := r.analyze(ctx, *token)
	return &analysis, nil
}

// SnipeWait hands the next detected token to a single caller. Each call is an
// independent one-shot listener.
func (r *Rayscout) SnipeWait(timeout time.Duration) <-chan models.TokenRecord {
	if timeout <= 0 {
		timeout = r.config.SnipeWaitTimeout
	}
	wait := r.bus.WaitOnce(events.NewToken, timeout)

	out := make(chan models.TokenRecord, 1)
	go func() {
		defer close(out)
		ev, ok := <-wait
		if ok && ev.Token != nil {
			out <- *ev.Token
		}
	}()
	return out
}

func (r *Rayscout) StartMonitoring(ctx context.Context) error {
	return r.monitor.Start(ctx)
}

func (r *Rayscout) StopMonitoring() {
	r.monitor.Stop()
}

func (r *Rayscout) IsMonitoring() bool {
	return r.monitor.IsActive()
}

// ScanRecent re-analyses the newest records one oracle call at a time, publishing
// progress after each and the full batch at the end.
func (r *Rayscout) ScanRecent(ctx context.Context, limit int) []models.Analysis {
	tokens := r.store.Latest(ctx, limit, r.config.RecordMaxAgeDays)
	if len(tokens) == 0 {
		return nil
	}

	addresses := make([]string, len(tokens))
	for i, token := range tokens {
		addresses[i] = token.BaseAsset.Address
	}

	r.logger.Info("Starting batch analysis", "tokens", len(tokens))
	reports := r.oracle.CheckBatch(ctx, addresses, func(done, total int) {
		r.logger.Debug("Analysis progress", "done", done, "total", total)
		r.bus.Publish(events.Event{Topic: events.AnalysisProgress, Done: done, Total: total})
	})

	analyses := make([]models.Analysis, 0, len(tokens))
	for i, token := range tokens {
		var report *models.RiskReport
		if i < len(reports) {
			report = reports[i]
		}
		analyses = append(analyses, r.classify(token.WithRiskReport(report)))
	}

	r.bus.Publish(events.Event{Topic: events.BatchComplete, Analyses: analyses})
	return analyses
}

var _ models.RayscoutI = (*Rayscout)(nil)
