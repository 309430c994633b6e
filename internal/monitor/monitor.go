package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rayscout/rayscout/internal/events"
	"github.com/rayscout/rayscout/internal/metrics"
	"github.com/rayscout/rayscout/internal/models"
	"github.com/rayscout/rayscout/pkg/logger"
)

// SeenSignaturesCapacity bounds the duplicate-notification cache
const SeenSignaturesCapacity = 4096

var ErrSubscriptionClosed = errors.New("log subscription closed unexpectedly")

type TransactionParser interface {
	Parse(ctx context.Context, signature string, logs []string) (*models.TokenRecord, error)
}

// Monitor watches the fee account for pool creations. It is either idle or active;
// Start while active and Stop while idle are no-ops.
type Monitor struct {
	logger     *logger.Logger
	source     models.BlockchainService
	parser     TransactionParser
	store      models.EventStore
	bus        *events.Bus
	recorder   models.ErrorRecorder
	metrics    *metrics.ScoutMetrics
	feeAccount string
	seen       *lru.Cache[string, struct{}]

	startMu sync.Mutex

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMonitor(
	logger *logger.Logger,
	source models.BlockchainService,
	parser TransactionParser,
	store models.EventStore,
	bus *events.Bus,
	recorder models.ErrorRecorder,
	metrics *metrics.ScoutMetrics,
	feeAccount string,
) (*Monitor, error) {
	seen, err := lru.New[string, struct{}](SeenSignaturesCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create signature cache: %w", err)
	}
	return &Monitor{
		logger:     logger,
		source:     source,
		parser:     parser,
		store:      store,
		bus:        bus,
		recorder:   recorder,
		metrics:    metrics,
		feeAccount: feeAccount,
		seen:       seen,
	}, nil
}

// Start subscribes to the fee account logs and begins processing notifications.
// The subscription outlives ctx; only Stop ends it. A subscription failure leaves the
// monitor idle, publishes MonitoringError and is returned.
func (m *Monitor) Start(ctx context.Context) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	if m.IsActive() {
		m.logger.Info("Token monitoring is already active")
		return nil
	}

	m.logger.Info("Starting Solana token monitoring", "feeAccount", m.feeAccount)

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	notifications, err := m.source.SubscribeLogs(loopCtx, m.feeAccount)
	if err != nil {
		cancel()
		m.recorder.Record("Starting token monitor", err)
		m.bus.Publish(events.Event{Topic: events.MonitoringError, Err: err})
		return fmt.Errorf("failed to start monitoring: %w", err)
	}

	done := make(chan struct{})
	m.mu.Lock()
	m.active = true
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.MonitoringActive.Set(1)
	}

	go m.run(loopCtx, notifications, done)

	m.logger.Info("Token monitoring started successfully")
	m.bus.Publish(events.Event{Topic: events.MonitoringStarted})
	return nil
}

// Stop ends the subscription and returns once the processing loop has exited,
// so no token is published after it. In-flight processing is cancelled, not
// drained. Must not be called from a bus handler running on the loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	<-done
	if m.metrics != nil {
		m.metrics.MonitoringActive.Set(0)
	}

	m.logger.Info("Token monitoring stopped")
	m.bus.Publish(events.Event{Topic: events.MonitoringStopped})
}

func (m *Monitor) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Monitor) run(ctx context.Context, notifications <-chan models.LogNotification, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				if ctx.Err() == nil {
					m.lostSubscription(done)
				}
				return
			}
			m.handle(ctx, n)
		}
	}
}

// lostSubscription moves to idle when the stream ends without Stop being called.
func (m *Monitor) lostSubscription(done chan struct{}) {
	m.mu.Lock()
	if !m.active || m.done != done {
		m.mu.Unlock()
		return
	}
	m.active = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	if m.metrics != nil {
		m.metrics.MonitoringActive.Set(0)
	}
	m.recorder.Record("Token monitor subscription", ErrSubscriptionClosed)
	m.bus.Publish(events.Event{Topic: events.MonitoringError, Err: ErrSubscriptionClosed})
}

func (m *Monitor) handle(ctx context.Context, n models.LogNotification) {
	m.count(func(sm *metrics.ScoutMetrics) { sm.NotificationsReceived.Inc() })

	if n.Err != nil {
		m.logger.Debug("dropping notification for failed transaction", "signature", n.Signature, "error", n.Err)
		m.count(func(sm *metrics.ScoutMetrics) { sm.NotificationsErrored.Inc() })
		return
	}

	if ok, _ := m.seen.ContainsOrAdd(n.Signature, struct{}{}); ok {
		m.logger.Debug("signature already processed", "signature", n.Signature)
		m.count(func(sm *metrics.ScoutMetrics) { sm.NotificationsSkipped.Inc() })
		return
	}

	m.logger.Debug("Found new token signature", "signature", n.Signature)

	record, err := m.parser.Parse(ctx, n.Signature, n.Logs)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.count(func(sm *metrics.ScoutMetrics) { sm.ParseFailures.Inc() })
		m.recorder.Record(fmt.Sprintf("Parsing transaction %s", n.Signature), err)
		return
	}
	if record == nil {
		return
	}

	if err := m.store.Append(ctx, record); err != nil {
		m.count(func(sm *metrics.ScoutMetrics) { sm.StoreAppendFailures.Inc() })
		m.recorder.Record(fmt.Sprintf("Storing token %s", record.BaseAsset.Address), err)
		return
	}

	m.count(func(sm *metrics.ScoutMetrics) { sm.TokensDetected.Inc() })
	m.logger.Info("Token processed", "mint", record.BaseAsset.Address, "signature", record.Signature)
	m.bus.Publish(events.Event{Topic: events.NewToken, Token: record})
}

func (m *Monitor) count(f func(*metrics.ScoutMetrics)) {
	if m.metrics != nil {
		f(m.metrics)
	}
}
