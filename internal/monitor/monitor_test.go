package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rayscout/rayscout/internal/events"
	"github.com/rayscout/rayscout/internal/metrics"
	"github.com/rayscout/rayscout/internal/models"
	"github.com/rayscout/rayscout/pkg/logger"
)

const feeAccount = "7YttLkHDoNj9wyDur5pM1ejNaAvT9X4eqaYcHQqtj2G5"

type fakeSource struct {
	mu         sync.Mutex
	ch         chan models.LogNotification
	subErr     error
	subscribes int
	mention    string
}

// SubscribeLogs hands out a channel the test closes explicitly; the monitor exits on
// ctx cancellation without waiting for it.
func (f *fakeSource) SubscribeLogs(_ context.Context, mention string) (<-chan models.LogNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	f.mention = mention
	if f.subErr != nil {
		return nil, f.subErr
	}
	ch := make(chan models.LogNotification, 16)
	f.ch = ch
	return ch, nil
}

func (f *fakeSource) GetParsedTransaction(context.Context, string) (*models.ParsedTransaction, error) {
	return nil, nil
}

func (f *fakeSource) push(n models.LogNotification) {
	f.mu.Lock()
	ch := f.ch
	f.mu.Unlock()
	ch <- n
}

type fakeParser struct {
	mu      sync.Mutex
	records map[string]*models.TokenRecord
	errs    map[string]error
	calls   []string
}

func (f *fakeParser) Parse(_ context.Context, signature string, logs []string) (*models.TokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, signature)
	if err := f.errs[signature]; err != nil {
		return nil, err
	}
	rec := f.records[signature]
	if rec != nil {
		rec.RawLogLines = logs
	}
	return rec, nil
}

func (f *fakeParser) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeStore struct {
	mu        sync.Mutex
	appended  []models.TokenRecord
	appendErr error
}

func (f *fakeStore) Append(_ context.Context, r *models.TokenRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, *r)
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appended)
}

func (f *fakeStore) Latest(context.Context, int, int) []models.TokenRecord { return nil }
func (f *fakeStore) FindBySignature(context.Context, string, int) *models.TokenRecord {
	return nil
}
func (f *fakeStore) FindByAssetAddress(context.Context, string, int) *models.TokenRecord {
	return nil
}
func (f *fakeStore) Close() error { return nil }

type fakeRecorder struct {
	mu       sync.Mutex
	contexts []string
}

func (f *fakeRecorder) Record(context string, _ error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts = append(f.contexts, context)
}

func (f *fakeRecorder) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.contexts...)
}

type fixture struct {
	monitor  *Monitor
	source   *fakeSource
	parser   *fakeParser
	store    *fakeStore
	bus      *events.Bus
	recorder *fakeRecorder
	metrics  *metrics.ScoutMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		source:   &fakeSource{},
		parser:   &fakeParser{records: map[string]*models.TokenRecord{}, errs: map[string]error{}},
		store:    &fakeStore{},
		bus:      events.NewBus(),
		recorder: &fakeRecorder{},
		metrics:  metrics.NewScoutMetrics(),
	}
	m, err := NewMonitor(logger.NewNop(), f.source, f.parser, f.store, f.bus, f.recorder, f.metrics, feeAccount)
	require.NoError(t, err)
	f.monitor = m
	t.Cleanup(m.Stop)
	return f
}

func completeRecord(sig string) *models.TokenRecord {
	return &models.TokenRecord{
		Signature:  sig,
		Creator:    "creator",
		DetectedAt: time.Now().UTC(),
		BaseAsset:  models.AssetInfo{Address: "mint-" + sig, Decimals: 6, LiquidityAmount: 1},
		QuoteAsset: models.AssetInfo{Address: "So11111111111111111111111111111111111111112", Decimals: 9},
	}
}

func waitEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "wait expired")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return events.Event{}
}

func TestStartStop_StateMachine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var mu sync.Mutex
	var topics []events.Topic
	record := func(ev events.Event) {
		mu.Lock()
		topics = append(topics, ev.Topic)
		mu.Unlock()
	}
	f.bus.Subscribe(events.MonitoringStarted, record)
	f.bus.Subscribe(events.MonitoringStopped, record)

	assert.False(t, f.monitor.IsActive())

	require.NoError(t, f.monitor.Start(ctx))
	assert.True(t, f.monitor.IsActive())
	assert.Equal(t, feeAccount, f.source.mention)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MonitoringActive))

	// starting again is a no-op
	require.NoError(t, f.monitor.Start(ctx))
	assert.Equal(t, 1, f.source.subscribes)

	f.monitor.Stop()
	assert.False(t, f.monitor.IsActive())
	f.monitor.Stop()

	select {
	case <-f.monitor.done:
	default:
		t.Fatal("Stop returned before the loop exited")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []events.Topic{events.MonitoringStarted, events.MonitoringStopped}, topics)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.MonitoringActive))
}

func TestStart_SubscriptionFailure(t *testing.T) {
	f := newFixture(t)
	f.source.subErr = errors.New("websocket dial refused")

	waitErr := f.bus.WaitOnce(events.MonitoringError, 2*time.Second)
	err := f.monitor.Start(context.Background())
	require.Error(t, err)
	assert.False(t, f.monitor.IsActive())

	ev := waitEvent(t, waitErr)
	assert.ErrorContains(t, ev.Err, "websocket dial refused")
	assert.Equal(t, []string{"Starting token monitor"}, f.recorder.snapshot())
}

func TestNotification_ParsedRecordIsStoredThenPublished(t *testing.T) {
	f := newFixture(t)
	f.parser.records["sig1"] = completeRecord("sig1")

	f.bus.Subscribe(events.NewToken, func(ev events.Event) {
		// the record is already persisted when subscribers hear about it
		assert.Equal(t, 1, f.store.count())
	})
	newToken := f.bus.WaitOnce(events.NewToken, 2*time.Second)

	require.NoError(t, f.monitor.Start(context.Background()))
	f.source.push(models.LogNotification{Signature: "sig1", Logs: []string{"Program log: initialize2"}})

	ev := waitEvent(t, newToken)
	require.NotNil(t, ev.Token)
	assert.Equal(t, "sig1", ev.Token.Signature)
	assert.Equal(t, []string{"Program log: initialize2"}, ev.Token.RawLogLines)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TokensDetected))
}

func TestNotification_ErroredAndIncompleteAreNeverStored(t *testing.T) {
	f := newFixture(t)
	f.parser.records["sig-good"] = completeRecord("sig-good")
	// "sig-incomplete" has no record: the parser reports incomplete data as nil

	newToken := f.bus.WaitOnce(events.NewToken, 2*time.Second)
	require.NoError(t, f.monitor.Start(context.Background()))

	f.source.push(models.LogNotification{Signature: "sig-failed", Err: map[string]interface{}{"InstructionError": 1}})
	f.source.push(models.LogNotification{Signature: "sig-incomplete"})
	f.source.push(models.LogNotification{Signature: "sig-good"})

	ev := waitEvent(t, newToken)
	assert.Equal(t, "sig-good", ev.Token.Signature)

	assert.Equal(t, 1, f.store.count())
	assert.Equal(t, 2, f.parser.callCount(), "errored notifications are not parsed")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.NotificationsErrored))
}

func TestNotification_DuplicateSignatureProcessedOnce(t *testing.T) {
	f := newFixture(t)
	f.parser.records["dup"] = completeRecord("dup")
	f.parser.records["next"] = completeRecord("next")

	var mu sync.Mutex
	var seen []string
	f.bus.Subscribe(events.NewToken, func(ev events.Event) {
		mu.Lock()
		seen = append(seen, ev.Token.Signature)
		mu.Unlock()
	})
	require.NoError(t, f.monitor.Start(context.Background()))

	last := f.bus.WaitOnce(events.NewToken, 2*time.Second)
	f.source.push(models.LogNotification{Signature: "dup"})
	waitEvent(t, last)

	last = f.bus.WaitOnce(events.NewToken, 2*time.Second)
	f.source.push(models.LogNotification{Signature: "dup"})
	f.source.push(models.LogNotification{Signature: "next"})
	waitEvent(t, last)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"dup", "next"}, seen)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.NotificationsSkipped))
}

func TestNotification_FailuresAreRecorded(t *testing.T) {
	f := newFixture(t)
	f.parser.errs["sig-rpc"] = errors.New("rpc unavailable")
	f.parser.records["sig-store"] = completeRecord("sig-store")
	f.store.appendErr = errors.New("disk full")

	require.NoError(t, f.monitor.Start(context.Background()))
	f.source.push(models.LogNotification{Signature: "sig-rpc"})
	f.source.push(models.LogNotification{Signature: "sig-store"})

	assert.Eventually(t, func() bool { return len(f.recorder.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"Parsing transaction sig-rpc", "Storing token mint-sig-store"}, f.recorder.snapshot())
	assert.Zero(t, f.store.count())
}

func TestSubscriptionClosedUnexpectedly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.monitor.Start(context.Background()))

	waitErr := f.bus.WaitOnce(events.MonitoringError, 2*time.Second)
	f.source.mu.Lock()
	close(f.source.ch)
	f.source.mu.Unlock()

	ev := waitEvent(t, waitErr)
	assert.ErrorIs(t, ev.Err, ErrSubscriptionClosed)
	assert.False(t, f.monitor.IsActive())

	// a fresh start resubscribes
	require.NoError(t, f.monitor.Start(context.Background()))
	assert.True(t, f.monitor.IsActive())
	assert.Equal(t, 2, f.source.subscribes)
}
