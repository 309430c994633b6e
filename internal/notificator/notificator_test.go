package notificator

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

type sent struct {
	chatID       int64
	notification models.Notification
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sent
	failFor map[int64]bool
	panicOn int64
}

func (f *fakeSender) SendNotification(_ context.Context, chatID int64, n models.Notification) error {
	if f.panicOn != 0 && chatID == f.panicOn {
		panic("sender exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[chatID] {
		return errors.New("chat not found")
	}
	f.sent = append(f.sent, sent{chatID, n})
	return nil
}

func (f *fakeSender) snapshot() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func runNotificator(t *testing.T, sender *fakeSender, chats *ChatRegistry, admin int64) (*events.Bus, *metrics.ScoutMetrics) {
	t.Helper()
	bus := events.NewBus()
	m := metrics.NewScoutMetrics()
	n := NewNotificator(logger.NewNop(), sender, chats, admin, m)
	t.Cleanup(n.Subscribe(bus))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = n.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return bus, m
}

func TestChatRegistry(t *testing.T) {
	r := NewChatRegistry()
	assert.True(t, r.Add(30))
	assert.True(t, r.Add(10))
	assert.False(t, r.Add(30))
	assert.Equal(t, []int64{10, 30}, r.List())
	assert.True(t, r.Remove(10))
	assert.False(t, r.Remove(10))
	assert.Equal(t, []int64{30}, r.List())
}

func TestNotificator_BroadcastsAnalysisToChatsAndAdmin(t *testing.T) {
	sender := &fakeSender{}
	chats := NewChatRegistry()
	chats.Add(1)
	chats.Add(2)
	bus, _ := runNotificator(t, sender, chats, 99)

	analysis := models.Analysis{Token: cardToken(), Verdict: models.Verdict{Level: models.LevelHigh}}
	bus.Publish(events.Event{Topic: events.AnalysisComplete, Analysis: &analysis})

	require.Eventually(t, func() bool { return len(sender.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	got := sender.snapshot()
	assert.Equal(t, []int64{1, 2, 99}, []int64{got[0].chatID, got[1].chatID, got[2].chatID})
	assert.Equal(t, "Mint111", got[0].notification.Mint)
	assert.Contains(t, got[0].notification.Text, "Verdict: HIGH")
}

func TestNotificator_AdminIsNotMessagedTwice(t *testing.T) {
	sender := &fakeSender{}
	chats := NewChatRegistry()
	chats.Add(99)
	bus, _ := runNotificator(t, sender, chats, 99)

	plan := models.SnipePlan{Mint: "Mint111", Safe: true, AmountSOL: 0.1}
	bus.Publish(events.Event{Topic: events.SnipeReady, Plan: &plan})

	require.Eventually(t, func() bool { return len(sender.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, sender.snapshot(), 1)
}

func TestNotificator_MonitoringEventsGoToAdminOnly(t *testing.T) {
	sender := &fakeSender{}
	chats := NewChatRegistry()
	chats.Add(1)
	bus, _ := runNotificator(t, sender, chats, 99)

	bus.Publish(events.Event{Topic: events.MonitoringError, Err: errors.New("subscription lost")})
	bus.Publish(events.Event{Topic: events.MonitoringStopped})

	require.Eventually(t, func() bool { return len(sender.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	for _, s := range sender.snapshot() {
		assert.Equal(t, int64(99), s.chatID)
	}
	assert.Equal(t, "❌ Token monitoring error: subscription lost", sender.snapshot()[0].notification.Text)
}

func TestNotificator_ScanProgressGoesToAdmin(t *testing.T) {
	sender := &fakeSender{}
	chats := NewChatRegistry()
	chats.Add(1)
	bus, _ := runNotificator(t, sender, chats, 99)

	bus.Publish(events.Event{Topic: events.AnalysisProgress, Done: 1, Total: 2})
	bus.Publish(events.Event{Topic: events.AnalysisProgress, Done: 2, Total: 2})

	require.Eventually(t, func() bool { return len(sender.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	got := sender.snapshot()
	assert.Equal(t, sent{99, models.Notification{Text: "📊 Analysis progress: 1/2"}}, got[0])
	assert.Equal(t, sent{99, models.Notification{Text: "📊 Analysis progress: 2/2"}}, got[1])
}

func TestNotificator_NoAdminConfigured(t *testing.T) {
	sender := &fakeSender{}
	chats := NewChatRegistry()
	chats.Add(1)
	bus, _ := runNotificator(t, sender, chats, 0)

	bus.Publish(events.Event{Topic: events.MonitoringStarted})
	plan := models.SnipePlan{Mint: "Mint111"}
	bus.Publish(events.Event{Topic: events.SnipeReady, Plan: &plan})

	require.Eventually(t, func() bool { return len(sender.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), sender.snapshot()[0].chatID)
}

func TestNotificator_SenderFailuresDoNotStopDelivery(t *testing.T) {
	sender := &fakeSender{failFor: map[int64]bool{1: true}, panicOn: 2}
	chats := NewChatRegistry()
	chats.Add(1)
	chats.Add(2)
	chats.Add(3)
	bus, m := runNotificator(t, sender, chats, 0)

	analysis := models.Analysis{Token: cardToken()}
	bus.Publish(events.Event{Topic: events.AnalysisComplete, Analysis: &analysis})

	require.Eventually(t, func() bool { return len(sender.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(3), sender.snapshot()[0].chatID)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.NotificationsSent.WithLabelValues("error")) == 1
	}, time.Second, 5*time.Millisecond)
}
