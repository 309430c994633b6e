package notificator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/rayscout/rayscout/internal/events"
	"github.com/rayscout/rayscout/internal/metrics"
	"github.com/rayscout/rayscout/internal/models"
	"github.com/rayscout/rayscout/pkg/logger"
)

// QueueSize bounds the outgoing messages waiting for delivery
const QueueSize = 256

// ChatRegistry is the set of chats receiving broadcasts. It lives in memory;
// chats register again with /start after a restart.
type ChatRegistry struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

func NewChatRegistry() *ChatRegistry {
	return &ChatRegistry{ids: make(map[int64]struct{})}
}

// Add registers a chat and reports whether it was new.
func (r *ChatRegistry) Add(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[chatID]; ok {
		return false
	}
	r.ids[chatID] = struct{}{}
	return true
}

// Remove unregisters a chat and reports whether it was registered.
func (r *ChatRegistry) Remove(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[chatID]; !ok {
		return false
	}
	delete(r.ids, chatID)
	return true
}

// List returns the registered chats in ascending order.
func (r *ChatRegistry) List() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.ids))
	for id := range r.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type outgoing struct {
	adminOnly    bool
	notification models.Notification
}

// Notificator turns bus events into chat messages. Bus handlers only enqueue;
// Run delivers, so a slow chat API never blocks the publisher.
type Notificator struct {
	logger      *logger.Logger
	sender      models.NotificationService
	chats       *ChatRegistry
	adminChatID int64
	metrics     *metrics.ScoutMetrics

	queue chan outgoing
}

func NewNotificator(
	logger *logger.Logger,
	sender models.NotificationService,
	chats *ChatRegistry,
	adminChatID int64,
	metrics *metrics.ScoutMetrics,
) *Notificator {
	return &Notificator{
		logger:      logger,
		sender:      sender,
		chats:       chats,
		adminChatID: adminChatID,
		metrics:     metrics,
		queue:       make(chan outgoing, QueueSize),
	}
}

// Subscribe attaches the notificator to the bus and returns the detach function.
func (n *Notificator) Subscribe(bus *events.Bus) (unsubscribe func()) {
	unsubs := []func(){
		bus.Subscribe(events.AnalysisComplete, func(ev events.Event) {
			if ev.Analysis == nil {
				return
			}
			n.enqueue(outgoing{notification: models.Notification{
				Text: FormatAnalysis(*ev.Analysis),
				Mint: ev.Analysis.Token.BaseAsset.Address,
			}})
		}),
		bus.Subscribe(events.SnipeReady, func(ev events.Event) {
			if ev.Plan == nil {
				return
			}
			n.enqueue(outgoing{notification: models.Notification{Text: FormatSnipePlan(*ev.Plan)}})
		}),
		bus.Subscribe(events.AnalysisProgress, func(ev events.Event) {
			if ev.Total == 0 {
				return
			}
			n.enqueue(outgoing{adminOnly: true, notification: models.Notification{Text: FormatProgress(ev.Done, ev.Total)}})
		}),
		bus.Subscribe(events.MonitoringError, func(ev events.Event) {
			n.enqueue(outgoing{adminOnly: true, notification: models.Notification{Text: FormatMonitoringError(ev.Err)}})
		}),
		bus.Subscribe(events.MonitoringStarted, func(events.Event) {
			n.enqueue(outgoing{adminOnly: true, notification: models.Notification{Text: "✅ Token monitoring started"}})
		}),
		bus.Subscribe(events.MonitoringStopped, func(events.Event) {
			n.enqueue(outgoing{adminOnly: true, notification: models.Notification{Text: "⏹️ Token monitoring stopped"}})
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (n *Notificator) enqueue(out outgoing) {
	select {
	case n.queue <- out:
	default:
		n.logger.Warn("Notification queue full, dropping message", "adminOnly", out.adminOnly)
	}
}

// Run delivers queued messages until ctx is cancelled.
func (n *Notificator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case out := <-n.queue:
			n.deliver(ctx, out)
		}
	}
}

func (n *Notificator) recipients(adminOnly bool) []int64 {
	if adminOnly {
		if n.adminChatID == 0 {
			return nil
		}
		return []int64{n.adminChatID}
	}
	ids := n.chats.List()
	if n.adminChatID != 0 {
		for _, id := range ids {
			if id == n.adminChatID {
				return ids
			}
		}
		ids = append(ids, n.adminChatID)
	}
	return ids
}

func (n *Notificator) deliver(ctx context.Context, out outgoing) {
	for _, chatID := range n.recipients(out.adminOnly) {
		chatID := chatID
		n.safeCall(func() {
			err := n.sender.SendNotification(ctx, chatID, out.notification)
			if err != nil {
				n.logger.Error("Failed to send notification", "chatID", chatID, "error", err)
			}
			n.countSent(err)
		}, fmt.Sprintf("notify chat %d", chatID))
	}
}

func (n *Notificator) countSent(err error) {
	if n.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	n.metrics.NotificationsSent.WithLabelValues(result).Inc()
}

// safeCall runs a function with panic recovery
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}
