package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rayscout/rayscout/internal/models"
)

type Topic string

const (
	NewToken          Topic = "new_token"
	AnalysisComplete  Topic = "analysis_complete"
	AnalysisProgress  Topic = "analysis_progress"
	BatchComplete     Topic = "batch_complete"
	SnipeReady        Topic = "snipe_ready"
	MonitoringStarted Topic = "monitoring_started"
	MonitoringStopped Topic = "monitoring_stopped"
	MonitoringError   Topic = "monitoring_error"
)

// Event is the payload delivered to subscribers. Only the fields relevant to the topic are set.
type Event struct {
	Topic    Topic
	Token    *models.TokenRecord
	Analysis *models.Analysis
	Analyses []models.Analysis
	Plan     *models.SnipePlan
	Done     int
	Total    int
	Err      error
}

type Handler func(Event)

// Bus is a typed publish/subscribe hub. Handlers run synchronously on the publisher's
// goroutine, so slow handlers must hand work off themselves.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic]map[uint64]Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Topic]map[uint64]Handler)}
}

// Subscribe registers a handler and returns the function that removes it.
// Calling the returned function more than once is safe.
func (b *Bus) Subscribe(topic Topic, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]Handler)
	}
	b.subs[topic][id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every handler subscribed to ev.Topic at the time of the call.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[ev.Topic]))
	for _, h := range b.subs[ev.Topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// SubscriberCount returns the number of handlers attached to topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

const (
	waitPending int32 = iota
	waitFired
	waitExpired
)

// WaitOnce attaches a one-shot listener to topic. The returned channel receives the first
// event and is then closed; if timeout elapses first the listener is detached and the
// channel is closed without a value. An event arriving after detachment is ignored.
func (b *Bus) WaitOnce(topic Topic, timeout time.Duration) <-chan Event {
	out := make(chan Event, 1)
	var state atomic.Int32
	var unsubscribe func()
	var timer *time.Timer
	ready := make(chan struct{})

	unsubscribe = b.Subscribe(topic, func(ev Event) {
		if !state.CompareAndSwap(waitPending, waitFired) {
			return
		}
		<-ready
		timer.Stop()
		unsubscribe()
		out <- ev
		close(out)
	})

	timer = time.AfterFunc(timeout, func() {
		if !state.CompareAndSwap(waitPending, waitExpired) {
			return
		}
		unsubscribe()
		close(out)
	})
	close(ready)

	return out
}
