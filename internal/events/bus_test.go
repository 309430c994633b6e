package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rayscout/rayscout/internal/models"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()

	var got []string
	unsubscribe := bus.Subscribe(NewToken, func(ev Event) {
		got = append(got, ev.Token.Signature)
	})

	bus.Publish(Event{Topic: NewToken, Token: &models.TokenRecord{Signature: "sig-1"}})
	bus.Publish(Event{Topic: MonitoringStarted})
	unsubscribe()
	bus.Publish(Event{Topic: NewToken, Token: &models.TokenRecord{Signature: "sig-2"}})

	assert.Equal(t, []string{"sig-1"}, got)
	assert.Equal(t, 0, bus.SubscriberCount(NewToken))

	// double unsubscribe is harmless
	unsubscribe()
}

func TestBus_WaitOnce_FiresOnce(t *testing.T) {
	bus := NewBus()

	ch := bus.WaitOnce(NewToken, time.Second)
	require.Equal(t, 1, bus.SubscriberCount(NewToken))

	bus.Publish(Event{Topic: NewToken, Token: &models.TokenRecord{Signature: "first"}})
	bus.Publish(Event{Topic: NewToken, Token: &models.TokenRecord{Signature: "second"}})

	ev, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, "first", ev.Token.Signature)

	_, ok = <-ch
	assert.False(t, ok, "channel must be closed after the first delivery")
	assert.Equal(t, 0, bus.SubscriberCount(NewToken))
}

func TestBus_WaitOnce_TimeoutDetaches(t *testing.T) {
	bus := NewBus()

	ch := bus.WaitOnce(NewToken, 20*time.Millisecond)

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "expired wait must close without a value")
	case <-time.After(time.Second):
		t.Fatal("wait did not expire")
	}

	assert.Equal(t, 0, bus.SubscriberCount(NewToken))

	// a late event after detachment never reaches the waiter
	bus.Publish(Event{Topic: NewToken, Token: &models.TokenRecord{Signature: "late"}})
	_, ok := <-ch
	assert.False(t, ok)
}

func TestBus_WaitOnce_Independent(t *testing.T) {
	bus := NewBus()

	a := bus.WaitOnce(NewToken, time.Second)
	b := bus.WaitOnce(NewToken, time.Second)
	short := bus.WaitOnce(NewToken, 10*time.Millisecond)

	_, ok := <-short
	require.False(t, ok)

	bus.Publish(Event{Topic: NewToken, Token: &models.TokenRecord{Signature: "shared"}})

	evA := <-a
	evB := <-b
	assert.Equal(t, "shared", evA.Token.Signature)
	assert.Equal(t, "shared", evB.Token.Signature)
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.Subscribe(AnalysisProgress, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(Event{Topic: AnalysisProgress})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, count)
}
