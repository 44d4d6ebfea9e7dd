package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/interfaces"
	"github.com/ternarybob/cavitas/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (r *recorder) handle(ctx context.Context, event interfaces.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) snapshot() []interfaces.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]interfaces.Event(nil), r.events...)
}

func TestService_DeliversInPublishOrder(t *testing.T) {
	svc := NewService(arbor.NewLogger(), 0)
	rec := &recorder{}
	require.NoError(t, svc.SubscribeAll(rec.handle))

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		require.NoError(t, svc.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventJobsListChanged,
			Payload: models.JobsListPayload{IDs: []string{string(rune('a' + i%26))}},
		}))
	}
	require.NoError(t, svc.Close())

	events := rec.snapshot()
	require.Len(t, events, 50)
	for i, event := range events {
		payload := event.Payload.(models.JobsListPayload)
		assert.Equal(t, string(rune('a'+i%26)), payload.IDs[0])
		assert.NotEmpty(t, event.ID)
		assert.False(t, event.Timestamp.IsZero())
	}
}

func TestService_SubscribeFiltersByType(t *testing.T) {
	svc := NewService(arbor.NewLogger(), 0)
	expired := &recorder{}
	require.NoError(t, svc.Subscribe(interfaces.EventJobExpired, expired.handle))

	ctx := context.Background()
	require.NoError(t, svc.Publish(ctx, interfaces.Event{Type: interfaces.EventServerStatus, Payload: models.ServerStatusPayload{Up: true}}))
	require.NoError(t, svc.Publish(ctx, interfaces.Event{Type: interfaces.EventJobExpired, Payload: models.JobEventPayload{JobID: "x"}}))
	require.NoError(t, svc.Close())

	events := expired.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, interfaces.EventJobExpired, events[0].Type)
}

func TestService_PublishDoesNotWaitForHandlers(t *testing.T) {
	svc := NewService(arbor.NewLogger(), 1)
	release := make(chan struct{})
	require.NoError(t, svc.SubscribeAll(func(ctx context.Context, event interfaces.Event) error {
		<-release
		return nil
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventServerStatus})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	close(release)
	require.NoError(t, svc.Close())
}

func TestService_HandlerPanicDoesNotStopQueue(t *testing.T) {
	svc := NewService(arbor.NewLogger(), 0)
	rec := &recorder{}
	calls := 0
	require.NoError(t, svc.SubscribeAll(func(ctx context.Context, event interfaces.Event) error {
		calls++
		if calls == 1 {
			panic("first event")
		}
		return rec.handle(ctx, event)
	}))

	ctx := context.Background()
	require.NoError(t, svc.Publish(ctx, interfaces.Event{Type: interfaces.EventJobError}))
	require.NoError(t, svc.Publish(ctx, interfaces.Event{Type: interfaces.EventJobCompleted}))
	require.NoError(t, svc.Close())

	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, interfaces.EventJobCompleted, events[0].Type)
}

func TestService_Closed(t *testing.T) {
	svc := NewService(arbor.NewLogger(), 0)
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())

	assert.ErrorIs(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventServerStatus}), ErrClosed)
	assert.ErrorIs(t, svc.SubscribeAll(func(context.Context, interfaces.Event) error { return nil }), ErrClosed)
	assert.Error(t, NewService(arbor.NewLogger(), 0).SubscribeAll(nil))
}

func TestLoggerSubscriber(t *testing.T) {
	subscriber := NewLoggerSubscriber(arbor.NewLogger())
	ctx := context.Background()

	for _, payload := range []interface{}{
		models.JobEventPayload{JobID: "job-1", Status: models.JobStatusCompleted},
		models.ServerStatusPayload{Up: false},
		models.JobsListPayload{IDs: []string{"a", "b"}},
		nil,
	} {
		assert.NoError(t, subscriber(ctx, interfaces.Event{Type: interfaces.EventJobCompleted, Payload: payload}))
	}
}
