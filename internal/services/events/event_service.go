package events

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/common"
	"github.com/ternarybob/cavitas/internal/interfaces"
)

// DefaultQueueSize is the per-subscriber buffer used when none is given.
const DefaultQueueSize = 256

// ErrClosed is returned when publishing or subscribing after Close.
var ErrClosed = errors.New("event service closed")

type queuedEvent struct {
	ctx   context.Context
	event interfaces.Event
}

type subscription struct {
	eventType interfaces.EventType // empty for SubscribeAll
	handler   interfaces.EventHandler
	queue     chan queuedEvent
}

// Service implements EventService. Each subscription owns a buffered queue
// drained by one goroutine, so a subscriber sees events in publish order and
// Publish never waits on a handler. A full queue drops the event.
type Service struct {
	mu            sync.RWMutex
	subscriptions []*subscription
	closed        bool
	queueSize     int
	wg            sync.WaitGroup
	logger        arbor.ILogger
}

var _ interfaces.EventService = (*Service)(nil)

// NewService creates a new event service. queueSize <= 0 uses DefaultQueueSize.
func NewService(logger arbor.ILogger, queueSize int) *Service {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Service{
		queueSize: queueSize,
		logger:    logger,
	}
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if eventType == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	return s.subscribe(eventType, handler)
}

// SubscribeAll registers a handler for every event type
func (s *Service) SubscribeAll(handler interfaces.EventHandler) error {
	return s.subscribe("", handler)
}

func (s *Service) subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	sub := &subscription{
		eventType: eventType,
		handler:   handler,
		queue:     make(chan queuedEvent, s.queueSize),
	}
	s.subscriptions = append(s.subscriptions, sub)

	name := "event-subscriber:" + string(eventType)
	if eventType == "" {
		name = "event-subscriber:all"
	}
	s.wg.Add(1)
	common.SafeGo(s.logger, name, func() {
		defer s.wg.Done()
		for item := range sub.queue {
			s.deliver(sub, item)
		}
	})

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscriptions)).
		Msg("Event handler subscribed")

	return nil
}

// deliver runs one handler call; a panicking handler does not stop its queue.
func (s *Service) deliver(sub *subscription, item queuedEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("event_type", string(item.event.Type)).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("Event handler panicked")
		}
	}()

	if err := sub.handler(item.ctx, item.event); err != nil {
		s.logger.Error().
			Err(err).
			Str("event_type", string(item.event.Type)).
			Msg("Event handler failed")
	}
}

// Publish queues an event for all matching subscribers and returns immediately
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	if event.ID == "" {
		event.ID = common.NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	item := queuedEvent{ctx: context.WithoutCancel(ctx), event: event}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	delivered := 0
	for _, sub := range s.subscriptions {
		if sub.eventType != "" && sub.eventType != event.Type {
			continue
		}
		select {
		case sub.queue <- item:
			delivered++
		default:
			s.logger.Warn().
				Str("event_type", string(event.Type)).
				Str("event_id", event.ID).
				Msg("Subscriber queue full, event dropped")
		}
	}

	s.logger.Debug().
		Str("event_type", string(event.Type)).
		Int("subscriber_count", delivered).
		Msg("Publishing event")

	return nil
}

// Close stops accepting events and waits for queued events to be handled
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, sub := range s.subscriptions {
		close(sub.queue)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug().Msg("Event service closed")
	return nil
}
