package event

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Handler func(ctx context.Context, event Event)

type Bus interface {
	// Publish delivers an event to all subscribed handlers
	Publish(ctx context.Context, payload Payload)

	// Subscribe registers a handler for all subsequently published events
	Subscribe(handler Handler)
}

type memoryBus struct {
	log *logrus.Entry

	mu       sync.RWMutex
	handlers []Handler
}

// NewMemoryBus returns a Bus delivering events synchronously in-process.
func NewMemoryBus() Bus {
	return &memoryBus{
		log: logrus.StandardLogger().WithField("type", "event/bus/memory"),
	}
}

func (b *memoryBus) Publish(ctx context.Context, payload Payload) {
	event := Event{
		Id:        uuid.New(),
		Timestamp: time.Now(),
		Payload:   payload,
	}

	b.log.WithFields(logrus.Fields{
		"event": event.Id,
		"kind":  payload.Kind(),
	}).Debug("publishing event")

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, event)
	}
}

func (b *memoryBus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = append(b.handlers, handler)
}
