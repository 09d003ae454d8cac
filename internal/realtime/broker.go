package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"taskpulse-backend/internal/tasks"
)

// Broker is an in-process Source used with the memory store. Publish fans an
// event out to every open subscription; a subscriber that is not keeping up
// loses events rather than stalling the publisher.
type Broker struct {
	mu     sync.Mutex
	subs   map[*brokerSub]struct{}
	buffer int
	logger logrus.FieldLogger
}

func NewBroker(logger logrus.FieldLogger) *Broker {
	return &Broker{
		subs:   make(map[*brokerSub]struct{}),
		buffer: 16,
		logger: logger,
	}
}

func (b *Broker) Subscribe(ctx context.Context) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &brokerSub{broker: b, events: make(chan ChangeEvent, b.buffer)}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

func (b *Broker) Publish(ev ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		select {
		case sub.events <- ev:
		default:
			b.logger.WithField("type", ev.Kind).Warn("subscriber buffer full, dropping change event")
		}
	}
}

// Subscribers reports the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broker) remove(sub *brokerSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.events)
	}
}

type brokerSub struct {
	broker *Broker
	events chan ChangeEvent
}

func (s *brokerSub) Events() <-chan ChangeEvent { return s.events }

func (s *brokerSub) Close() error {
	s.broker.remove(s)
	return nil
}

// PublishTaskChange adapts tasks.MemoryStore change callbacks to Publish.
func (b *Broker) PublishTaskChange(op string, record, old *tasks.Task) {
	ev := ChangeEvent{Kind: Kind(op)}
	var err error
	if record != nil {
		if ev.Record, err = json.Marshal(record); err != nil {
			b.logger.WithError(err).Error("encode change record")
			return
		}
	}
	if old != nil {
		if ev.OldRecord, err = json.Marshal(old); err != nil {
			b.logger.WithError(err).Error("encode change old_record")
			return
		}
	}
	b.Publish(ev)
}
