package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Channel is the NOTIFY channel written by the tasks_notify_change trigger.
const Channel = "tasks_changes"

var ErrSubscribeTimeout = errors.New("timed out waiting for LISTEN acknowledgement")

// PQSource subscribes to task changes with LISTEN/NOTIFY. Every subscription
// owns its own listener connection, so one failing client never affects
// another.
type PQSource struct {
	connString     string
	logger         logrus.FieldLogger
	minReconnect   time.Duration
	maxReconnect   time.Duration
	listenTimeout  time.Duration
	eventsBuffered int
}

func NewPQSource(connString string, logger logrus.FieldLogger) *PQSource {
	return &PQSource{
		connString:     connString,
		logger:         logger,
		minReconnect:   time.Second,
		maxReconnect:   30 * time.Second,
		listenTimeout:  10 * time.Second,
		eventsBuffered: 16,
	}
}

func (s *PQSource) Subscribe(ctx context.Context) (Subscription, error) {
	log := s.logger.WithField("channel", Channel)

	listener := pq.NewListener(s.connString, s.minReconnect, s.maxReconnect,
		func(ev pq.ListenerEventType, err error) {
			switch ev {
			case pq.ListenerEventConnectionAttemptFailed:
				log.WithError(err).Warn("listener connection attempt failed")
			case pq.ListenerEventDisconnected:
				log.WithError(err).Warn("listener disconnected")
			case pq.ListenerEventReconnected:
				log.Info("listener reconnected")
			}
		})

	// Listen blocks until the server acknowledges, which may be never while
	// the database is unreachable.
	ack := make(chan error, 1)
	go func() { ack <- listener.Listen(Channel) }()

	timer := time.NewTimer(s.listenTimeout)
	defer timer.Stop()

	select {
	case err := <-ack:
		if err != nil {
			_ = listener.Close()
			return nil, errors.Wrap(err, "listen")
		}
	case <-timer.C:
		_ = listener.Close()
		return nil, ErrSubscribeTimeout
	case <-ctx.Done():
		_ = listener.Close()
		return nil, ctx.Err()
	}

	sub := &pqSubscription{
		listener: listener,
		events:   make(chan ChangeEvent, s.eventsBuffered),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		logger:   log,
	}
	go sub.pump()
	return sub, nil
}

type pqSubscription struct {
	listener *pq.Listener
	events   chan ChangeEvent
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
	logger   logrus.FieldLogger
}

func (s *pqSubscription) Events() <-chan ChangeEvent { return s.events }

func (s *pqSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.listener.Close()
		<-s.stopped
	})
	return err
}

func (s *pqSubscription) pump() {
	defer close(s.stopped)
	defer close(s.events)

	for {
		select {
		case <-s.done:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			var ev ChangeEvent
			if n == nil {
				// pq sends nil after re-establishing the connection.
				ev = ChangeEvent{Resync: true}
			} else {
				parsed, err := ParseNotification(n.Extra)
				if err != nil {
					s.logger.WithError(err).Warn("dropping malformed notification")
					continue
				}
				ev = parsed
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}
	}
}
