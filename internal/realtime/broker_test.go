package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskpulse-backend/internal/tasks"
)

func TestBroker_FanOut(t *testing.T) {
	b := NewBroker(quietLogger())
	ctx := context.Background()

	s1, err := b.Subscribe(ctx)
	require.NoError(t, err)
	s2, err := b.Subscribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Subscribers())

	b.Publish(ChangeEvent{Kind: KindInsert})
	for _, s := range []Subscription{s1, s2} {
		select {
		case ev := <-s.Events():
			assert.Equal(t, KindInsert, ev.Kind)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	require.NoError(t, s1.Close())
	require.NoError(t, s1.Close())
	assert.Equal(t, 1, b.Subscribers())

	_, open := <-s1.Events()
	assert.False(t, open)
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker(quietLogger())
	sub, err := b.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(ChangeEvent{Kind: KindUpdate})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestBroker_SubscribeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBroker(quietLogger()).Subscribe(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBroker_PublishTaskChange(t *testing.T) {
	b := NewBroker(quietLogger())
	sub, err := b.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	old := &tasks.Task{ID: "t-1", Title: "Old", Status: tasks.StatusPending}
	b.PublishTaskChange(tasks.OpDelete, nil, old)

	ev := <-sub.Events()
	assert.Equal(t, KindDelete, ev.Kind)
	assert.Nil(t, ev.Record)
	assert.Equal(t, "t-1", ev.RowID())
}
