package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lengoman/grpc-hub/internal/registry"
)

func TestSubscribe_SendsConnectionEventFirst(t *testing.T) {
	b := New("hello", 8, nil)
	sub := b.Subscribe()
	defer sub.Close()

	select {
	case evt := <-sub.Events():
		assert.Equal(t, registry.EventConnection, evt.Type)
		assert.Equal(t, "hello", evt.Greeting)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connection event")
	}
}

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	b := New("", 8, nil)
	sub1 := b.Subscribe()
	defer sub1.Close()
	sub2 := b.Subscribe()
	defer sub2.Close()

	<-sub1.Events()
	<-sub2.Events()

	b.Publish(registry.Event{Type: registry.EventServiceRegistered, ServiceID: "abc"})

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case evt := <-sub.Events():
			assert.Equal(t, "abc", evt.ServiceID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for published event")
		}
	}
}

func TestPublish_SequenceNumbersAreMonotonic(t *testing.T) {
	b := New("", 8, nil)
	sub := b.Subscribe()
	defer sub.Close()

	first := <-sub.Events()

	b.Publish(registry.Event{Type: registry.EventServiceRegistered})
	b.Publish(registry.Event{Type: registry.EventServiceUnregistered})

	second := <-sub.Events()
	third := <-sub.Events()

	require.True(t, second.Seq > first.Seq)
	require.True(t, third.Seq > second.Seq)
}

func TestPublish_DropsOnFullBufferWithoutBlocking(t *testing.T) {
	b := New("", 1, nil)
	sub := b.Subscribe()
	defer sub.Close()

	<-sub.Events() // drain the connection event

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(registry.Event{Type: registry.EventServiceRegistered})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}
}

func TestClose_RemovesSubscriber(t *testing.T) {
	b := New("", 8, nil)
	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())
	sub.Close()
	assert.Equal(t, 0, b.SubscriberCount())
}
