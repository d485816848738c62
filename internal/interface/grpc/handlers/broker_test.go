package handlers

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroker(t *testing.T) {
	t.Parallel()

	t.Run("newListener", func(t *testing.T) {
		topics := []string{"topic1", "topic2", "TOPIC3"}
		listener := newListener[string]("test-id", topics)

		require.NotNil(t, listener)
		require.Equal(t, "test-id", listener.id)
		require.NotNil(t, listener.ch)
		require.Len(t, listener.topics, 3)
		require.Contains(t, listener.topics, "topic3")
	})

	t.Run("includesAny", func(t *testing.T) {
		listener := newListener[string]("test-id", []string{"topic1", "topic2"})

		require.True(t, listener.includesAny([]string{}))
		require.True(t, listener.includesAny([]string{"topic1"}))
		require.True(t, listener.includesAny([]string{"other", "TOPIC2"}))
		require.False(t, listener.includesAny([]string{"topic3"}))

		// no topics means every event
		all := newListener[string]("all", nil)
		require.True(t, all.includesAny([]string{"anything"}))
	})

	t.Run("push and remove listener", func(t *testing.T) {
		broker := newBroker[string]()
		listener := newListener[string]("test-id", []string{"topic1"})

		broker.pushListener(listener)
		listeners := broker.getListenersCopy()
		require.Len(t, listeners, 1)
		require.Equal(t, listener, listeners["test-id"])

		broker.removeListener("test-id")
		require.Empty(t, broker.getListenersCopy())

		// removing an unknown listener is a no-op
		broker.removeListener("unknown")
	})

	t.Run("publish filters by topic", func(t *testing.T) {
		broker := newBroker[string]()
		l1 := newListener[string]("id1", []string{"chan-a"})
		l2 := newListener[string]("id2", []string{"chan-b"})
		l3 := newListener[string]("id3", nil)
		broker.pushListener(l1)
		broker.pushListener(l2)
		broker.pushListener(l3)

		count := broker.publish("event-a", []string{"CHAN-A", "participant"})
		require.Equal(t, 2, count)

		select {
		case msg := <-l1.ch:
			require.Equal(t, "event-a", msg)
		case <-time.After(100 * time.Millisecond):
			require.Fail(t, "timeout waiting for message")
		}
		select {
		case msg := <-l3.ch:
			require.Equal(t, "event-a", msg)
		case <-time.After(100 * time.Millisecond):
			require.Fail(t, "timeout waiting for message")
		}
		require.Empty(t, l2.ch)
	})

	t.Run("publish drops event when listener is full", func(t *testing.T) {
		broker := newBroker[int]()
		listener := newListener[int]("full", nil)
		broker.pushListener(listener)

		for i := range cap(listener.ch) {
			require.Equal(t, 1, broker.publish(i, nil))
		}
		require.Zero(t, broker.publish(-1, nil))
		require.Len(t, listener.ch, cap(listener.ch))
	})

	t.Run("getListenersCopy", func(t *testing.T) {
		broker := newBroker[string]()
		require.Empty(t, broker.getListenersCopy())

		listener1 := newListener[string]("id1", []string{"topic1"})
		listener2 := newListener[string]("id2", []string{"topic2"})
		broker.pushListener(listener1)
		broker.pushListener(listener2)

		copy := broker.getListenersCopy()
		require.Len(t, copy, 2)

		// modifying the copy doesn't affect the broker
		delete(copy, "id1")
		require.Len(t, broker.getListenersCopy(), 2)
	})

	t.Run("hasListeners", func(t *testing.T) {
		broker := newBroker[string]()
		require.False(t, broker.hasListeners())
		broker.pushListener(newListener[string]("test-id", []string{"topic1"}))
		require.True(t, broker.hasListeners())
	})

	t.Run("formatTopic", func(t *testing.T) {
		require.Equal(t, "topic", formatTopic("TOPIC"))
		require.Equal(t, "topic", formatTopic(" Topic "))
		require.Equal(t, "my topic", formatTopic("  My Topic  "))
		require.Equal(t, "", formatTopic("   "))
	})

	t.Run("concurrent operations", func(t *testing.T) {
		const nbListeners = 20
		broker := newBroker[string]()
		var wg sync.WaitGroup
		wg.Add(nbListeners * 2)

		ch := make(chan string, nbListeners)

		go func() {
			for i := range nbListeners {
				go func(id int) {
					defer wg.Done()
					listenerId := fmt.Sprintf("id-%d", id)
					broker.pushListener(newListener[string](listenerId, []string{"topic1"}))
					broker.publish("msg", []string{"topic1"})
					ch <- listenerId
				}(i)
			}
		}()

		go func() {
			for range nbListeners {
				go func() {
					defer wg.Done()
					broker.removeListener(<-ch)
				}()
			}
		}()

		wg.Wait()
		require.Empty(t, broker.getListenersCopy())
	})
}
