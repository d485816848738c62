package handlers

import (
	"maps"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

type listener[T any] struct {
	id     string
	topics map[string]struct{}
	ch     chan T
	lock   *sync.RWMutex
}

func newListener[T any](id string, topics []string) *listener[T] {
	topicsMap := make(map[string]struct{})
	for _, topic := range topics {
		topicsMap[formatTopic(topic)] = struct{}{}
	}
	return &listener[T]{
		id:     id,
		topics: topicsMap,
		ch:     make(chan T, 100),
		lock:   &sync.RWMutex{},
	}
}

// includesAny returns true if the listener subscribed to all topics or to
// at least one of the given ones.
func (l *listener[T]) includesAny(topics []string) bool {
	l.lock.RLock()
	defer l.lock.RUnlock()
	if len(l.topics) == 0 || len(topics) == 0 {
		return true
	}

	for _, topic := range topics {
		if _, ok := l.topics[formatTopic(topic)]; ok {
			return true
		}
	}
	return false
}

// broker dispatches events to the listeners subscribed to their topics.
// It is safe for concurrent use.
type broker[T any] struct {
	lock      *sync.RWMutex
	listeners map[string]*listener[T]
}

func newBroker[T any]() *broker[T] {
	return &broker[T]{
		lock:      &sync.RWMutex{},
		listeners: make(map[string]*listener[T], 0),
	}
}

func (h *broker[T]) pushListener(l *listener[T]) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.listeners[l.id] = l
}

func (h *broker[T]) removeListener(id string) {
	h.lock.Lock()
	defer h.lock.Unlock()

	delete(h.listeners, id)
}

// publish sends ev to every listener interested in topics. A listener whose
// buffer is full misses the event rather than stalling the others.
func (h *broker[T]) publish(ev T, topics []string) int {
	h.lock.RLock()
	defer h.lock.RUnlock()

	count := 0
	for _, l := range h.listeners {
		if !l.includesAny(topics) {
			continue
		}
		select {
		case l.ch <- ev:
			count++
		default:
			log.WithField("listener", l.id).Warn("listener buffer is full, dropping event")
		}
	}
	return count
}

func (h *broker[T]) getListenersCopy() map[string]*listener[T] {
	h.lock.RLock()
	defer h.lock.RUnlock()

	listenersCopy := make(map[string]*listener[T], len(h.listeners))
	maps.Copy(listenersCopy, h.listeners)
	return listenersCopy
}

func (h *broker[T]) hasListeners() bool {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.listeners) > 0
}

func formatTopic(topic string) string {
	return strings.Trim(strings.ToLower(topic), " ")
}
