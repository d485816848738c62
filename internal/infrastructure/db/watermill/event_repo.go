package watermilldb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/lockstep-labs/chand/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

const outputChannelBuffer = 256

var topics = []string{domain.ChannelTopic, domain.SwapTopic}

type subscriber struct {
	topic   string
	handler func(events []domain.Event)
}

type eventRepository struct {
	pubsub *gochannel.GoChannel
	cancel context.CancelFunc
	wg     *sync.WaitGroup

	subscribers    map[string][]subscriber // topic -> subscribers
	subscriberLock *sync.RWMutex
}

// NewEventRepository returns an in-process event bus. Every topic is
// subscribed at creation so that no event published afterwards is lost,
// and the handlers of a topic see its events in publish order.
func NewEventRepository(config ...interface{}) (domain.EventRepository, error) {
	if len(config) > 0 {
		return nil, fmt.Errorf("watermill event store takes no config")
	}

	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: outputChannelBuffer},
		newLogger(log.StandardLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	repo := &eventRepository{
		pubsub:         pubsub,
		cancel:         cancel,
		wg:             &sync.WaitGroup{},
		subscribers:    make(map[string][]subscriber),
		subscriberLock: &sync.RWMutex{},
	}

	for _, topic := range topics {
		messages, err := pubsub.Subscribe(ctx, topic)
		if err != nil {
			cancel()
			//nolint:errcheck
			pubsub.Close()
			return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
		}
		repo.wg.Add(1)
		go repo.listen(topic, messages)
	}

	return repo, nil
}

func (e *eventRepository) Publish(ctx context.Context, events ...domain.Event) error {
	byTopic := make(map[string][]domain.Event)
	for _, event := range events {
		byTopic[event.GetTopic()] = append(byTopic[event.GetTopic()], event)
	}
	for topic, events := range byTopic {
		msgs, err := toWatermillMessages(ctx, events)
		if err != nil {
			return err
		}
		if err := e.pubsub.Publish(topic, msgs...); err != nil {
			return fmt.Errorf("failed to publish events to topic %s: %w", topic, err)
		}
	}
	return nil
}

func (e *eventRepository) RegisterEventsHandler(
	topic string, handler func(events []domain.Event),
) {
	e.subscriberLock.Lock()
	defer e.subscriberLock.Unlock()

	e.subscribers[topic] = append(e.subscribers[topic], subscriber{
		topic:   topic,
		handler: handler,
	})
}

func (e *eventRepository) ClearRegisteredHandlers(topics ...string) {
	e.subscriberLock.Lock()
	defer e.subscriberLock.Unlock()

	if len(topics) == 0 {
		e.subscribers = make(map[string][]subscriber)
		return
	}

	for _, topic := range topics {
		delete(e.subscribers, topic)
	}
}

func (e *eventRepository) Close() {
	e.cancel()
	//nolint:errcheck
	e.pubsub.Close()
	e.wg.Wait()
}

func (e *eventRepository) listen(topic string, messages <-chan *message.Message) {
	defer e.wg.Done()

	for msg := range messages {
		event, err := deserializeEvent(msg.Payload)
		msg.Ack()
		if err != nil {
			log.WithError(err).Warnf(
				"failed to deserialize event on topic %s: %s", topic, string(msg.Payload),
			)
			continue
		}
		e.dispatch(topic, []domain.Event{event})
	}
}

func (e *eventRepository) dispatch(topic string, events []domain.Event) {
	e.subscriberLock.RLock()
	handlers := make([]subscriber, len(e.subscribers[topic]))
	copy(handlers, e.subscribers[topic])
	e.subscriberLock.RUnlock()

	for _, subscriber := range handlers {
		subscriber.handler(events)
	}
}

func toWatermillMessages(
	ctx context.Context, events []domain.Event,
) ([]*message.Message, error) {
	watermillMessages := make([]*message.Message, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize event %s: %w", event.GetType(), err)
		}

		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set("type", event.GetType().String())
		msg.Metadata.Set("id", event.GetId())
		msg.SetContext(ctx)
		watermillMessages = append(watermillMessages, msg)
	}

	return watermillMessages, nil
}

func deserializeEvent(buf []byte) (domain.Event, error) {
	var eventType struct {
		Type domain.EventType
	}

	if err := json.Unmarshal(buf, &eventType); err != nil {
		return nil, err
	}

	switch eventType.Type {
	case domain.EventTypeAnchored:
		var event = domain.Anchored{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeFundsAddedToChannel:
		var event = domain.FundsAddedToChannel{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeSettled:
		var event = domain.Settled{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeSettledSubset:
		var event = domain.SettledSubset{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeDisputeStarted:
		var event = domain.DisputeStarted{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeShardStateChanged:
		var event = domain.ShardStateChanged{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeSwapped:
		var event = domain.Swapped{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeMultichainRedeemed:
		var event = domain.MultichainRedeemed{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeSwapRefunded:
		var event = domain.SwapRefunded{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	}

	return nil, fmt.Errorf("unknown event type %d", eventType.Type)
}
