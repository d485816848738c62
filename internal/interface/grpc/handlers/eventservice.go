package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	chandv1 "github.com/lockstep-labs/chand/api-spec/chand/v1"
	"github.com/lockstep-labs/chand/internal/core/application"
	log "github.com/sirupsen/logrus"
)

type eventHandler struct {
	svc       application.Service
	heartbeat time.Duration
	broker    *broker[*chandv1.GetEventStreamResponse]
}

// NewEventServiceHandler forwards the gateway events to the stream
// subscribers until the service's events channel is closed.
func NewEventServiceHandler(
	svc application.Service, heartbeat time.Duration,
) chandv1.EventServiceServer {
	h := &eventHandler{
		svc:       svc,
		heartbeat: heartbeat,
		broker:    newBroker[*chandv1.GetEventStreamResponse](),
	}

	go h.listenToEvents()

	return h
}

func (h *eventHandler) GetEventStream(
	req *chandv1.GetEventStreamRequest, stream chandv1.EventService_GetEventStreamServer,
) error {
	listener := newListener[*chandv1.GetEventStreamResponse](uuid.NewString(), req.Topics)

	h.broker.pushListener(listener)
	defer h.broker.removeListener(listener.id)

	// create a Timer that will fire after one heartbeat interval
	timer := time.NewTimer(h.heartbeat)
	defer timer.Stop()

	// helper to safely reset the timer
	resetTimer := func() {
		if !timer.Stop() {
			// drain if it already fired
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(h.heartbeat)
	}

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case ev := <-listener.ch:
			if err := stream.Send(ev); err != nil {
				return err
			}
			resetTimer()
		case <-timer.C:
			hb := &chandv1.GetEventStreamResponse{Heartbeat: &chandv1.Heartbeat{}}
			if err := stream.Send(hb); err != nil {
				return err
			}
			resetTimer()
		}
	}
}

func (h *eventHandler) listenToEvents() {
	channel := h.svc.GetEventsChannel(context.Background())
	for event := range channel {
		ev, topics := toEvent(event)
		if ev == nil {
			continue
		}
		if !h.broker.hasListeners() {
			continue
		}

		count := h.broker.publish(&chandv1.GetEventStreamResponse{Event: ev}, topics)
		log.Debugf("forwarded event %s to %d listeners", ev.Type, count)
	}
}
