package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/seiforesti/data-wave-sub013/internal/app/stream"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

// EventChannel is the Redis pub/sub channel carrying lifecycle events
// between service instances.
const EventChannel = "scans:events"

// EventRelay mirrors the in-process event stream over Redis pub/sub so
// monitoring clients connected to any instance see events produced by
// all of them. Events arriving from the channel are re-published locally
// with relayed=true; those are never forwarded again.
type EventRelay struct {
	client *Client
	stream *stream.Stream
	logger *logger.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// relayEnvelope is the wire form of one event.
type relayEnvelope struct {
	Type      string `json:"type"`
	RunID     string `json:"run_id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NewEventRelay creates a new EventRelay.
func NewEventRelay(client *Client, st *stream.Stream, log *logger.Logger) *EventRelay {
	return &EventRelay{
		client: client,
		stream: st,
		logger: log.With("component", "event_relay"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start forwards local events to the channel and injects remote ones
// into the local stream until Stop is called.
func (r *EventRelay) Start(ctx context.Context) {
	events, cancel := r.stream.Subscribe()
	sub := r.client.Client().Subscribe(ctx, EventChannel)

	go func() {
		defer close(r.doneCh)
		defer cancel()
		defer sub.Close()

		remote := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				if evt.Relayed {
					continue
				}
				if err := r.publish(ctx, evt); err != nil {
					r.logger.Warn("failed to relay event", "type", string(evt.Type), "error", err)
				}
			case msg, ok := <-remote:
				if !ok {
					return
				}
				var env relayEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.logger.Warn("malformed relayed event", "error", err)
					continue
				}
				r.stream.PublishRelayed(stream.EventType(env.Type), env.RunID, env.Data)
			}
		}
	}()
}

// Stop stops the relay.
func (r *EventRelay) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *EventRelay) publish(ctx context.Context, evt stream.Event) error {
	payload, err := json.Marshal(relayEnvelope{
		Type:      string(evt.Type),
		RunID:     evt.RunID,
		Data:      evt.Data,
		Timestamp: evt.Timestamp.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return r.client.Client().Publish(ctx, EventChannel, payload).Err()
}
