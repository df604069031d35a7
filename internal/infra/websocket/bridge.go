package websocket

import (
	"context"

	"github.com/seiforesti/data-wave-sub013/internal/app/stream"
)

// Bridge feeds the update stream into the hub. Every event lands on the
// firehose channel; events bound to a run also land on that run's
// channel. Subscribers joining the firehose get the buffered snapshot
// replayed first.
type Bridge struct {
	hub    *Hub
	stream *stream.Stream

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewBridge creates a new Bridge and installs the snapshot replay.
func NewBridge(hub *Hub, st *stream.Stream) *Bridge {
	b := &Bridge{
		hub:    hub,
		stream: st,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	hub.SetReplayFunc(b.replay)
	return b
}

// Start forwards stream events until Stop is called or ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) {
	events, cancel := b.stream.Subscribe()

	go func() {
		defer close(b.doneCh)
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				b.hub.BroadcastEvent(ChannelEvents, evt)
				if evt.RunID != "" {
					b.hub.BroadcastEvent(MakeRunChannel(evt.RunID), evt)
				}
			}
		}
	}()
}

// Stop stops forwarding.
func (b *Bridge) Stop() {
	close(b.stopCh)
	<-b.doneCh
}

// replay returns the buffered events a fresh subscriber catches up with.
func (b *Bridge) replay(channel string) []*Message {
	channelType, runID := ParseChannel(channel)

	var msgs []*Message
	for _, evt := range b.stream.Snapshot() {
		if channel != ChannelEvents {
			if channelType != ChannelTypeRun || evt.RunID != runID {
				continue
			}
		}
		msgs = append(msgs, NewMessage(MessageTypeEvent).WithChannel(channel).WithData(evt))
	}
	return msgs
}
