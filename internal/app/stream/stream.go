// Package stream implements the bounded real-time update stream: a
// fixed-capacity ring buffer of lifecycle and discovery events with
// best-effort fan-out to subscribers.
package stream

import (
	"sync"
	"time"

	"github.com/seiforesti/data-wave-sub013/internal/metrics"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

// EventType identifies what happened.
type EventType string

const (
	EventScanProgress      EventType = "scan_progress"
	EventScanCompleted     EventType = "scan_completed"
	EventScanFailed        EventType = "scan_failed"
	EventScanCancelled     EventType = "scan_cancelled"
	EventIssueDetected     EventType = "issue_detected"
	EventScheduleTriggered EventType = "schedule_triggered"
	EventRunStale          EventType = "run_stale"
)

// Event is one entry in the update stream. Seq is globally increasing;
// events for the same run are published in order, events across runs
// carry no relative ordering guarantee.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Relayed marks events that arrived from another instance over the
	// relay. The relay skips them on the way out to avoid loops.
	Relayed bool `json:"-"`
}

// DefaultCapacity is the ring size when none is configured.
const DefaultCapacity = 50

// subscriberBuffer is the per-subscriber channel depth. A subscriber
// that falls further behind loses events rather than blocking publishers.
const subscriberBuffer = 64

// Stream is the bounded, ordered event feed.
type Stream struct {
	mu       sync.RWMutex
	buf      []Event
	capacity int
	start    int // index of oldest event
	size     int
	seq      uint64

	nextSubID   int
	subscribers map[int]chan Event

	logger *logger.Logger
}

// New creates a stream with the given ring capacity.
func New(capacity int, log *logger.Logger) *Stream {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Stream{
		buf:         make([]Event, capacity),
		capacity:    capacity,
		subscribers: make(map[int]chan Event),
		logger:      log.With("component", "stream"),
	}
}

// Publish appends an event to the ring and fans it out. Never blocks:
// subscribers whose buffers are full lose the event.
func (s *Stream) Publish(evtType EventType, runID string, data any) Event {
	return s.publish(evtType, runID, data, false)
}

// PublishRelayed appends an event received from another instance.
func (s *Stream) PublishRelayed(evtType EventType, runID string, data any) Event {
	return s.publish(evtType, runID, data, true)
}

func (s *Stream) publish(evtType EventType, runID string, data any, relayed bool) Event {
	s.mu.Lock()

	s.seq++
	evt := Event{
		Seq:       s.seq,
		Type:      evtType,
		RunID:     runID,
		Data:      data,
		Timestamp: time.Now(),
		Relayed:   relayed,
	}

	if s.size < s.capacity {
		s.buf[(s.start+s.size)%s.capacity] = evt
		s.size++
	} else {
		// Ring full: overwrite the oldest.
		s.buf[s.start] = evt
		s.start = (s.start + 1) % s.capacity
	}

	subs := make([]chan Event, 0, len(s.subscribers))
	for _, ch := range s.subscribers {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	metrics.StreamEventsTotal.WithLabelValues(string(evtType)).Inc()

	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
			metrics.StreamDroppedTotal.Inc()
		}
	}

	return evt
}

// Snapshot returns the buffered events, oldest first. Used by polling
// clients that cannot hold a WebSocket open.
func (s *Stream) Snapshot() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, 0, s.size)
	for i := 0; i < s.size; i++ {
		out = append(out, s.buf[(s.start+i)%s.capacity])
	}
	return out
}

// SnapshotRun returns the buffered events for one run, oldest first.
// Backs the per-run log endpoint.
func (s *Stream) SnapshotRun(runID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, 0)
	for i := 0; i < s.size; i++ {
		evt := s.buf[(s.start+i)%s.capacity]
		if evt.RunID == runID {
			out = append(out, evt)
		}
	}
	return out
}

// Subscribe registers a new subscriber. The returned cancel function
// must be called to release the subscription. The channel is never
// closed: publish fans out outside the lock, so closing here could
// race an in-flight send. Cancelled subscribers stop receiving and
// the channel is collected once the reader drops it.
func (s *Stream) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscribers.
func (s *Stream) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
