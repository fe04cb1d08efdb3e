package chat

import (
	"bufio"
	"context"
	"net/http"
	"sync"
)

// streamQueueSize is the bounded event queue depth (spec §5 backpressure:
// "bounded queue (≈64 events)").
const streamQueueSize = 64

// Emitter is how pipeline stages push events toward the client without
// knowing about HTTP or backpressure. Streaming requests use streamWriter;
// non-streaming requests use collectingEmitter, whose message_delta text the
// caller reassembles for the synchronous JSON response.
type Emitter interface {
	Emit(e Event)
}

// streamWriter drains a bounded, priority-aware queue onto an SSE
// connection. If the client stalls and the queue fills, agent_state_delta
// events are dropped to make room — never message_delta, action,
// action_result, or terminal events (spec §5).
type streamWriter struct {
	w  http.ResponseWriter
	fl http.Flusher

	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
	closed bool
}

func newStreamWriter(w http.ResponseWriter) (*streamWriter, bool) {
	fl, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &streamWriter{w: w, fl: fl, notify: make(chan struct{}, 1)}, true
}

// Emit enqueues e, dropping the oldest agent_state_delta if the queue is
// full and e is not itself droppable.
func (s *streamWriter) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(s.queue) >= streamQueueSize {
		if e.Type == EventAgentStateDelta {
			return // drop the new one; it is the lowest-priority event kind
		}
		if idx := indexOfDroppable(s.queue); idx >= 0 {
			s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
		}
	}
	s.queue = append(s.queue, e)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func indexOfDroppable(queue []Event) int {
	for i, e := range queue {
		if e.Type == EventAgentStateDelta {
			return i
		}
	}
	return -1
}

// Run drains the queue to the HTTP connection until ctx is done and the
// queue is empty, or the stream is explicitly closed.
func (s *streamWriter) Run(ctx context.Context) {
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	bw := bufio.NewWriter(s.w)
	defer bw.Flush()

	for {
		s.mu.Lock()
		for len(s.queue) > 0 {
			e := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			frame, err := e.MarshalSSE()
			if err == nil {
				bw.Write(frame)
				bw.Flush()
				s.fl.Flush()
			}
			s.mu.Lock()
		}
		done := s.closed
		s.mu.Unlock()
		if done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
		}
	}
}

// Close marks the stream terminal; Run drains any remaining queued events
// then returns.
func (s *streamWriter) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// collectingEmitter accumulates message_delta content for the non-streaming
// JSON response path (spec §6: POST /api/chat non-stream shape). It also
// keeps action_result and error events, which String does not return.
type collectingEmitter struct {
	mu      sync.Mutex
	content []byte
	actions []ActionResultData
	errData *ErrorData
}

func (c *collectingEmitter) Emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch e.Type {
	case EventMessageDelta:
		if d, ok := e.Data.(MessageDeltaData); ok {
			c.content = append(c.content, d.Delta...)
		}
	case EventActionResult:
		if d, ok := e.Data.(ActionResultData); ok {
			c.actions = append(c.actions, d)
		}
	case EventError:
		if d, ok := e.Data.(ErrorData); ok {
			errCopy := d
			c.errData = &errCopy
		}
	}
}

func (c *collectingEmitter) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.content)
}
