package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/advisor/search"
)

// EventType names a stream event.
type EventType string

const (
	EventMetadata EventType = "metadata"
	EventChunk    EventType = "chunk"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one message on a turn stream. Exactly one payload field is set,
// matching Type.
type Event struct {
	Type     EventType `json:"type"`
	Metadata *Metadata `json:"metadata,omitempty"`
	Chunk    string    `json:"chunk,omitempty"`
	Response *Response `json:"response,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Stream runs one turn and delivers its events on the returned channel,
// which is closed when the turn ends. Input errors are returned before any
// work starts. Canceling ctx stops generation and closes the channel
// without a complete event. The caller must drain the channel or cancel ctx.
func (o *Orchestrator) Stream(ctx context.Context, turn Turn) (<-chan Event, error) {
	constraints, err := validate(turn)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, o.streamBuffer)
	go func() {
		defer close(events)
		o.runStream(ctx, turn, constraints, events)
	}()
	return events, nil
}

func (o *Orchestrator) runStream(ctx context.Context, turn Turn, constraints search.Constraints, events chan<- Event) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fail := func(err error) {
		if ctx.Err() != nil {
			o.logger.Info("stream canceled", "session", turn.SessionID)
			return
		}
		o.logger.Error("stream failed", "session", turn.SessionID, "err", err)
		send(ctx, events, Event{Type: EventError, Message: ApologyReply})
	}

	st, err := o.prepare(ctx, turn, constraints)
	if err != nil {
		fail(err)
		return
	}
	metadata := st.metadata
	if !send(ctx, events, Event{Type: EventMetadata, Metadata: &metadata}) {
		return
	}

	fragments := make(chan string, o.streamBuffer)
	done := make(chan error, 1)
	start := time.Now()
	go func() {
		defer close(fragments)
		done <- o.generator.Stream(ctx, st.request, fragments)
	}()

	var text strings.Builder
	stopped := false
	for fragment := range fragments {
		if stopped {
			continue
		}
		text.WriteString(fragment)
		stopped = !send(ctx, events, Event{Type: EventChunk, Chunk: fragment})
	}
	err = <-done
	st.metadata.GenerationLatency = time.Since(start)
	st.metadata.Model = o.generator.Model()

	if ctx.Err() != nil {
		o.logger.Info("stream canceled", "session", turn.SessionID,
			"generation", st.metadata.GenerationLatency)
		return
	}
	if err != nil {
		fail(fmt.Errorf("generation: %w", err))
		return
	}

	resp := o.finish(ctx, st, text.String())
	if send(ctx, events, Event{Type: EventComplete, Response: resp}) {
		o.logger.Info("stream complete",
			"session", turn.SessionID,
			"products", len(resp.Products),
			"retrieval", st.metadata.RetrievalLatency,
			"generation", st.metadata.GenerationLatency)
	}
}

// send delivers ev unless ctx is done first.
func send(ctx context.Context, events chan<- Event, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
