package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/safeapps-io/money-back/internal/core/domain"
)

const defaultChunkSize = 100

// Stream adapts one text/event-stream response to the realtime delivery
// contract. Writes are serialized by a mutex and flushed immediately, so a
// Send returns only after its event reached the HTTP layer. Every event
// carries a random id, not a sequence number.
type Stream struct {
	ctx       context.Context
	cancel    context.CancelFunc
	w         http.ResponseWriter
	flusher   http.Flusher
	sessionID string
	userID    string

	mu     sync.Mutex
	closed bool
}

// NewStream writes the stream headers and the reconnect hint. The retry
// value is randomized within [retryMinMS, retryMaxMS] so reconnecting
// clients do not stampede the server after a restart.
func NewStream(parent context.Context, w http.ResponseWriter, sessionID, userID string, retryMinMS, retryMaxMS int) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}
	if retryMinMS <= 0 {
		retryMinMS = 3000
	}
	if retryMaxMS <= retryMinMS {
		retryMaxMS = retryMinMS + 7000
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Stream{
		ctx:       ctx,
		cancel:    cancel,
		w:         w,
		flusher:   flusher,
		sessionID: sessionID,
		userID:    userID,
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	retry := retryMinMS + rand.Intn(retryMaxMS-retryMinMS)
	fmt.Fprintf(w, "retry: %d\n\n", retry)
	flusher.Flush()
	return s, nil
}

func (s *Stream) SessionID() string { return s.sessionID }
func (s *Stream) UserID() string    { return s.userID }

// Send writes one event as an id + data block and flushes it.
func (s *Stream) Send(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("stream closed")
	}
	select {
	case <-s.ctx.Done():
		return errors.New("stream closed")
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := fmt.Fprintf(s.w, "id: %s\ndata: %s\n\n", uuid.NewString(), data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// SequentialSend delivers items in ceil(N/K) ordered chunks. The flush after
// every chunk is what keeps the server from buffering unboundedly ahead of
// a slow reader. onFinish runs once after the last chunk and is skipped
// when a write fails mid-stream.
func (s *Stream) SequentialSend(ctx context.Context, items []json.RawMessage, chunkSize int, eventType string, onFinish func()) error {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	for start := 0; start < len(items); start += chunkSize {
		end := start + chunkSize
		if end > len(items) {
			end = len(items)
		}
		if err := s.Send(ctx, domain.Event{Type: eventType, Data: items[start:end]}); err != nil {
			return err
		}
	}
	if onFinish != nil {
		onFinish()
	}
	return nil
}

func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}
