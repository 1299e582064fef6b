package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/safeapps-io/money-back/internal/core/domain"
)

const defaultChunkSize = 100

type writeReq struct {
	data []byte
	done chan error
}

// Socket adapts one WebSocket connection to the realtime delivery
// contract. All frames go through a single write loop; a Send resolves
// when its frame has actually been written, which is what gates
// SequentialSend chunks on the peer keeping up.
type Socket struct {
	ctx       context.Context
	cancel    context.CancelFunc
	ws        *WebSocket
	sessionID string
	userID    string
	ticket    string
	validate  func(ticket string) error
	out       chan writeReq
	once      sync.Once
}

func NewSocket(
	parent context.Context,
	ws *WebSocket,
	sessionID, userID, ticket string,
	validate func(ticket string) error,
) *Socket {
	ctx, cancel := context.WithCancel(parent)
	s := &Socket{
		ctx:       ctx,
		cancel:    cancel,
		ws:        ws,
		sessionID: sessionID,
		userID:    userID,
		ticket:    ticket,
		validate:  validate,
		out:       make(chan writeReq, 256),
	}
	go s.writeLoop()
	return s
}

func (s *Socket) SessionID() string { return s.sessionID }
func (s *Socket) UserID() string    { return s.userID }

// Send writes one {type, data} text frame. The session ticket is rechecked
// first: a session can be revoked server-side between messages, and a
// revoked socket silently drops the event instead of erroring the caller.
func (s *Socket) Send(ctx context.Context, ev domain.Event) error {
	if err := s.validate(s.ticket); err != nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.write(ctx, data)
}

// SequentialSend delivers items in ceil(N/K) ordered chunks, each gated on
// the previous frame's write completing. onFinish runs once after the last
// chunk and is skipped when a write fails mid-stream.
func (s *Socket) SequentialSend(ctx context.Context, items []json.RawMessage, chunkSize int, eventType string, onFinish func()) error {
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

func (s *Socket) write(ctx context.Context, data []byte) error {
	req := writeReq{data: data, done: make(chan error, 1)}
	select {
	case s.out <- req:
	case <-s.ctx.Done():
		return errors.New("socket closed")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-s.ctx.Done():
		return errors.New("socket closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Socket) Close() {
	s.once.Do(func() {
		s.cancel()
		s.ws.Close()
	})
}

func (s *Socket) writeLoop() {
	defer s.Close()
	for {
		select {
		case <-s.ctx.Done():
			return
		case req := <-s.out:
			req.done <- s.ws.WriteMessage(req.data)
		}
	}
}
