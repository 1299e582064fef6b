package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/safeapps-io/money-back/internal/core/contracts"
	"github.com/safeapps-io/money-back/internal/core/domain"
)

// Registry is the process-wide pub/sub state: channel → listener → purpose
// key → handler. It is the only component that talks to the broker
// transport. Broker subscriptions are reference counted per channel: the
// first listener subscribes, the last one out unsubscribes.
type Registry struct {
	log       *slog.Logger
	transport contracts.PubSubTransport

	mu   sync.Mutex
	subs map[string]map[string]map[string]contracts.EventHandler
}

func NewRegistry(log *slog.Logger, transport contracts.PubSubTransport) *Registry {
	return &Registry{
		log:       log,
		transport: transport,
		subs:      make(map[string]map[string]map[string]contracts.EventHandler),
	}
}

// Run pumps broker messages into local fan-out until ctx ends.
func (r *Registry) Run(ctx context.Context) error {
	return r.transport.Listen(ctx, func(channel string, payload []byte) {
		r.dispatch(ctx, channel, payload)
	})
}

func (r *Registry) Close() error {
	return r.transport.Close()
}

// Subscribe registers fn under (channel, listener, purpose) for every given
// channel. Channels nobody in this process listens to yet are subscribed at
// the broker in one batched call. Re-subscribing an existing triple just
// replaces the handler.
func (r *Registry) Subscribe(ctx context.Context, channels []string, listenerID, purposeKey string, fn contracts.EventHandler) error {
	r.mu.Lock()
	var fresh []string
	for _, ch := range channels {
		if _, ok := r.subs[ch]; !ok {
			r.subs[ch] = make(map[string]map[string]contracts.EventHandler)
			fresh = append(fresh, ch)
		}
		if _, ok := r.subs[ch][listenerID]; !ok {
			r.subs[ch][listenerID] = make(map[string]contracts.EventHandler)
		}
		r.subs[ch][listenerID][purposeKey] = fn
	}
	r.mu.Unlock()
	if len(fresh) == 0 {
		return nil
	}
	if err := r.transport.Subscribe(ctx, fresh...); err != nil {
		// Roll the log back, or every later Subscribe would see these
		// channels as live and skip the broker call, blackholing them
		// for the process lifetime.
		r.mu.Lock()
		for _, ch := range fresh {
			listeners, ok := r.subs[ch]
			if !ok {
				continue
			}
			if purposes, ok := listeners[listenerID]; ok {
				delete(purposes, purposeKey)
				if len(purposes) == 0 {
					delete(listeners, listenerID)
				}
			}
			if len(listeners) == 0 {
				delete(r.subs, ch)
			}
		}
		r.mu.Unlock()
		r.log.ErrorContext(ctx, "registry - subscribe - transport subscribe failed", "channels", fresh, "err", err)
		return err
	}
	return nil
}

// Publish broadcasts data on one channel and returns the broker's receiver
// count. Publishing to a channel with zero subscribers is not an error.
func (r *Registry) Publish(ctx context.Context, channel string, data any, purposeKey, publisherID string) (int64, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, err
	}
	payload, err := json.Marshal(domain.Envelope{
		PublisherID: publisherID,
		Purpose:     purposeKey,
		Data:        raw,
	})
	if err != nil {
		return 0, err
	}
	count, err := r.transport.Publish(ctx, channel, payload)
	if err != nil {
		r.log.ErrorContext(ctx, "registry - publish - transport publish failed", "channel", channel, "purpose", purposeKey, "err", err)
		return 0, err
	}
	return count, nil
}

// RemoveHandler drops one purpose-keyed handler for one listener on the
// given channels, unsubscribing at the broker any channel whose listener
// map empties.
func (r *Registry) RemoveHandler(ctx context.Context, channels []string, listenerID, purposeKey string) error {
	r.mu.Lock()
	var dead []string
	for _, ch := range channels {
		listeners, ok := r.subs[ch]
		if !ok {
			continue
		}
		if purposes, ok := listeners[listenerID]; ok {
			delete(purposes, purposeKey)
			if len(purposes) == 0 {
				delete(listeners, listenerID)
			}
		}
		if len(listeners) == 0 {
			delete(r.subs, ch)
			dead = append(dead, ch)
		}
	}
	r.mu.Unlock()
	return r.dropChannels(ctx, dead)
}

// Unsubscribe drops every purpose key one listener holds on the given
// channels. Used on connection close, when the caller no longer tracks
// which purposes were registered.
func (r *Registry) Unsubscribe(ctx context.Context, channels []string, listenerID string) error {
	r.mu.Lock()
	var dead []string
	for _, ch := range channels {
		listeners, ok := r.subs[ch]
		if !ok {
			continue
		}
		delete(listeners, listenerID)
		if len(listeners) == 0 {
			delete(r.subs, ch)
			dead = append(dead, ch)
		}
	}
	r.mu.Unlock()
	return r.dropChannels(ctx, dead)
}

func (r *Registry) dropChannels(ctx context.Context, channels []string) error {
	if len(channels) == 0 {
		return nil
	}
	if err := r.transport.Unsubscribe(ctx, channels...); err != nil {
		r.log.ErrorContext(ctx, "registry - unsubscribe - transport unsubscribe failed", "channels", channels, "err", err)
		return err
	}
	return nil
}

// dispatch fans one broker message out to every local listener except the
// one that published it. Handler panics are contained per listener so one
// faulty client cannot break delivery to the rest.
func (r *Registry) dispatch(ctx context.Context, channel string, payload []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.log.ErrorContext(ctx, "registry - dispatch - envelope decode failed", "channel", channel, "err", err)
		return
	}

	r.mu.Lock()
	listeners, ok := r.subs[channel]
	if !ok {
		r.mu.Unlock()
		return
	}
	// Snapshot under lock so handlers run without holding the mutex and
	// may themselves subscribe or unsubscribe.
	type slot struct {
		listenerID string
		fn         contracts.EventHandler
	}
	var slots []slot
	for listenerID, purposes := range listeners {
		if listenerID == env.PublisherID {
			continue
		}
		for _, fn := range purposes {
			slots = append(slots, slot{listenerID: listenerID, fn: fn})
		}
	}
	r.mu.Unlock()

	for _, s := range slots {
		r.invoke(ctx, channel, s.listenerID, s.fn, env)
	}
}

func (r *Registry) invoke(ctx context.Context, channel, listenerID string, fn contracts.EventHandler, env domain.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.ErrorContext(ctx, "registry - dispatch - handler panicked", "channel", channel, "listener_id", listenerID, "purpose", env.Purpose, "panic", rec)
		}
	}()
	fn(ctx, env)
}
