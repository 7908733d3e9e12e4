// Package stream feeds host push events into the client event bus. The
// SSE source maintains a long-lived connection and reconnects at a
// fixed interval; the local source drains an in-process channel. Both
// decode wire envelopes into the typed event union exactly once.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/r3labs/sse/v2"

	"github.com/goteamwork/roomsync/internal/client/eventbus"
	"github.com/goteamwork/roomsync/internal/logging"
	"github.com/goteamwork/roomsync/internal/model"
)

// Source is a running event feed. Closing it stops delivery; a closed
// source never publishes again, even if a stale retry fires afterwards.
type Source interface {
	Close()
}

// EventSource keeps one SSE connection alive against the host's push
// endpoint and republishes its envelopes on the bus.
type EventSource struct {
	bus    *eventbus.Bus
	logger logging.Logger
	delay  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// Connect starts an event source for the given push URL. A dropped
// connection publishes a synthetic disconnected event and retries at
// the configured fixed delay until Close.
func Connect(url string, bus *eventbus.Bus, delay time.Duration, logger logging.Logger) *EventSource {
	s := &EventSource{bus: bus, logger: logger, delay: delay}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	client := sse.NewClient(url)
	client.ReconnectStrategy = backoff.NewConstantBackOff(delay)
	client.OnDisconnect(func(*sse.Client) {
		if s.alive() {
			s.logger.Warn(ctx, "push channel dropped, reconnecting", "url", url, "delay", delay)
			s.bus.Publish(model.Disconnected{})
		}
	})

	go func() {
		err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			s.deliver(msg.Data)
		})
		if err != nil && !errors.Is(err, context.Canceled) && s.alive() {
			s.logger.Error(ctx, "push channel terminated", "url", url, "error", err)
			s.bus.Publish(model.Disconnected{})
		}
	}()

	return s
}

func (s *EventSource) deliver(data []byte) {
	if !s.alive() {
		return
	}
	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn(context.Background(), "malformed push envelope", "error", err)
		return
	}
	ev, err := model.DecodeEvent(env)
	if err != nil {
		// Unknown or undecodable events are dropped, never fatal.
		s.logger.Warn(context.Background(), "discarding push event", "type", env.Type, "error", err)
		return
	}
	if s.alive() {
		s.bus.Publish(ev)
	}
}

func (s *EventSource) alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close tears the connection down. Safe to call more than once.
func (s *EventSource) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()
	cancel()
}

// LocalSource drains an in-process envelope channel into the bus. It is
// the push feed of sessions hosted in the same process.
type LocalSource struct {
	bus    *eventbus.Bus
	logger logging.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func ConnectLocal(ch <-chan model.Envelope, bus *eventbus.Bus, logger logging.Logger) *LocalSource {
	s := &LocalSource{bus: bus, logger: logger, done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-s.done:
				return
			case env, ok := <-ch:
				if !ok {
					if s.alive() {
						s.bus.Publish(model.Disconnected{})
					}
					return
				}
				s.deliver(env)
			}
		}
	}()
	return s
}

func (s *LocalSource) deliver(env model.Envelope) {
	if !s.alive() {
		return
	}
	ev, err := model.DecodeEvent(env)
	if err != nil {
		s.logger.Warn(context.Background(), "discarding push event", "type", env.Type, "error", err)
		return
	}
	s.bus.Publish(ev)
}

func (s *LocalSource) alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *LocalSource) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
}
