package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goteamwork/roomsync/internal/client/eventbus"
	"github.com/goteamwork/roomsync/internal/logging"
	"github.com/goteamwork/roomsync/internal/model"
)

// collector records bus events of one type.
type collector struct {
	mu     sync.Mutex
	events []model.Event
}

func (c *collector) handler(ev model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) snapshot() []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *collector) waitFor(t *testing.T, n int) []model.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, have %d", n, len(c.snapshot()))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func envelope(t *testing.T, ev model.Event) model.Envelope {
	t.Helper()
	env, err := model.EncodeEvent(ev, time.Now().Unix())
	require.NoError(t, err)
	return env
}

func TestLocalSourcePublishesDecodedEvents(t *testing.T) {
	bus := eventbus.New(logging.NewDefault())
	chats := &collector{}
	bus.Subscribe(model.EventChatMessage, chats.handler)

	ch := make(chan model.Envelope, 4)
	src := ConnectLocal(ch, bus, logging.NewDefault())
	defer src.Close()

	ch <- envelope(t, model.ChatPosted{ChatMessage: model.ChatMessage{ID: "msg_1", Message: "hi"}})
	ch <- envelope(t, model.ChatPosted{ChatMessage: model.ChatMessage{ID: "msg_2", Message: "again"}})

	got := chats.waitFor(t, 2)
	assert.Equal(t, "hi", got[0].(model.ChatPosted).Message)
	assert.Equal(t, "again", got[1].(model.ChatPosted).Message)
}

func TestLocalSourceDropsUnknownEvents(t *testing.T) {
	bus := eventbus.New(logging.NewDefault())
	beats := &collector{}
	bus.Subscribe(model.EventHeartbeat, beats.handler)

	ch := make(chan model.Envelope, 4)
	src := ConnectLocal(ch, bus, logging.NewDefault())
	defer src.Close()

	ch <- model.Envelope{Type: "made_up", Data: json.RawMessage(`{}`)}
	ch <- envelope(t, model.Heartbeat{Timestamp: 1})

	got := beats.waitFor(t, 1)
	assert.Equal(t, model.Heartbeat{Timestamp: 1}, got[0].(model.Heartbeat))
}

func TestLocalSourceClosedChannelPublishesDisconnected(t *testing.T) {
	bus := eventbus.New(logging.NewDefault())
	drops := &collector{}
	bus.Subscribe(model.EventDisconnected, drops.handler)

	ch := make(chan model.Envelope)
	src := ConnectLocal(ch, bus, logging.NewDefault())
	defer src.Close()

	close(ch)
	drops.waitFor(t, 1)
}

func TestLocalSourceCloseStopsDelivery(t *testing.T) {
	bus := eventbus.New(logging.NewDefault())
	beats := &collector{}
	drops := &collector{}
	bus.Subscribe(model.EventHeartbeat, beats.handler)
	bus.Subscribe(model.EventDisconnected, drops.handler)

	ch := make(chan model.Envelope, 4)
	src := ConnectLocal(ch, bus, logging.NewDefault())

	src.Close()
	src.Close() // idempotent

	ch <- envelope(t, model.Heartbeat{Timestamp: 1})
	close(ch)
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, beats.snapshot())
	// a deliberate close is not a disconnect
	assert.Empty(t, drops.snapshot())
}

func sseServer(t *testing.T, envs ...model.Envelope) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, env := range envs {
			payload, err := json.Marshal(env)
			require.NoError(t, err)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Type, payload)
			flusher.Flush()
		}
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEventSourcePublishesFromSSE(t *testing.T) {
	srv := sseServer(t,
		envelope(t, model.Connected{Status: "connected"}),
		envelope(t, model.ChatPosted{ChatMessage: model.ChatMessage{ID: "msg_1", Message: "over sse"}}),
	)

	bus := eventbus.New(logging.NewDefault())
	connects := &collector{}
	chats := &collector{}
	bus.Subscribe(model.EventConnected, connects.handler)
	bus.Subscribe(model.EventChatMessage, chats.handler)

	src := Connect(srv.URL, bus, 100*time.Millisecond, logging.NewDefault())
	defer src.Close()

	connects.waitFor(t, 1)
	got := chats.waitFor(t, 1)
	assert.Equal(t, "over sse", got[0].(model.ChatPosted).Message)
}

func TestEventSourceCloseSilencesBus(t *testing.T) {
	srv := sseServer(t, envelope(t, model.Connected{Status: "connected"}))

	bus := eventbus.New(logging.NewDefault())
	connects := &collector{}
	drops := &collector{}
	bus.Subscribe(model.EventConnected, connects.handler)
	bus.Subscribe(model.EventDisconnected, drops.handler)

	src := Connect(srv.URL, bus, 100*time.Millisecond, logging.NewDefault())
	connects.waitFor(t, 1)

	src.Close()
	src.Close() // idempotent
	time.Sleep(50 * time.Millisecond)

	// teardown is deliberate; no disconnect is synthesized after Close
	assert.Empty(t, drops.snapshot())
}
