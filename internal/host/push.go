package host

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goteamwork/roomsync/internal/logging"
	"github.com/goteamwork/roomsync/internal/model"
)

const heartbeatInterval = 30 * time.Second

// pushTarget is one delivery endpoint for a user's event feed. An SSE
// connection and an in-process channel both satisfy it.
type pushTarget interface {
	send(model.Envelope) error
	close()
}

// PushManager fans host events out to connected users. Each user has at
// most one active target; attaching a new one displaces the old.
type PushManager struct {
	mu      sync.RWMutex
	targets map[string]pushTarget
	logger  logging.Logger
}

func NewPushManager(logger logging.Logger) *PushManager {
	return &PushManager{targets: make(map[string]pushTarget), logger: logger}
}

func (pm *PushManager) attach(userID string, t pushTarget) {
	pm.mu.Lock()
	prev := pm.targets[userID]
	pm.targets[userID] = t
	pm.mu.Unlock()
	if prev != nil {
		prev.close()
	}
}

// detach removes the target only if it is still the user's current one,
// so a reconnect is not torn down by the old connection's cleanup.
func (pm *PushManager) detach(userID string, t pushTarget) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if current, ok := pm.targets[userID]; ok && current == t {
		delete(pm.targets, userID)
		return true
	}
	return false
}

// Subscribe attaches an in-process feed for a user and returns the
// envelope channel. The channel closes when the subscription is
// displaced or dropped.
func (pm *PushManager) Subscribe(userID string, buffer int) <-chan model.Envelope {
	t := newChannelTarget(buffer)
	pm.attach(userID, t)
	return t.ch
}

// IsConnected reports whether the user has an active feed.
func (pm *PushManager) IsConnected(userID string) bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	_, ok := pm.targets[userID]
	return ok
}

// SendToUser delivers an event to one user. A failed send drops the
// target; the client is expected to reconnect and resync.
func (pm *PushManager) SendToUser(userID string, ev model.Event) error {
	pm.mu.RLock()
	t, ok := pm.targets[userID]
	pm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("user %s not connected", userID)
	}

	env, err := model.EncodeEvent(ev, time.Now().Unix())
	if err != nil {
		return err
	}
	if err := t.send(env); err != nil {
		pm.drop(userID, t, err)
		return fmt.Errorf("send to %s: %w", userID, err)
	}
	return nil
}

// BroadcastToUsers delivers an event to each listed user, optionally
// skipping one (typically the originator).
func (pm *PushManager) BroadcastToUsers(userIDs []string, ev model.Event, excludeUserID string) {
	env, err := model.EncodeEvent(ev, time.Now().Unix())
	if err != nil {
		pm.logger.Error(context.Background(), "encode push event", "type", ev.EventType(), "error", err)
		return
	}
	for _, id := range userIDs {
		if id == excludeUserID {
			continue
		}
		pm.mu.RLock()
		t, ok := pm.targets[id]
		pm.mu.RUnlock()
		if !ok {
			continue
		}
		if err := t.send(env); err != nil {
			pm.drop(id, t, err)
		}
	}
}

// BroadcastToAll delivers an event to every connected user.
func (pm *PushManager) BroadcastToAll(ev model.Event) {
	env, err := model.EncodeEvent(ev, time.Now().Unix())
	if err != nil {
		pm.logger.Error(context.Background(), "encode push event", "type", ev.EventType(), "error", err)
		return
	}

	pm.mu.RLock()
	snapshot := make(map[string]pushTarget, len(pm.targets))
	for id, t := range pm.targets {
		snapshot[id] = t
	}
	pm.mu.RUnlock()

	for id, t := range snapshot {
		if err := t.send(env); err != nil {
			pm.drop(id, t, err)
		}
	}
}

func (pm *PushManager) drop(userID string, t pushTarget, err error) {
	pm.logger.Warn(context.Background(), "dropping push target", "userId", userID, "error", err)
	if pm.detach(userID, t) {
		t.close()
	}
}

// sseTarget writes envelopes to one SSE response stream.
type sseTarget struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
	once    sync.Once
}

func newSSETarget(w http.ResponseWriter, flusher http.Flusher) *sseTarget {
	return &sseTarget{w: w, flusher: flusher, done: make(chan struct{})}
}

func (t *sseTarget) send(env model.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := fmt.Fprintf(t.w, "event: %s\ndata: %s\n\n", env.Type, payload); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}

func (t *sseTarget) close() {
	t.once.Do(func() { close(t.done) })
}

// channelTarget delivers envelopes to an in-process subscriber. Sends
// are non-blocking: a full buffer counts as a dead consumer.
type channelTarget struct {
	ch   chan model.Envelope
	once sync.Once
}

func newChannelTarget(buffer int) *channelTarget {
	return &channelTarget{ch: make(chan model.Envelope, buffer)}
}

func (t *channelTarget) send(env model.Envelope) error {
	select {
	case t.ch <- env:
		return nil
	default:
		return fmt.Errorf("subscriber buffer full")
	}
}

func (t *channelTarget) close() {
	t.once.Do(func() { close(t.ch) })
}
