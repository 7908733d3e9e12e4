// Package invite tracks the time-bounded invite and join-request workflows
// on the client side. The host is authoritative for every outcome; the local
// countdown is a UX approximation that self-retires state on expiry but
// never blocks an optimistic accept from being sent.
package invite

import (
	"errors"
	"sync"
	"time"

	"github.com/goteamwork/roomsync/internal/model"
)

var (
	// ErrInvitePending is returned when a second outbound invite is
	// attempted while one is pending. Callers must check this before any
	// transport call is made.
	ErrInvitePending = errors.New("an invite is already pending")

	// ErrNoInboundInvite is returned when accept or decline is requested
	// with no offer on the table.
	ErrNoInboundInvite = errors.New("no inbound invite")
)

// Outbound is the locally-tracked state of an invite this user sent.
type Outbound struct {
	InviteID    string
	InviteeID   string
	InviteeName string
	ExpiresAt   int64 // epoch seconds, host-assigned once confirmed
}

// Tracker holds at most one outbound invite, at most one inbound offer and
// any number of pending join requests. All methods are safe for concurrent
// use.
type Tracker struct {
	mu          sync.Mutex
	now         func() time.Time
	fallbackTTL time.Duration

	outbound  *Outbound
	inbound   *model.InviteOffer
	accepting bool

	joinRequests []model.JoinRequest

	stopOnce sync.Once
	stopped  chan struct{}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker whose provisional outbound countdown uses
// fallbackTTL until the host reply supplies the authoritative expiry.
func NewTracker(fallbackTTL time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		now:         time.Now,
		fallbackTTL: fallbackTTL,
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start runs the 1-second countdown loop until Stop is called.
func (t *Tracker) Start() {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-t.stopped:
				return
			case <-ticker.C:
				t.Tick()
			}
		}
	}()
}

// Stop ends the countdown loop. Idempotent.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopped) })
}

// BeginOutbound reserves the single outbound slot before any network call.
// The reservation carries a fallback expiry so the countdown is meaningful
// even if the host reply omits one.
func (t *Tracker) BeginOutbound(inviteeID, inviteeName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.outbound != nil {
		return ErrInvitePending
	}
	t.outbound = &Outbound{
		InviteeID:   inviteeID,
		InviteeName: inviteeName,
		ExpiresAt:   t.now().Add(t.fallbackTTL).Unix(),
	}
	return nil
}

// ConfirmOutbound records the host-assigned invite id and expiry. A zero
// expiresAt keeps the fallback countdown.
func (t *Tracker) ConfirmOutbound(inviteID string, expiresAt int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.outbound == nil {
		return
	}
	t.outbound.InviteID = inviteID
	if expiresAt > 0 {
		t.outbound.ExpiresAt = expiresAt
	}
}

// ClearOutbound drops outbound state; used when the send fails, when the
// invitee responds, or when the countdown hits zero.
func (t *Tracker) ClearOutbound() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outbound = nil
}

// Outbound returns a copy of the pending outbound invite, if any.
func (t *Tracker) Outbound() (Outbound, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outbound == nil {
		return Outbound{}, false
	}
	return *t.outbound, true
}

// Offer records an inbound invitation. A newer offer replaces an older one;
// the host enforces that at most one is actually pending.
func (t *Tracker) Offer(offer model.InviteOffer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbound = &offer
	t.accepting = false
}

// Inbound returns a copy of the current inbound offer, if any.
func (t *Tracker) Inbound() (model.InviteOffer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inbound == nil {
		return model.InviteOffer{}, false
	}
	return *t.inbound, true
}

// BeginAccept marks the offer as accept-in-flight and returns it. The caller
// sends the accept optimistically; a local expiry racing it does not cancel
// the request, it only means the host's rejection will be the final word.
func (t *Tracker) BeginAccept() (model.InviteOffer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inbound == nil {
		return model.InviteOffer{}, ErrNoInboundInvite
	}
	t.accepting = true
	return *t.inbound, nil
}

// AcceptSucceeded clears the inbound offer after the host confirmed.
func (t *Tracker) AcceptSucceeded() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbound = nil
	t.accepting = false
}

// AcceptFailed restores the offer so the user can retry, unless it has
// already expired locally.
func (t *Tracker) AcceptFailed(offer model.InviteOffer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accepting = false
	if offer.ExpiresAt > 0 && t.now().Unix() >= offer.ExpiresAt {
		t.inbound = nil
		return
	}
	t.inbound = &offer
}

// Decline drops the inbound offer without a transport call.
func (t *Tracker) Decline() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inbound == nil {
		return ErrNoInboundInvite
	}
	t.inbound = nil
	t.accepting = false
	return nil
}

// AddJoinRequest records a join request addressed to this user as a room
// owner. Duplicate requester/room pairs collapse to one entry.
func (t *Tracker) AddJoinRequest(req model.JoinRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.joinRequests {
		if existing.RequesterID == req.RequesterID && existing.RoomID == req.RoomID {
			return
		}
	}
	t.joinRequests = append(t.joinRequests, req)
}

// ResolveJoinRequest removes a join request after approve or reject.
func (t *Tracker) ResolveJoinRequest(requesterID, roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.joinRequests {
		if existing.RequesterID == requesterID && existing.RoomID == roomID {
			t.joinRequests = append(t.joinRequests[:i:i], t.joinRequests[i+1:]...)
			return
		}
	}
}

// JoinRequests returns a copy of the pending join requests. They carry no
// local timer.
func (t *Tracker) JoinRequests() []model.JoinRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.JoinRequest, len(t.joinRequests))
	copy(out, t.joinRequests)
	return out
}

// Tick recomputes remaining time from the authoritative expiries and clears
// whatever reached zero. Remaining time is always derived from expiresAt and
// the clock, never from a locally-decremented duration, so a drifting or
// late-started timer self-corrects.
func (t *Tracker) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().Unix()
	if t.outbound != nil && t.outbound.ExpiresAt > 0 && now >= t.outbound.ExpiresAt {
		t.outbound = nil
	}
	if t.inbound != nil && t.inbound.ExpiresAt > 0 && now >= t.inbound.ExpiresAt {
		t.inbound = nil
		t.accepting = false
	}
}

// OutboundRemaining reports the seconds left on the outbound countdown.
func (t *Tracker) OutboundRemaining() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outbound == nil {
		return 0
	}
	return remaining(t.outbound.ExpiresAt, t.now())
}

// InboundRemaining reports the seconds left on the inbound countdown.
func (t *Tracker) InboundRemaining() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inbound == nil {
		return 0
	}
	return remaining(t.inbound.ExpiresAt, t.now())
}

func remaining(expiresAt int64, now time.Time) int64 {
	if expiresAt <= 0 {
		return 0
	}
	left := expiresAt - now.Unix()
	if left < 0 {
		return 0
	}
	return left
}
