package invite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goteamwork/roomsync/internal/model"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(t *testing.T) (*Tracker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_000_000, 0)}
	return NewTracker(30*time.Second, WithClock(clock.now)), clock
}

func TestOutboundMutualExclusion(t *testing.T) {
	tr, _ := newTestTracker(t)

	require.NoError(t, tr.BeginOutbound("user_2", "Bob"))
	err := tr.BeginOutbound("user_3", "Carol")
	assert.ErrorIs(t, err, ErrInvitePending)

	out, ok := tr.Outbound()
	require.True(t, ok)
	assert.Equal(t, "user_2", out.InviteeID)

	tr.ClearOutbound()
	assert.NoError(t, tr.BeginOutbound("user_3", "Carol"))
}

func TestConfirmOutboundAdoptsHostExpiry(t *testing.T) {
	tr, clock := newTestTracker(t)

	require.NoError(t, tr.BeginOutbound("user_2", "Bob"))
	out, _ := tr.Outbound()
	assert.Equal(t, clock.now().Unix()+30, out.ExpiresAt) // fallback TTL

	tr.ConfirmOutbound("invite_1", clock.now().Unix()+10)
	out, _ = tr.Outbound()
	assert.Equal(t, "invite_1", out.InviteID)
	assert.EqualValues(t, 10, tr.OutboundRemaining())
}

func TestConfirmOutboundZeroExpiryKeepsFallback(t *testing.T) {
	tr, _ := newTestTracker(t)
	require.NoError(t, tr.BeginOutbound("user_2", "Bob"))
	tr.ConfirmOutbound("invite_1", 0)
	assert.EqualValues(t, 30, tr.OutboundRemaining())
}

func TestOutboundSelfExpires(t *testing.T) {
	tr, clock := newTestTracker(t)

	require.NoError(t, tr.BeginOutbound("user_2", "Bob"))
	tr.ConfirmOutbound("invite_1", clock.now().Unix()+2)

	clock.advance(3 * time.Second)
	tr.Tick()

	_, ok := tr.Outbound()
	assert.False(t, ok)
	assert.Zero(t, tr.OutboundRemaining())
	// the slot is free again
	assert.NoError(t, tr.BeginOutbound("user_3", "Carol"))
}

func TestInboundSelfExpires(t *testing.T) {
	tr, clock := newTestTracker(t)

	tr.Offer(model.InviteOffer{InviteID: "invite_1", InviterID: "user_2", ExpiresAt: clock.now().Unix() + 2})
	assert.EqualValues(t, 2, tr.InboundRemaining())

	clock.advance(3 * time.Second)
	tr.Tick()

	_, ok := tr.Inbound()
	assert.False(t, ok)
	_, err := tr.BeginAccept()
	assert.ErrorIs(t, err, ErrNoInboundInvite)
}

func TestRemainingNeverNegative(t *testing.T) {
	tr, clock := newTestTracker(t)
	tr.Offer(model.InviteOffer{InviteID: "invite_1", ExpiresAt: clock.now().Unix() + 1})
	clock.advance(10 * time.Second)
	assert.Zero(t, tr.InboundRemaining())
}

func TestNewOfferReplacesOld(t *testing.T) {
	tr, clock := newTestTracker(t)

	tr.Offer(model.InviteOffer{InviteID: "invite_1", InviterID: "user_2", ExpiresAt: clock.now().Unix() + 30})
	tr.Offer(model.InviteOffer{InviteID: "invite_2", InviterID: "user_3", ExpiresAt: clock.now().Unix() + 30})

	in, ok := tr.Inbound()
	require.True(t, ok)
	assert.Equal(t, "invite_2", in.InviteID)
}

func TestAcceptLifecycle(t *testing.T) {
	tr, clock := newTestTracker(t)

	offer := model.InviteOffer{InviteID: "invite_1", InviterID: "user_2", ExpiresAt: clock.now().Unix() + 30}
	tr.Offer(offer)

	got, err := tr.BeginAccept()
	require.NoError(t, err)
	assert.Equal(t, offer, got)

	tr.AcceptSucceeded()
	_, ok := tr.Inbound()
	assert.False(t, ok)
}

func TestAcceptFailedRestoresUnexpiredOffer(t *testing.T) {
	tr, clock := newTestTracker(t)

	offer := model.InviteOffer{InviteID: "invite_1", ExpiresAt: clock.now().Unix() + 30}
	tr.Offer(offer)
	got, err := tr.BeginAccept()
	require.NoError(t, err)

	tr.AcceptFailed(got)
	in, ok := tr.Inbound()
	require.True(t, ok)
	assert.Equal(t, "invite_1", in.InviteID)
}

func TestAcceptFailedDropsExpiredOffer(t *testing.T) {
	tr, clock := newTestTracker(t)

	offer := model.InviteOffer{InviteID: "invite_1", ExpiresAt: clock.now().Unix() + 2}
	tr.Offer(offer)
	got, err := tr.BeginAccept()
	require.NoError(t, err)

	clock.advance(5 * time.Second)
	tr.AcceptFailed(got)
	_, ok := tr.Inbound()
	assert.False(t, ok)
}

func TestDecline(t *testing.T) {
	tr, clock := newTestTracker(t)

	assert.ErrorIs(t, tr.Decline(), ErrNoInboundInvite)

	tr.Offer(model.InviteOffer{InviteID: "invite_1", ExpiresAt: clock.now().Unix() + 30})
	require.NoError(t, tr.Decline())
	_, ok := tr.Inbound()
	assert.False(t, ok)
}

func TestJoinRequestsDedupeAndResolve(t *testing.T) {
	tr, _ := newTestTracker(t)

	req := model.JoinRequest{RoomID: "room_1", RequesterID: "user_3", RequesterName: "Carol"}
	tr.AddJoinRequest(req)
	tr.AddJoinRequest(req)
	tr.AddJoinRequest(model.JoinRequest{RoomID: "room_1", RequesterID: "user_4", RequesterName: "Dave"})
	require.Len(t, tr.JoinRequests(), 2)

	tr.ResolveJoinRequest("user_3", "room_1")
	got := tr.JoinRequests()
	require.Len(t, got, 1)
	assert.Equal(t, "user_4", got[0].RequesterID)

	// resolving an unknown pair is a no-op
	tr.ResolveJoinRequest("user_9", "room_1")
	assert.Len(t, tr.JoinRequests(), 1)
}

func TestJoinRequestsHaveNoTimer(t *testing.T) {
	tr, clock := newTestTracker(t)
	tr.AddJoinRequest(model.JoinRequest{RoomID: "room_1", RequesterID: "user_3"})

	clock.advance(time.Hour)
	tr.Tick()
	assert.Len(t, tr.JoinRequests(), 1)
}
