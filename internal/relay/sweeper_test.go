package relay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomly/signaling/internal/directory"
	"github.com/roomly/signaling/internal/domain"
	"github.com/roomly/signaling/internal/protocol"
	"github.com/roomly/signaling/internal/registry"
)

const (
	testSweepPeriod = 3 * time.Second
	testStaleAfter  = 15 * time.Second
)

// newTestSweeper wires a sweeper whose clock (and the registry's) is
// the returned function's current value.
func newTestSweeper() (*Sweeper, *registry.Registry, *directory.InMemory, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	reg := registry.NewWithClock(clock)
	store := directory.NewInMemory()
	rt := NewRouter(reg, store.Wrap())
	rt.Sampler = func() bool { return false }
	s := NewSweeper(reg, rt, store.Wrap(), testSweepPeriod, testStaleAfter)
	// registry and sweeper share the fake clock
	s.clock = clock
	return s, reg, store, &now
}

func countByShape(t *testing.T, h *testHandle) (heartbeats, removes, notifications int, removePayloads []removeArgs) {
	t.Helper()
	for _, env := range h.envelopes(t) {
		switch {
		case env.Kind == protocol.KindHeartbeat:
			heartbeats++
		case env.Kind == protocol.KindEvent && env.Name == protocol.EventRemove:
			removes++
			var rm removeArgs
			require.NoError(t, json.Unmarshal(env.Args, &rm))
			removePayloads = append(removePayloads, rm)
		case env.Kind == protocol.KindEvent && env.Name == protocol.EventNotification:
			notifications++
		}
	}
	return
}

func TestSweepReapsStaleConnection(t *testing.T) {
	s, reg, store, now := newTestSweeper()
	store.AddRoom("demo", 0)

	stale := &testHandle{}
	alive := &testHandle{}
	reg.Register("stale", stale, "alice", "en")
	reg.Register("alive", alive, "bob", "en")
	require.NoError(t, reg.JoinRoom("stale", "demo", domain.RoleParticipant, domain.MediaFlags{}, 0))
	require.NoError(t, reg.JoinRoom("alive", "demo", domain.RoleParticipant, domain.MediaFlags{}, 0))
	reg.ClearInviteFlag("stale")
	reg.ClearInviteFlag("alive")

	*now = now.Add(16 * time.Second)
	reg.Touch("alive")
	s.Sweep()

	_, ok := reg.Get("stale")
	assert.False(t, ok, "stale connection must be gone after the sweep")
	assert.Equal(t, 1, stale.closed)

	_, ok = reg.Get("alive")
	assert.True(t, ok)

	heartbeats, removes, _, payloads := countByShape(t, alive)
	assert.Equal(t, 1, removes, "exactly one departure notification")
	require.Len(t, payloads, 1)
	assert.Equal(t, removeArgs{ID: "stale", Type: "video"}, payloads[0])
	assert.Equal(t, 1, heartbeats, "live peers get the heartbeat probe")
	assert.Equal(t, 1, store.ActivityTouches("demo"))
}

func TestSweepAtThresholdKeepsConnection(t *testing.T) {
	s, reg, _, now := newTestSweeper()
	h := &testHandle{}
	reg.Register("edge", h, "alice", "en")
	reg.ClearInviteFlag("edge")

	// exactly the threshold is not yet stale
	*now = now.Add(testStaleAfter)
	s.Sweep()

	_, ok := reg.Get("edge")
	assert.True(t, ok)
	assert.Equal(t, 0, h.closed)
}

func TestSweepRemovesHandlelessEntry(t *testing.T) {
	s, reg, _, _ := newTestSweeper()
	reg.Register("broken", nil, "alice", "en")
	witness := &testHandle{}
	reg.Register("witness", witness, "bob", "en")
	reg.ClearInviteFlag("witness")

	s.Sweep()

	_, ok := reg.Get("broken")
	assert.False(t, ok)
	// defensive cleanup is silent to clients
	_, removes, _, _ := countByShape(t, witness)
	assert.Zero(t, removes)
}

func TestSweepDeliversInvitationReplies(t *testing.T) {
	s, reg, store, _ := newTestSweeper()
	store.SetProfile("carol", "Carol Danvers", "en")
	store.AddReply("alice", domain.InvitationReply{ID: "r1", Room: "demo", From: "carol", Accepted: true, Message: "see you there"})
	store.AddReply("alice", domain.InvitationReply{ID: "r2", Room: "lab", From: "carol", Accepted: false})

	h := &testHandle{}
	reg.Register("A", h, "alice", "en")

	s.Sweep()

	envs := h.envelopes(t)
	var notif *protocol.Envelope
	for i := range envs {
		if envs[i].Kind == protocol.KindEvent && envs[i].Name == protocol.EventNotification {
			require.Nil(t, notif, "one single notification envelope")
			notif = &envs[i]
		}
	}
	require.NotNil(t, notif)

	var args notificationArgs
	require.NoError(t, json.Unmarshal(notif.Args, &args))
	require.Len(t, args.Messages, 2)
	assert.Equal(t, "Carol Danvers accepted your invitation to demo: see you there", args.Messages[0])
	assert.Equal(t, "Carol Danvers declined your invitation to lab", args.Messages[1])

	assert.Empty(t, store.UnprocessedFor("alice"), "delivered replies marked processed")
	snap, _ := reg.Get("A")
	assert.False(t, snap.PendingInvites)

	// second sweep: nothing new to deliver
	before := len(h.envelopes(t))
	s.Sweep()
	_, _, notifications, _ := countByShape(t, h)
	assert.Equal(t, 1, notifications)
	assert.Equal(t, before+1, len(h.envelopes(t)), "only the heartbeat probe")
}

func TestInvitationFlagIsOneShot(t *testing.T) {
	s, reg, store, _ := newTestSweeper()
	h := &testHandle{}
	reg.Register("A", h, "alice", "en")

	// nothing pending on the first check
	s.Sweep()
	snap, _ := reg.Get("A")
	assert.False(t, snap.PendingInvites, "flag cleared after the first attempt")

	// a reply arriving later is not picked up by the sweep anymore
	store.AddReply("alice", domain.InvitationReply{ID: "r9", Room: "demo", From: "bob", Accepted: true})
	s.Sweep()
	_, _, notifications, _ := countByShape(t, h)
	assert.Zero(t, notifications)
}

func TestLocalizedInvitationLine(t *testing.T) {
	reply := domain.InvitationReply{Room: "demo", Accepted: true}

	assert.Equal(t, "Боб принял(а) приглашение в demo",
		invitationLine("ru", "Боб", reply))
	assert.Equal(t, "Bob accepted your invitation to demo",
		invitationLine("en", "Bob", reply))
	// unknown locale falls back to English
	assert.Equal(t, "Bob accepted your invitation to demo",
		invitationLine("tlh", "Bob", reply))
}
