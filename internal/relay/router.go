// Package relay interprets decoded envelopes against the registry: the
// join state machine, room fan-out and the liveness sweep live here.
package relay

import (
	"encoding/json"
	"math/rand"

	"github.com/rs/zerolog/log"

	"github.com/roomly/signaling/internal/directory"
	"github.com/roomly/signaling/internal/domain"
	"github.com/roomly/signaling/internal/protocol"
	"github.com/roomly/signaling/internal/registry"
)

var (
	heartbeatFrame  = protocol.MustEncode(protocol.Heartbeat())
	disconnectFrame = protocol.MustEncode(protocol.Disconnect())
)

// Router drives a connection through Open -> InRoom -> Closed. All
// state lives in the registry; the router itself is stateless and safe
// for concurrent use from every read pump.
type Router struct {
	Registry  *registry.Registry
	Directory directory.Directory
	Notifier  directory.JoinNotifier

	// Sampler throttles the heartbeat-driven room activity touch so a
	// chatty room does not hammer the external directory.
	Sampler func() bool
}

func NewRouter(reg *registry.Registry, dir directory.Directory) *Router {
	return &Router{
		Registry:  reg,
		Directory: dir,
		Sampler:   func() bool { return rand.Intn(16) == 0 },
	}
}

type joinArgs struct {
	Room     string            `json:"room"`
	Identity string            `json:"identity"`
	Media    domain.MediaFlags `json:"media"`
}

type ackArgs struct {
	Clients map[string]domain.MediaFlags `json:"clients"`
}

type messageArgs struct {
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type relayedMessage struct {
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type removeArgs struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type notificationArgs struct {
	Messages []string `json:"messages"`
}

// HandleFrame processes one raw inbound frame from the connection
// identified by id. Any inbound traffic counts as liveness.
func (rt *Router) HandleFrame(id string, raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		// malformed frame: dropped, connection survives
		log.Warn().Str("module", "relay").Str("id", id).Err(err).Msg("dropping malformed frame")
		return
	}
	rt.Registry.Touch(id)

	switch env.Kind {
	case protocol.KindHeartbeat:
		rt.handleHeartbeat(id)
	case protocol.KindDisconnect:
		rt.Drop(id)
	case protocol.KindEvent:
		rt.handleEvent(id, env)
	case protocol.KindConnect, protocol.KindAck:
		// liveness already recorded, nothing else to do
	}
}

func (rt *Router) handleEvent(id string, env protocol.Envelope) {
	switch env.Name {
	case protocol.EventJoin:
		rt.handleJoin(id, env)
	case protocol.EventMessage:
		rt.handleMessage(id, env)
	case protocol.EventShareScreen:
		rt.handleShareScreen(id, true)
	case protocol.EventUnshareScreen:
		rt.handleShareScreen(id, false)
	case protocol.EventLeave, protocol.EventDisconnect:
		rt.Drop(id)
	default:
		log.Warn().Str("module", "relay").Str("id", id).Str("event", string(env.Name)).Msg("ignoring unrecognized event")
	}
}

func (rt *Router) handleJoin(id string, env protocol.Envelope) {
	snap, ok := rt.Registry.Get(id)
	if !ok {
		return
	}
	var p joinArgs
	if err := json.Unmarshal(env.Args, &p); err != nil {
		log.Warn().Str("module", "relay").Str("id", id).Err(err).Msg("bad join args")
		return
	}
	if domain.Identity(p.Identity) != snap.Identity {
		rt.reject(id, &SessionMismatchError{Bound: snap.Identity, Claimed: domain.Identity(p.Identity)})
		return
	}
	room := domain.RoomName(p.Room)

	// A second join replaces the previous membership; the old room sees
	// the same departure it would on a leave.
	if snap.Room != "" {
		rt.departRoom(id)
	}

	info, exists := rt.Directory.Rooms.Lookup(room)
	if !exists {
		rt.reject(id, &AuthorizationError{Identity: snap.Identity, Room: room})
		return
	}
	role := domain.EffectiveRole(rt.Directory.Roles.Resolve(snap.Identity, room))
	if role == domain.RoleNone {
		rt.reject(id, &AuthorizationError{Identity: snap.Identity, Room: room})
		return
	}

	// Capacity check and membership install happen as one registry step.
	if err := rt.Registry.JoinRoom(id, room, role, p.Media, info.Capacity); err != nil {
		if err == registry.ErrRoomFull {
			rt.reject(id, &CapacityError{Room: room, Capacity: info.Capacity})
		}
		return
	}

	// Only the joiner learns the current roster; existing members hear
	// nothing until the new peer contacts them directly.
	clients := make(map[string]domain.MediaFlags)
	for _, member := range rt.Registry.MembersOf(room) {
		if member.ID != id {
			clients[member.ID] = member.Media
		}
	}
	ack, err := protocol.Ack(env.ID, ackArgs{Clients: clients})
	if err != nil {
		log.Error().Str("module", "relay").Err(err).Msg("encode join ack")
		return
	}
	rt.Registry.Unicast(id, protocol.MustEncode(ack))

	if rt.Notifier != nil {
		// the email side effect is external and must not stall the relay
		go rt.Notifier.PeerJoined(room, snap.Identity)
	}
	log.Info().Str("module", "relay").Str("id", id).Str("room", p.Room).Str("role", string(role)).Msg("join complete")
}

func (rt *Router) handleMessage(id string, env protocol.Envelope) {
	snap, ok := rt.Registry.Get(id)
	if !ok || snap.Room == "" {
		log.Debug().Str("module", "relay").Str("id", id).Msg("message outside a room ignored")
		return
	}
	var p messageArgs
	if err := json.Unmarshal(env.Args, &p); err != nil {
		log.Warn().Str("module", "relay").Str("id", id).Err(err).Msg("bad message args")
		return
	}
	out, err := protocol.Event(protocol.EventMessage, relayedMessage{From: id, Payload: p.Payload})
	if err != nil {
		log.Error().Str("module", "relay").Err(err).Msg("encode relayed message")
		return
	}
	frame := protocol.MustEncode(out)

	if p.To != "" {
		target, ok := rt.Registry.Get(p.To)
		if ok && target.Room == snap.Room && target.HasHandle {
			rt.Registry.Unicast(p.To, frame)
			return
		}
		// invalid unicast target degrades to a room-wide broadcast
	}
	rt.Registry.Broadcast(snap.Room, id, frame)
}

func (rt *Router) handleShareScreen(id string, on bool) {
	snap, ok := rt.Registry.Get(id)
	if !ok || snap.Room == "" {
		return
	}
	rt.Registry.SetScreen(id, on)
	if !on {
		rt.Registry.Broadcast(snap.Room, id, removeFrame(id, "screen"))
	}
}

func (rt *Router) handleHeartbeat(id string) {
	snap, ok := rt.Registry.Get(id)
	if !ok || snap.Room == "" {
		return
	}
	if rt.Sampler != nil && rt.Sampler() {
		rt.Directory.Rooms.TouchActivity(snap.Room)
	}
}

// Drop closes a connection through the one cleanup path shared by
// voluntary leaves, rejected joins, transport errors and the sweeper.
func (rt *Router) Drop(id string) {
	snap, ok := rt.Registry.Remove(id)
	if !ok {
		return
	}
	rt.announceDeparture(id, snap)
}

// DropIfCurrent is Drop for transport close paths: it only acts while h
// is still the handle registered under id, so the pump of an evicted
// connection cannot remove the entry that replaced it.
func (rt *Router) DropIfCurrent(id string, h registry.Handle) {
	snap, ok := rt.Registry.RemoveIfCurrent(id, h)
	if !ok {
		return
	}
	rt.announceDeparture(id, snap)
}

func (rt *Router) announceDeparture(id string, snap registry.Snapshot) {
	if snap.Room != "" {
		rt.Registry.Broadcast(snap.Room, id, removeFrame(id, "video"))
		rt.Directory.Rooms.TouchActivity(snap.Room)
	}
}

// departRoom removes the peer from its room without closing the channel.
func (rt *Router) departRoom(id string) {
	former, ok := rt.Registry.LeaveRoom(id)
	if !ok {
		return
	}
	rt.Registry.Broadcast(former, id, removeFrame(id, "video"))
	rt.Directory.Rooms.TouchActivity(former)
}

// reject sends the terminal disconnect envelope and closes the channel.
func (rt *Router) reject(id string, reason error) {
	log.Warn().Str("module", "relay").Str("id", id).Err(reason).Msg("rejecting connection")
	rt.Registry.Unicast(id, disconnectFrame)
	rt.Drop(id)
}

func removeFrame(id, kind string) []byte {
	env, err := protocol.Event(protocol.EventRemove, removeArgs{ID: id, Type: kind})
	if err != nil {
		panic(err)
	}
	return protocol.MustEncode(env)
}
