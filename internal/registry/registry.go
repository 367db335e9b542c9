// Package registry owns the directory of live signaling connections:
// who is online, in which room, and through which handle. It is the
// single serialization point for all presence mutation.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/roomly/signaling/internal/domain"
)

// Handle is the transport endpoint owned by a registry entry. Closing
// the entry closes the handle; TrySend never blocks.
type Handle interface {
	TrySend(frame []byte) error
	Close()
}

var (
	ErrNotRegistered = errors.New("registry: connection not registered")
	ErrRoomFull      = errors.New("registry: room at capacity")
)

// peer is one live connection. Mutated only under Registry.mu.
type peer struct {
	id             string
	handle         Handle
	identity       domain.Identity
	locale         domain.Locale
	room           domain.RoomName
	role           domain.Role
	media          domain.MediaFlags
	lastSeen       time.Time
	pendingInvites bool
}

// Snapshot is a read-only copy of a peer taken under the lock. HasHandle
// is false only in inconsistent states the sweeper cleans up.
type Snapshot struct {
	ID             string
	Identity       domain.Identity
	Locale         domain.Locale
	Room           domain.RoomName
	Role           domain.Role
	Media          domain.MediaFlags
	LastSeen       time.Time
	PendingInvites bool
	HasHandle      bool
}

type Registry struct {
	mu    sync.RWMutex
	peers map[string]*peer
	clock func() time.Time
}

func New() *Registry {
	return &Registry{
		peers: make(map[string]*peer),
		clock: time.Now,
	}
}

// NewWithClock is New with an injected clock for liveness tests.
func NewWithClock(clock func() time.Time) *Registry {
	r := New()
	r.clock = clock
	return r
}

// Register installs a new entry. A duplicate id is a garbage condition:
// the stale entry is logged, its handle closed, and the new entry wins.
func (r *Registry) Register(id string, h Handle, identity domain.Identity, locale domain.Locale) {
	r.mu.Lock()
	old, dup := r.peers[id]
	r.peers[id] = &peer{
		id:             id,
		handle:         h,
		identity:       identity,
		locale:         locale,
		lastSeen:       r.clock(),
		pendingInvites: true,
	}
	r.mu.Unlock()

	if dup {
		log.Warn().Str("module", "registry").Str("id", id).Msg("duplicate connection id, evicting old entry")
		if old.handle != nil {
			old.handle.Close()
		}
	}
	log.Info().Str("module", "registry").Str("id", id).Str("identity", string(identity)).Msg("connection registered")
}

func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(p), true
}

// MembersOf lists current members of a room in no particular order.
func (r *Registry) MembersOf(room domain.RoomName) []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.peers))
	for _, p := range r.peers {
		if p.room == room && p.room != "" {
			out = append(out, snapshotOf(p))
		}
	}
	return out
}

// Remove deletes the entry and closes its handle. Idempotent: removing
// an absent id is a no-op. The former state is returned so the caller
// can announce the departure.
func (r *Registry) Remove(id string) (Snapshot, bool) {
	return r.removeMatching(id, nil)
}

// RemoveIfCurrent removes the entry only while h is still its
// registered handle. A read pump outliving its own eviction must not
// tear down the replacement that took its id.
func (r *Registry) RemoveIfCurrent(id string, h Handle) (Snapshot, bool) {
	return r.removeMatching(id, h)
}

func (r *Registry) removeMatching(id string, h Handle) (Snapshot, bool) {
	r.mu.Lock()
	p, ok := r.peers[id]
	if !ok || (h != nil && p.handle != h) {
		r.mu.Unlock()
		return Snapshot{}, false
	}
	delete(r.peers, id)
	snap := snapshotOf(p)
	r.mu.Unlock()

	if p.handle != nil {
		p.handle.Close()
	}
	log.Info().Str("module", "registry").Str("id", id).Str("room", string(snap.Room)).Msg("connection removed")
	return snap, true
}

// Touch bumps lastSeen for any inbound traffic.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[id]; ok {
		p.lastSeen = r.clock()
	}
}

// JoinRoom checks the room's live member count against capacity and
// installs the membership in the same locked step, so concurrent joins
// can never over-admit. Capacity 0 means unlimited.
func (r *Registry) JoinRoom(id string, room domain.RoomName, role domain.Role, media domain.MediaFlags, capacity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return ErrNotRegistered
	}
	if capacity > 0 {
		count := 0
		for _, other := range r.peers {
			if other.room == room && other.id != id {
				count++
			}
		}
		if count >= capacity {
			return ErrRoomFull
		}
	}
	p.room = room
	p.role = role
	p.media = media
	log.Info().Str("module", "registry").Str("id", id).Str("room", string(room)).Str("role", string(role)).Msg("joined room")
	return nil
}

// LeaveRoom clears the membership, returning the former room.
func (r *Registry) LeaveRoom(id string) (domain.RoomName, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok || p.room == "" {
		return "", false
	}
	former := p.room
	p.room = ""
	p.role = domain.RoleNone
	p.media = domain.MediaFlags{}
	return former, true
}

// SetScreen toggles the screen flag, reporting whether the entry exists.
func (r *Registry) SetScreen(id string, on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return false
	}
	p.media.Screen = on
	return true
}

// ClearInviteFlag marks the one-shot invitation check as done.
func (r *Registry) ClearInviteFlag(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[id]; ok {
		p.pendingInvites = false
	}
}

// All snapshots every entry for the liveness sweep.
func (r *Registry) All() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, snapshotOf(p))
	}
	return out
}

// Counts reports distinct occupied rooms and live connections.
func (r *Registry) Counts() (rooms, conns int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[domain.RoomName]struct{})
	for _, p := range r.peers {
		if p.room != "" {
			seen[p.room] = struct{}{}
		}
	}
	return len(seen), len(r.peers)
}

func snapshotOf(p *peer) Snapshot {
	return Snapshot{
		ID:             p.id,
		Identity:       p.identity,
		Locale:         p.locale,
		Room:           p.room,
		Role:           p.role,
		Media:          p.media,
		LastSeen:       p.lastSeen,
		PendingInvites: p.pendingInvites,
		HasHandle:      p.handle != nil,
	}
}
