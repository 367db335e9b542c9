// Package directory declares the collaborator interfaces the signaling
// core consumes. Rooms, roles, invitations and profiles are owned by
// the outer booking application; the core only calls across.
package directory

import (
	"context"

	"github.com/roomly/signaling/internal/domain"
)

// RoomInfo is what the external room directory knows that the core
// cares about. Capacity 0 means unlimited.
type RoomInfo struct {
	Name     domain.RoomName
	Capacity int
}

// Rooms is lookup-by-name plus the last-activity touch the relay makes
// on heartbeats and departures.
type Rooms interface {
	Lookup(name domain.RoomName) (RoomInfo, bool)
	TouchActivity(name domain.RoomName)
}

// Roles resolves the role an identity holds in a room. RoleNone means
// the identity may not enter.
type Roles interface {
	Resolve(id domain.Identity, room domain.RoomName) domain.Role
}

// Invitations exposes the unprocessed invitation replies the sweeper
// delivers as notifications.
type Invitations interface {
	UnprocessedFor(id domain.Identity) []domain.InvitationReply
	MarkProcessed(replyID string)
}

// Profiles supplies display names and locales for notification text.
type Profiles interface {
	DisplayName(id domain.Identity) string
	Locale(id domain.Identity) domain.Locale
}

// Directory bundles the consumed collaborator surfaces.
type Directory struct {
	Rooms       Rooms
	Roles       Roles
	Invitations Invitations
	Profiles    Profiles
}

// JoinNotifier is the hook the outer web layer registers to observe
// successful joins (it dispatches the email side effect, not the core).
type JoinNotifier interface {
	PeerJoined(room domain.RoomName, id domain.Identity)
}

// JoinNotifierFunc adapts a function to JoinNotifier.
type JoinNotifierFunc func(room domain.RoomName, id domain.Identity)

func (f JoinNotifierFunc) PeerJoined(room domain.RoomName, id domain.Identity) { f(room, id) }

// Maintenance is the hourly external upkeep task (room and invitation
// expiry, session-key rotation). Out of core scope; the scheduler only
// needs something to call.
type Maintenance interface {
	Run(ctx context.Context) error
}

// MaintenanceFunc adapts a function to Maintenance.
type MaintenanceFunc func(ctx context.Context) error

func (f MaintenanceFunc) Run(ctx context.Context) error { return f(ctx) }
