package relay

import (
	"fmt"

	"github.com/roomly/signaling/internal/domain"
)

// The two fatal-to-the-join error kinds and the mismatch that is fatal
// to the whole connection. Frame-local problems (malformed frames,
// unknown event names) never surface as these; they are logged and the
// connection survives.

// SessionMismatchError: the identity claimed in a join does not match
// the identity bound at handshake.
type SessionMismatchError struct {
	Bound   domain.Identity
	Claimed domain.Identity
}

func (e *SessionMismatchError) Error() string {
	return fmt.Sprintf("session mismatch: bound %q, claimed %q", e.Bound, e.Claimed)
}

// AuthorizationError: the room does not exist or the identity resolves
// to no role in it.
type AuthorizationError struct {
	Identity domain.Identity
	Room     domain.RoomName
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("identity %q has no role in room %q", e.Identity, e.Room)
}

// CapacityError: the room's live member count already meets its limit.
type CapacityError struct {
	Room     domain.RoomName
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("room %q is at capacity %d", e.Room, e.Capacity)
}

// InconsistencyError: a live registry entry without a handle. Cleaned
// up silently by the sweeper, never shown to a client.
type InconsistencyError struct {
	ID string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("registry entry %q has no connection handle", e.ID)
}
