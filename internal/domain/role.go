package domain

// Role is what the external authorization service resolves for an
// identity inside a room. The zero value means "no role": the identity
// may not enter the room at all.
type Role string

const (
	RoleNone        Role = ""
	RoleParticipant Role = "participant"
	RoleOwner       Role = "owner"
	RoleAdmin       Role = "admin"
)

// EffectiveRole collapses admin to owner: inside a room an admin has
// exactly the owner's powers, nothing more. All comparison sites go
// through this instead of matching on RoleAdmin themselves.
func EffectiveRole(r Role) Role {
	if r == RoleAdmin {
		return RoleOwner
	}
	return r
}

func (r Role) Valid() bool {
	switch r {
	case RoleParticipant, RoleOwner, RoleAdmin:
		return true
	}
	return false
}
