package domain

// InvitationReply is one unprocessed answer to a room invitation the
// connected identity sent earlier. Owned by the external invitation
// service; the core only reads it and marks it processed.
type InvitationReply struct {
	ID       string
	Room     RoomName
	From     Identity
	Accepted bool
	Message  string
}
