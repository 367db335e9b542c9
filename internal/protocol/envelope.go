// Package protocol frames the typed envelopes exchanged over the
// persistent signaling channel, independent of the transport that
// carries them.
package protocol

import "encoding/json"

// Kind is the envelope type. The wire digit is fixed per kind and part
// of the protocol, not an implementation detail.
type Kind int

const (
	KindDisconnect Kind = 0
	KindConnect    Kind = 1
	KindHeartbeat  Kind = 2
	KindEvent      Kind = 5
	KindAck        Kind = 6
)

func (k Kind) String() string {
	switch k {
	case KindDisconnect:
		return "disconnect"
	case KindConnect:
		return "connect"
	case KindHeartbeat:
		return "heartbeat"
	case KindEvent:
		return "event"
	case KindAck:
		return "ack"
	}
	return "unknown"
}

// EventName values the router understands. Anything else is carried
// through decode untouched and ignored at dispatch.
type EventName string

const (
	EventJoin          EventName = "join"
	EventMessage       EventName = "message"
	EventShareScreen   EventName = "shareScreen"
	EventUnshareScreen EventName = "unshareScreen"
	EventLeave         EventName = "leave"
	EventDisconnect    EventName = "disconnect"
	EventRemove        EventName = "remove"
	EventNotification  EventName = "notification"
)

// Envelope is the decoded form of one frame. ID is an optional message
// id the sender may attach to request an ack; Name and Args are set for
// events, AckID and Args for acks.
type Envelope struct {
	Kind  Kind
	ID    string
	Name  EventName
	AckID string
	Args  json.RawMessage
}

func Connect() Envelope    { return Envelope{Kind: KindConnect} }
func Heartbeat() Envelope  { return Envelope{Kind: KindHeartbeat} }
func Disconnect() Envelope { return Envelope{Kind: KindDisconnect} }

// Event builds an event envelope, marshalling args. A marshal failure
// here is a programming error in the caller.
func Event(name EventName, args any) (Envelope, error) {
	if args == nil {
		return Envelope{Kind: KindEvent, Name: name}, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: KindEvent, Name: name, Args: raw}, nil
}

// Ack answers the message identified by ackID.
func Ack(ackID string, args any) (Envelope, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: KindAck, AckID: ackID, Args: raw}, nil
}
