package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Wire framing: "<kind>:<id>:<body>". Kind is a single digit, id is
// optional, body is empty for connect/heartbeat/disconnect and a JSON
// object for event and ack frames. Decode(Encode(e)) == e for every
// envelope this package emits.

// ProtocolError reports a malformed frame. The connection survives it;
// the router logs and drops the frame.
type ProtocolError struct {
	Reason string
	Frame  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s in frame %q", e.Reason, e.Frame)
}

func badFrame(reason string, raw []byte) *ProtocolError {
	f := string(raw)
	if len(f) > 128 {
		f = f[:128]
	}
	return &ProtocolError{Reason: reason, Frame: f}
}

type eventBody struct {
	Name EventName       `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type ackBody struct {
	AckID string          `json:"ackId"`
	Args  json.RawMessage `json:"args,omitempty"`
}

// Encode serializes an envelope into its wire frame.
func Encode(env Envelope) ([]byte, error) {
	var body []byte
	switch env.Kind {
	case KindConnect, KindHeartbeat, KindDisconnect:
	case KindEvent:
		if env.Name == "" {
			return nil, fmt.Errorf("protocol: event envelope without a name")
		}
		b, err := json.Marshal(eventBody{Name: env.Name, Args: env.Args})
		if err != nil {
			return nil, fmt.Errorf("protocol: encode event: %w", err)
		}
		body = b
	case KindAck:
		b, err := json.Marshal(ackBody{AckID: env.AckID, Args: env.Args})
		if err != nil {
			return nil, fmt.Errorf("protocol: encode ack: %w", err)
		}
		body = b
	default:
		return nil, fmt.Errorf("protocol: unknown envelope kind %d", env.Kind)
	}
	return []byte(fmt.Sprintf("%d:%s:%s", env.Kind, env.ID, body)), nil
}

// Decode parses one raw frame into an envelope. Any malformation comes
// back as *ProtocolError.
func Decode(raw []byte) (Envelope, error) {
	parts := strings.SplitN(string(raw), ":", 3)
	if len(parts) != 3 {
		return Envelope{}, badFrame("missing separators", raw)
	}
	if len(parts[0]) != 1 || parts[0][0] < '0' || parts[0][0] > '9' {
		return Envelope{}, badFrame("bad kind digit", raw)
	}
	kind := Kind(parts[0][0] - '0')
	env := Envelope{Kind: kind, ID: parts[1]}
	body := parts[2]

	switch kind {
	case KindConnect, KindHeartbeat, KindDisconnect:
		if body != "" {
			return Envelope{}, badFrame("unexpected body", raw)
		}
	case KindEvent:
		var eb eventBody
		if err := json.Unmarshal([]byte(body), &eb); err != nil {
			return Envelope{}, badFrame("bad event body", raw)
		}
		if eb.Name == "" {
			return Envelope{}, badFrame("event without a name", raw)
		}
		env.Name = eb.Name
		env.Args = eb.Args
	case KindAck:
		var ab ackBody
		if err := json.Unmarshal([]byte(body), &ab); err != nil {
			return Envelope{}, badFrame("bad ack body", raw)
		}
		env.AckID = ab.AckID
		env.Args = ab.Args
	default:
		return Envelope{}, badFrame("unknown kind", raw)
	}
	return env, nil
}

// MustEncode is Encode for server-built envelopes whose shape is fixed
// at compile time.
func MustEncode(env Envelope) []byte {
	b, err := Encode(env)
	if err != nil {
		panic(err)
	}
	return b
}
