package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// entryWire mirrors Entry with the event payload kept raw so the
// concrete type can be chosen from the kind.
type entryWire struct {
	Timestamp time.Time       `json:"timestamp"`
	Kind      Kind            `json:"kind"`
	Event     json.RawMessage `json:"event"`
}

// UnmarshalJSON decodes an entry produced by the standard JSON
// encoding of Entry, dispatching the event payload to the
// concrete type named by the kind.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var wire entryWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode audit entry: %w", err)
	}

	event, err := decodeEvent(wire.Kind, wire.Event)
	if err != nil {
		return err
	}

	e.Timestamp = wire.Timestamp
	e.Kind = wire.Kind
	e.Event = event
	return nil
}

// decodeAs unmarshals the payload into the concrete value type,
// so decoded entries assert the same way as freshly recorded
// ones.
func decodeAs[T Event](kind Kind, payload json.RawMessage) (Event, error) {
	var ev T
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", kind, err)
	}
	return ev, nil
}

func decodeEvent(kind Kind, payload json.RawMessage) (Event, error) {
	switch kind {
	case KindDataRegistered:
		return decodeAs[DataRegistered](kind, payload)
	case KindOwnershipTransferred:
		return decodeAs[OwnershipTransferred](kind, payload)
	case KindAccessGranted:
		return decodeAs[AccessGranted](kind, payload)
	case KindAccessRevoked:
		return decodeAs[AccessRevoked](kind, payload)
	case KindAccessLogged:
		return decodeAs[AccessLogged](kind, payload)
	case KindProxyKeyGenerated:
		return decodeAs[ProxyKeyGenerated](kind, payload)
	case KindProxyKeyRevoked:
		return decodeAs[ProxyKeyRevoked](kind, payload)
	case KindProxyKeyExpired:
		return decodeAs[ProxyKeyExpired](kind, payload)
	case KindProxyAccessLogged:
		return decodeAs[ProxyAccessLogged](kind, payload)
	default:
		return nil, fmt.Errorf("unknown audit event kind %q", kind)
	}
}
