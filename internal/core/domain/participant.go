package domain

import (
	"bytes"
	"encoding/json"
)

const (
	// SystemParticipant stands in for a null sender or receiver.
	SystemParticipant = "system"
	// UnknownParticipant stands in for any shape that carries no id.
	UnknownParticipant = "unknown"
)

// ResolveParticipant reduces a sender or receiver field to an id. The backend
// sends null, a bare id string, or an embedded user document.
func ResolveParticipant(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return UnknownParticipant
	}

	switch trimmed[0] {
	case 'n':
		if bytes.Equal(trimmed, []byte("null")) {
			return SystemParticipant
		}
	case '"':
		var id string
		if err := json.Unmarshal(trimmed, &id); err == nil {
			return id
		}
	case '{':
		if id, ok := objectID(trimmed); ok {
			return id
		}
	}

	return UnknownParticipant
}

// ResolveReference is ResolveParticipant for optional references (ticket,
// customer). Anything that is not an id yields "".
func ResolveReference(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}

	switch trimmed[0] {
	case '"':
		var id string
		if err := json.Unmarshal(trimmed, &id); err == nil {
			return id
		}
	case '{':
		if id, ok := objectID(trimmed); ok {
			return id
		}
	}

	return ""
}

func objectID(raw []byte) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", false
	}

	for _, key := range []string{"_id", "id"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		var id string
		if err := json.Unmarshal(value, &id); err == nil && id != "" {
			return id, true
		}
	}

	return "", false
}
