package eventlog

import (
	"encoding/json"
	"time"
)

// Type enum for event classification
type Type uint8

const (
	TypeUnknown   Type = iota
	TypeTick           // Tick boundary with pool occupancy
	TypeHit            // Bullet touched the player's hit point
	TypeGraze          // Bullet entered the graze circle
	TypeDeath          // Bullet removed (culled, expired, hit, cleared, killed)
	TypeClear          // Filtered clear issued by a script
	TypeTargetHit      // Player shot hit an enemy target
	TypeDrop           // Spawn dropped on capacity
)

// Version for backwards compatibility in replay tooling
const Version uint8 = 1

// Event is the record written to the JSONL log
type Event struct {
	Version   uint8           `json:"version"`
	Type      Type            `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`  // Monotonic sequence
	Tick      uint64          `json:"tick"`
	RunID     string          `json:"runId"`
	Owner     string          `json:"owner,omitempty"` // Owner tag, also the rate-limit key
	Payload   json.RawMessage `json:"payload,omitempty"`
}

var typeNames = [...]string{
	TypeUnknown:   "unknown",
	TypeTick:      "tick",
	TypeHit:       "hit",
	TypeGraze:     "graze",
	TypeDeath:     "death",
	TypeClear:     "clear",
	TypeTargetHit: "target_hit",
	TypeDrop:      "drop",
}

// String returns human-readable event type
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// MarshalText writes the type name so log lines stay greppable
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a type name
func (t *Type) UnmarshalText(b []byte) error {
	for i, name := range typeNames {
		if name == string(b) {
			*t = Type(i)
			return nil
		}
	}
	*t = TypeUnknown
	return nil
}

// Typed payloads

// TickPayload is emitted once per tick
type TickPayload struct {
	Pool    string `json:"pool"`
	Live    int    `json:"live"`
	Pending int    `json:"pending"`
	Hits    int    `json:"hits"`
	Grazes  int    `json:"grazes"`
	TickNs  int64  `json:"tickNs"`
}

// ContactPayload covers hit and graze events
type ContactPayload struct {
	Pool   string  `json:"pool"`
	Handle string  `json:"handle"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// DeathPayload records why a bullet was removed
type DeathPayload struct {
	Pool   string  `json:"pool"`
	Handle string  `json:"handle"`
	Cause  string  `json:"cause"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// ClearPayload records a filtered clear
type ClearPayload struct {
	Pool    string `json:"pool"`
	Removed int    `json:"removed"`
}

// TargetHitPayload records a shot hitting an enemy
type TargetHitPayload struct {
	Target int     `json:"target"`
	Damage int32   `json:"damage"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// DropPayload records spawns rejected for capacity
type DropPayload struct {
	Pool  string `json:"pool"`
	Count int    `json:"count"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload any) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType Type, tick uint64, owner string, payload any) Event {
	return Event{
		Version:   Version,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		Tick:      tick,
		Owner:     owner,
		Payload:   EncodePayload(payload),
	}
}
