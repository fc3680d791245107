// Package trajectory holds the closed set of bullet motion laws.
//
// Every law is a pure function of one bullet's own state, its parameters and
// its age in ticks. Motion is expressed in units per tick, never per second,
// so a run at a fixed tick rate integrates identically every time.
package trajectory

import "strings"

// Kind selects the motion law applied to a bullet each tick.
// Adding a motion means adding a Kind and a case in Step.
type Kind uint8

const (
	// Straight moves along the spawn velocity unchanged
	Straight Kind = iota
	// Accelerating adds Accel to speed each tick; speed may go negative
	Accelerating
	// Curved adds AngularAccel to the angle each tick
	Curved
	// AccelCurved applies speed change, then angle change, then displacement
	AccelCurved
	// Aimed points at the player when spawned, then behaves like Accelerating
	Aimed
	// DelayedCurve flies straight for SwitchTick ticks, then behaves like AccelCurved
	DelayedCurve
	// Vector adds a cartesian acceleration (AX, AY) to the velocity each tick
	Vector
	// Sine oscillates the heading around BaseAngle as a function of age
	Sine

	kindCount
)

var kindNames = [kindCount]string{
	Straight:     "straight",
	Accelerating: "accelerating",
	Curved:       "curved",
	AccelCurved:  "accel_curved",
	Aimed:        "aimed",
	DelayedCurve: "delayed_curve",
	Vector:       "vector",
	Sine:         "sine",
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k < kindCount
}

func (k Kind) String() string {
	if !k.Valid() {
		return "unknown"
	}
	return kindNames[k]
}

// ParseKind maps a content-authoring name ("curved", "accel_curved", ...) to a Kind.
func ParseKind(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// Kinds returns every known kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}
