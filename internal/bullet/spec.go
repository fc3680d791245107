package bullet

import (
	"fmt"
	"math"

	"danmaku/internal/trajectory"
)

// SpawnSpec describes one bullet to create.
// Angles are degrees (0 = screen right, 90 = screen up), speeds are units per tick.
type SpawnSpec struct {
	Kind   trajectory.Kind
	Params trajectory.Params

	X, Y  float64
	Speed float64
	Angle float64 // For trajectory.Aimed this is an offset from the aim line

	Radius      float64 // Hit radius against the player's hit point
	GrazeRadius float64 // Near-miss radius, must be >= Radius

	Visual uint16 // Opaque sprite id for the renderer
	Color  uint32 // Opaque packed RGBA for the renderer
	Owner  string // Provenance tag used by filtered clears

	Lifetime int32 // Max age in ticks, 0 = until culled
	Damage   int32 // Payload for target hits (player shots)
	Pierce   int32 // Extra target hits before the shot is spent
}

// Validate rejects specs that would break the arena invariants.
func (s *SpawnSpec) Validate() error {
	if !s.Kind.Valid() {
		return invalid("unknown trajectory kind %d", s.Kind)
	}
	for _, v := range [...]float64{s.X, s.Y, s.Speed, s.Angle, s.Radius, s.GrazeRadius} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid("non-finite value %v", v)
		}
	}
	if s.Radius < 0 {
		return invalid("negative radius %v", s.Radius)
	}
	if s.GrazeRadius < s.Radius {
		return invalid("graze radius %v below hit radius %v", s.GrazeRadius, s.Radius)
	}
	if s.Lifetime < 0 {
		return invalid("negative lifetime %d", s.Lifetime)
	}
	if s.Pierce < 0 {
		return invalid("negative pierce %d", s.Pierce)
	}
	if err := s.Params.Validate(s.Kind); err != nil {
		return invalid("%s params: %v", s.Kind, err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSpawnSpec, fmt.Sprintf(format, args...))
}
