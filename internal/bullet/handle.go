package bullet

import (
	"fmt"

	"danmaku/internal/trajectory"
)

// Handle is an external reference to a bullet: slot index plus the slot's
// generation at spawn time. The zero Handle never refers to a bullet.
type Handle struct {
	Slot uint32
	Gen  uint32
}

func (h Handle) String() string {
	return fmt.Sprintf("%d@%d", h.Slot, h.Gen)
}

// IsZero reports whether h is the zero handle returned by failed spawns.
func (h Handle) IsZero() bool {
	return h.Gen == 0
}

// View is a read-only copy of one bullet's fields.
type View struct {
	Handle      Handle
	Kind        trajectory.Kind
	X, Y        float64
	Speed       float64
	Angle       float64
	Radius      float64
	GrazeRadius float64
	Visual      uint16
	Color       uint32
	Owner       string
	Age         int32
	Lifetime    int32
	Damage      int32
	Pierce      int32
	Grazing     bool
	Pending     bool // Reserved during a tick, not yet integrated or collided
}
