package bullet

import "errors"

// All pool errors are local and recoverable; none should stop a run.
var (
	// ErrCapacityExceeded means no free slot was available. The spawn was a no-op.
	// Scripts are expected to tolerate these drops under heavy load.
	ErrCapacityExceeded = errors.New("bullet: capacity exceeded")

	// ErrInvalidSpawnSpec means a SpawnSpec was rejected before reaching the arena.
	ErrInvalidSpawnSpec = errors.New("bullet: invalid spawn spec")

	// ErrStaleHandle means the handle's slot was recycled; treat the bullet as dead.
	ErrStaleHandle = errors.New("bullet: stale handle")

	// ErrPhaseOrder means a tick pass was called out of order
	// (for example colliding against positions that were not integrated yet).
	ErrPhaseOrder = errors.New("bullet: tick phase out of order")
)
