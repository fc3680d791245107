package sim

import (
	"sync"
	"sync/atomic"
	"time"

	"danmaku/internal/bullet"
)

// Frame is an immutable copy of one tick's render state.
// All slices are preallocated to pool capacity and never grow.
type Frame struct {
	Sequence  uint64    `json:"sequence"`
	Tick      uint64    `json:"tick"`
	Timestamp time.Time `json:"timestamp"`

	Player  bullet.Player         `json:"player"`
	Enemy   []bullet.RenderBullet `json:"enemy"`
	Shots   []bullet.RenderBullet `json:"shots"`
	Targets []bullet.Target       `json:"targets"`

	Hits       int `json:"hits"`
	Grazes     int `json:"grazes"`
	TargetHits int `json:"targetHits"`
}

// CopyTo deep-copies f into dst, reusing dst's slices.
func (f *Frame) CopyTo(dst *Frame) {
	enemy, shots, targets := dst.Enemy, dst.Shots, dst.Targets
	*dst = *f
	dst.Enemy = append(enemy[:0], f.Enemy...)
	dst.Shots = append(shots[:0], f.Shots...)
	dst.Targets = append(targets[:0], f.Targets...)
}

const dirtyBit = 4

// SnapshotBuffer is a triple buffer between the tick goroutine (single writer)
// and render readers. The writer never blocks; readers serialize among
// themselves but never wait on the writer.
//
// state packs the index of the middle buffer (bits 0-1) and a dirty bit set
// when the middle holds a frame the readers have not picked up yet.
type SnapshotBuffer struct {
	frames   [3]Frame
	state    atomic.Uint32
	back     uint32 // writer only
	front    uint32 // guarded by readMu
	readMu   sync.Mutex
	sequence uint64 // writer only
}

// NewSnapshotBuffer preallocates every frame for the given pool capacities.
func NewSnapshotBuffer(enemyCap, shotCap, targetCap int) *SnapshotBuffer {
	b := &SnapshotBuffer{back: 0, front: 2}
	b.state.Store(1)
	for i := range b.frames {
		b.frames[i] = Frame{
			Enemy:   make([]bullet.RenderBullet, 0, enemyCap),
			Shots:   make([]bullet.RenderBullet, 0, shotCap),
			Targets: make([]bullet.Target, 0, targetCap),
		}
	}
	return b
}

// AcquireWrite returns the back frame with reset slices (writer only).
func (b *SnapshotBuffer) AcquireWrite() *Frame {
	f := &b.frames[b.back]
	f.Enemy = f.Enemy[:0]
	f.Shots = f.Shots[:0]
	f.Targets = f.Targets[:0]
	f.Hits, f.Grazes, f.TargetHits = 0, 0, 0

	b.sequence++
	f.Sequence = b.sequence
	f.Timestamp = time.Now()
	return f
}

// PublishWrite swaps the filled back frame into the middle (writer only).
func (b *SnapshotBuffer) PublishWrite() {
	old := b.state.Swap(b.back | dirtyBit)
	b.back = old &^ dirtyBit
}

// View calls fn with the newest published frame. fn must not retain it.
// Before the first publish fn sees an empty frame with Sequence 0.
func (b *SnapshotBuffer) View(fn func(*Frame)) {
	b.readMu.Lock()
	defer b.readMu.Unlock()

	if b.state.Load()&dirtyBit != 0 {
		old := b.state.Swap(b.front)
		b.front = old &^ dirtyBit
	}
	fn(&b.frames[b.front])
}

// Latest returns a deep copy of the newest frame.
func (b *SnapshotBuffer) Latest() *Frame {
	out := &Frame{}
	b.View(func(f *Frame) { f.CopyTo(out) })
	return out
}
