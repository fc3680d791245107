package trajectory

import (
	"errors"
	"math"
)

// Params carries the per-kind numeric parameters of a bullet.
// Fields a kind does not read are ignored by it.
type Params struct {
	Accel        float64 // Speed delta per tick
	AngularAccel float64 // Angle delta per tick, degrees

	// Optional speed clamp for Accelerating, AccelCurved, Aimed and DelayedCurve
	Clamp    bool
	MinSpeed float64
	MaxSpeed float64

	SwitchTick int32 // DelayedCurve: straight ticks before curving

	AX, AY float64 // Vector: velocity delta per tick

	Amplitude float64 // Sine: heading swing, degrees
	Period    float64 // Sine: ticks per full oscillation
	BaseAngle float64 // Sine: center heading, degrees (set at spawn)
}

var (
	errBadClamp  = errors.New("min speed above max speed")
	errBadPeriod = errors.New("sine period must be positive")
	errNotFinite = errors.New("parameter is not finite")
	errBadSwitch = errors.New("switch tick must not be negative")
)

// Validate checks the parameters that kind k reads.
func (p *Params) Validate(k Kind) error {
	for _, v := range [...]float64{p.Accel, p.AngularAccel, p.MinSpeed, p.MaxSpeed, p.AX, p.AY, p.Amplitude, p.Period, p.BaseAngle} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errNotFinite
		}
	}
	if p.Clamp && p.MinSpeed > p.MaxSpeed {
		return errBadClamp
	}
	switch k {
	case Sine:
		if p.Period <= 0 {
			return errBadPeriod
		}
	case DelayedCurve:
		if p.SwitchTick < 0 {
			return errBadSwitch
		}
	}
	return nil
}

// State is the kinematic state of one bullet.
// DX, DY cache the unit heading so laws that keep the angle skip trig.
type State struct {
	X, Y   float64
	VX, VY float64
	DX, DY float64
	Speed  float64
	Angle  float64 // degrees, 0 = +x, 90 = +y
}

// Launch builds the initial state for a bullet at (x, y) moving at speed along angle.
func Launch(x, y, speed, angle float64) State {
	s, c := SinCosDeg(angle)
	return State{
		X:     x,
		Y:     y,
		VX:    c * speed,
		VY:    s * speed,
		DX:    c,
		DY:    s,
		Speed: speed,
		Angle: angle,
	}
}

// Step advances s by one tick under kind k. age is the number of ticks the
// bullet has already been integrated (0 on its first step).
//
// Order inside a tick is fixed: speed change, then angle change, then
// displacement from the updated values.
func Step(k Kind, p *Params, s State, age int32) State {
	switch k {
	case Straight:
		// velocity fixed at launch

	case Accelerating, Aimed:
		s.Speed = clampSpeed(p, s.Speed+p.Accel)
		s.VX = s.DX * s.Speed
		s.VY = s.DY * s.Speed

	case Curved:
		s = turn(s, s.Angle+p.AngularAccel)

	case AccelCurved:
		s.Speed = clampSpeed(p, s.Speed+p.Accel)
		s = turn(s, s.Angle+p.AngularAccel)

	case DelayedCurve:
		if age >= p.SwitchTick {
			s.Speed = clampSpeed(p, s.Speed+p.Accel)
			s = turn(s, s.Angle+p.AngularAccel)
		}

	case Vector:
		s.VX += p.AX
		s.VY += p.AY
		s.Speed = math.Hypot(s.VX, s.VY)
		if s.Speed > 0 {
			s.DX = s.VX / s.Speed
			s.DY = s.VY / s.Speed
			s.Angle = math.Atan2(s.VY, s.VX) * 180 / math.Pi
		}

	case Sine:
		s.Speed = clampSpeed(p, s.Speed+p.Accel)
		phase := 2 * math.Pi * float64(age) / p.Period
		s = turn(s, p.BaseAngle+p.Amplitude*math.Sin(phase))
	}

	s.X += s.VX
	s.Y += s.VY
	return s
}

// turn sets the heading and recomputes direction and velocity.
func turn(s State, angle float64) State {
	s.Angle = angle
	s.DY, s.DX = SinCosDeg(angle)
	s.VX = s.DX * s.Speed
	s.VY = s.DY * s.Speed
	return s
}

func clampSpeed(p *Params, v float64) float64 {
	if !p.Clamp {
		return v
	}
	if v < p.MinSpeed {
		return p.MinSpeed
	}
	if v > p.MaxSpeed {
		return p.MaxSpeed
	}
	return v
}

// SinCosDeg returns sin and cos of an angle in degrees.
// Multiples of 90 degrees return exact 0/±1 so axis-aligned motion has no drift.
func SinCosDeg(deg float64) (sin, cos float64) {
	r := math.Mod(deg, 360)
	if r < 0 {
		r += 360
	}
	switch r {
	case 0:
		return 0, 1
	case 90:
		return 1, 0
	case 180:
		return 0, -1
	case 270:
		return -1, 0
	}
	return math.Sincos(r * math.Pi / 180)
}

// AimAngle returns the heading in degrees from (x, y) toward (tx, ty).
// A zero-length aim returns -90 (straight down the screen).
func AimAngle(x, y, tx, ty float64) float64 {
	dx, dy := tx-x, ty-y
	if dx == 0 && dy == 0 {
		return -90
	}
	return math.Atan2(dy, dx) * 180 / math.Pi
}
