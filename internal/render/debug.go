// Package render draws simulation frames to PNG for debugging.
// It only reads sim.Frame data and never touches a pool.
package render

import (
	"bufio"
	"image"
	"image/color"
	"io"
	"sync"

	"danmaku/internal/sim"

	"github.com/fogleman/gg"
)

var (
	backgroundColor = color.RGBA{12, 12, 28, 255}
	playfieldColor  = color.RGBA{40, 40, 60, 255}
	hitColor        = color.RGBA{255, 62, 62, 255}
	grazeColor      = color.RGBA{255, 255, 255, 90}
	shotColor       = color.RGBA{83, 255, 69, 200}
	targetColor     = color.RGBA{255, 149, 0, 255}
)

// palette colors bullets that carry no packed color, indexed by Visual.
var palette = []color.RGBA{
	{255, 80, 120, 255},
	{90, 160, 255, 255},
	{255, 220, 80, 255},
	{180, 110, 255, 255},
	{80, 230, 210, 255},
}

// minPixelRadius keeps tiny bullets visible.
const minPixelRadius = 1.5

// DebugRenderer rasterizes frames onto a fixed canvas. Normalized playfield
// coordinates map with the origin at the center and +y up; [-1, 1] on each
// axis fills the canvas.
type DebugRenderer struct {
	mu     sync.Mutex // dc is reused across frames
	dc     *gg.Context
	width  float64
	height float64
}

// NewDebugRenderer allocates a width x height canvas.
func NewDebugRenderer(width, height int) *DebugRenderer {
	return &DebugRenderer{
		dc:     gg.NewContext(width, height),
		width:  float64(width),
		height: float64(height),
	}
}

// ToPixel maps a playfield point to canvas pixels.
func (r *DebugRenderer) ToPixel(x, y float64) (px, py float64) {
	return (x + 1) * r.width / 2, (1 - y) * r.height / 2
}

// scale returns the per-axis pixel size of a playfield length.
func (r *DebugRenderer) scale(length float64) (sx, sy float64) {
	return length * r.width / 2, length * r.height / 2
}

// Color unpacks 0xRRGGBBAA. Zero falls back to the palette entry for visual.
func Color(packed uint32, visual uint16) color.RGBA {
	if packed == 0 {
		return palette[int(visual)%len(palette)]
	}
	return color.RGBA{
		R: uint8(packed >> 24),
		G: uint8(packed >> 16),
		B: uint8(packed >> 8),
		A: uint8(packed),
	}
}

// Draw renders f and returns the canvas image. The image is reused by the
// next call; copy it if it must outlive that.
func (r *DebugRenderer) Draw(f *sim.Frame) image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draw(f)
	return r.dc.Image()
}

// EncodePNG renders f and writes it to w as PNG.
func (r *DebugRenderer) EncodePNG(w io.Writer, f *sim.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draw(f)

	bw := bufio.NewWriter(w)
	if err := r.dc.EncodePNG(bw); err != nil {
		return err
	}
	return bw.Flush()
}

func (r *DebugRenderer) draw(f *sim.Frame) {
	dc := r.dc

	dc.SetColor(backgroundColor)
	dc.DrawRectangle(0, 0, r.width, r.height)
	dc.Fill()

	// Axes through the origin
	dc.SetColor(playfieldColor)
	dc.SetLineWidth(1)
	dc.DrawLine(r.width/2, 0, r.width/2, r.height)
	dc.Stroke()
	dc.DrawLine(0, r.height/2, r.width, r.height/2)
	dc.Stroke()

	for _, t := range f.Targets {
		px, py := r.ToPixel(t.X, t.Y)
		sx, sy := r.scale(t.Radius)
		dc.SetColor(targetColor)
		dc.SetLineWidth(2)
		dc.DrawEllipse(px, py, sx, sy)
		dc.Stroke()
	}

	for _, b := range f.Shots {
		r.drawBullet(b.X, b.Y, b.Radius, shotColor)
	}
	for _, b := range f.Enemy {
		r.drawBullet(b.X, b.Y, b.Radius, Color(b.Color, b.Visual))
	}

	p := f.Player
	px, py := r.ToPixel(p.GrazeX, p.GrazeY)
	sx, sy := r.scale(p.GrazeRadius)
	dc.SetColor(grazeColor)
	dc.SetLineWidth(1)
	dc.DrawEllipse(px, py, sx, sy)
	dc.Stroke()

	px, py = r.ToPixel(p.HitX, p.HitY)
	sx, sy = r.scale(p.HitRadius)
	dc.SetColor(hitColor)
	dc.DrawEllipse(px, py, max(sx, minPixelRadius), max(sy, minPixelRadius))
	dc.Fill()
}

func (r *DebugRenderer) drawBullet(x, y, radius float64, c color.Color) {
	px, py := r.ToPixel(x, y)
	sx, sy := r.scale(radius)
	r.dc.SetColor(c)
	r.dc.DrawEllipse(px, py, max(sx, minPixelRadius), max(sy, minPixelRadius))
	r.dc.Fill()
}
