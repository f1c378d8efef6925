// Package render turns the particle set into draw calls on a 2D surface.
package render

import (
	"hyperfireworks/internal/model"
	"hyperfireworks/internal/particle"
)

// Background is the trail-fade fill applied before each frame.
const (
	BackgroundColor = "rgb(0,4,40)"
	BackgroundAlpha = 0.1
	GlowScale       = 1.5
	GlowAlpha       = 0.5
)

// Surface is an external 2D drawing target.
type Surface interface {
	// Fade covers the whole surface with a translucent fill.
	Fade(color string, alpha float64)
	// FillCircle draws a filled circle.
	FillCircle(x, y, r float64, color string, alpha float64)
}

// Paint fades the surface and draws every live particle with its glow halo.
func Paint(s Surface, sim *particle.Simulation) {
	s.Fade(BackgroundColor, BackgroundAlpha)
	sim.Each(func(p *particle.Particle) {
		if p.Opacity <= 0 {
			return
		}
		color := p.Color.Hex()
		s.FillCircle(p.X, p.Y, p.Size, color, p.Opacity)
		s.FillCircle(p.X, p.Y, p.Size*GlowScale, color, p.Opacity*GlowAlpha)
	})
}

// Recorder captures draw calls so a remote client can replay them.
type Recorder struct {
	calls []model.DrawCall
}

// NewRecorder creates a recorder with room for n calls.
func NewRecorder(n int) *Recorder {
	return &Recorder{calls: make([]model.DrawCall, 0, n)}
}

func (r *Recorder) Fade(color string, alpha float64) {
	r.calls = append(r.calls, model.DrawCall{Op: "fade", Color: color, Alpha: alpha})
}

func (r *Recorder) FillCircle(x, y, radius float64, color string, alpha float64) {
	r.calls = append(r.calls, model.DrawCall{Op: "circle", X: x, Y: y, Radius: radius, Color: color, Alpha: alpha})
}

// Calls returns the recorded draw calls.
func (r *Recorder) Calls() []model.DrawCall { return r.calls }

// Take returns the recorded calls and starts a fresh buffer.
func (r *Recorder) Take() []model.DrawCall {
	out := r.calls
	r.calls = make([]model.DrawCall, 0, cap(out))
	return out
}

// Reset drops recorded calls, keeping the buffer.
func (r *Recorder) Reset() { r.calls = r.calls[:0] }

// Counter is a surface that only counts calls, for headless runs.
type Counter struct {
	Fades   int
	Circles int
}

func (c *Counter) Fade(string, float64)                                  { c.Fades++ }
func (c *Counter) FillCircle(float64, float64, float64, string, float64) { c.Circles++ }
