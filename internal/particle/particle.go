// Package particle runs the firework burst simulation. Each particle is an
// independent ballistic body; the live set is bounded and evicts its oldest
// members first.
package particle

import (
	"math"
	"math/rand"
	"time"

	"hyperfireworks/internal/model"
)

// ColorClass is the visual category of a burst.
type ColorClass uint8

const (
	ADLFavorable ColorClass = iota
	ADLUnfavorable
	LiquidationHuge   // > $10M
	LiquidationLarge  // > $1M
	LiquidationMedium // > $100K
	LiquidationSmall
)

var hex = [...]string{
	ADLFavorable:      "#51cf66",
	ADLUnfavorable:    "#ff6b6b",
	LiquidationHuge:   "#9b59b6",
	LiquidationLarge:  "#ff6b6b",
	LiquidationMedium: "#ffa500",
	LiquidationSmall:  "#ffd700",
}

// Hex returns the CSS color for c.
func (c ColorClass) Hex() string {
	if int(c) < len(hex) {
		return hex[c]
	}
	return "#ffffff"
}

// Classify picks the color class for an event.
func Classify(ev model.Event) ColorClass {
	if ev.Type == model.EventADL {
		if ev.Favorable() {
			return ADLFavorable
		}
		return ADLUnfavorable
	}
	switch {
	case ev.Amount > 10_000_000:
		return LiquidationHuge
	case ev.Amount > 1_000_000:
		return LiquidationLarge
	case ev.Amount > 100_000:
		return LiquidationMedium
	default:
		return LiquidationSmall
	}
}

const (
	Friction = 0.98
	Gravity  = 0.05
	MaxSize  = 4.0
)

// Config holds the device / performance tuning for the simulation.
type Config struct {
	MaxParticles    int     // live-set cap
	MaxBurst        int     // per-event particle cap
	ClimaxParticles int     // fixed count for the climax burst
	Scale           float64 // device factor applied to burst counts
}

// DefaultConfig mirrors the desktop tuning.
func DefaultConfig() Config {
	return Config{
		MaxParticles:    5000,
		MaxBurst:        100,
		ClimaxParticles: 600,
		Scale:           1,
	}
}

// Count returns the burst size for an amount: floor(log10(amount+1)*5*scale)
// saturating at maxBurst. Zero, negative and non-finite amounts yield 0.
func Count(amount, scale float64, maxBurst int) int {
	if math.IsNaN(amount) || amount <= 0 {
		return 0
	}
	n := math.Floor(math.Log10(amount+1) * 0.5 * 10 * scale)
	if n <= 0 {
		return 0
	}
	if n >= float64(maxBurst) {
		return maxBurst
	}
	return int(n)
}

// Size returns the particle radius for an amount.
func Size(amount float64) float64 {
	if !(amount > 0) {
		return 0
	}
	return math.Min(math.Log10(amount+1)*0.4, MaxSize)
}

// Particle is one live body.
type Particle struct {
	X, Y    float64
	VX, VY  float64
	Color   ColorClass
	Size    float64
	Opacity float64
	Decay   float64
}

// Dead reports whether the particle has faded out.
func (p *Particle) Dead() bool { return p.Opacity <= 0 }

func (p *Particle) step() {
	p.VX *= Friction
	p.VY *= Friction
	p.VY += Gravity
	p.X += p.VX
	p.Y += p.VY
	p.Opacity -= p.Decay
}

// Simulation owns the live particle set. Not safe for concurrent use.
type Simulation struct {
	cfg       Config
	rng       *rand.Rand
	particles []Particle
	evicted   int64
	spawned   int64
}

// New creates a simulation. A nil rng is seeded from the wall clock.
func New(cfg Config, rng *rand.Rand) *Simulation {
	def := DefaultConfig()
	if cfg.MaxParticles <= 0 {
		cfg.MaxParticles = def.MaxParticles
	}
	if cfg.MaxBurst <= 0 {
		cfg.MaxBurst = def.MaxBurst
	}
	if cfg.ClimaxParticles <= 0 {
		cfg.ClimaxParticles = def.ClimaxParticles
	}
	if cfg.Scale <= 0 {
		cfg.Scale = def.Scale
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulation{
		cfg:       cfg,
		rng:       rng,
		particles: make([]Particle, 0, cfg.MaxParticles),
	}
}

// SpawnBurst emits the particles for one event at (x, y) and returns how
// many were created.
func (s *Simulation) SpawnBurst(x, y float64, ev model.Event, climax bool) int {
	n := Count(ev.Amount, s.cfg.Scale, s.cfg.MaxBurst)
	if climax {
		n = s.cfg.ClimaxParticles
	}
	if n == 0 {
		return 0
	}
	color := Classify(ev)
	size := Size(ev.Amount)
	for i := 0; i < n; i++ {
		angle := s.rng.Float64() * math.Pi * 2
		speed := s.rng.Float64()*5 + 2
		s.particles = append(s.particles, Particle{
			X:       x,
			Y:       y,
			VX:      math.Cos(angle) * speed,
			VY:      math.Sin(angle)*speed - s.rng.Float64()*2,
			Color:   color,
			Size:    size,
			Opacity: 1,
			Decay:   s.rng.Float64()*0.02 + 0.01,
		})
	}
	s.spawned += int64(n)
	s.evict()
	return n
}

// evict drops the oldest particles beyond the cap.
func (s *Simulation) evict() {
	over := len(s.particles) - s.cfg.MaxParticles
	if over <= 0 {
		return
	}
	kept := copy(s.particles, s.particles[over:])
	s.particles = s.particles[:kept]
	s.evicted += int64(over)
}

// Step advances every particle once and removes dead ones in place.
func (s *Simulation) Step() {
	n := 0
	for i := range s.particles {
		p := &s.particles[i]
		p.step()
		if !p.Dead() {
			s.particles[n] = *p
			n++
		}
	}
	s.particles = s.particles[:n]
}

// Clear discards every live particle.
func (s *Simulation) Clear() {
	s.particles = s.particles[:0]
}

// Each calls fn for every live particle, oldest first.
func (s *Simulation) Each(fn func(p *Particle)) {
	for i := range s.particles {
		fn(&s.particles[i])
	}
}

// RandomPosition picks a burst origin in the upper part of a w×h viewport.
func (s *Simulation) RandomPosition(w, h float64) (float64, float64) {
	return s.rng.Float64() * w, s.rng.Float64()*(h*0.6) + h*0.1
}

func (s *Simulation) Len() int       { return len(s.particles) }
func (s *Simulation) Evicted() int64 { return s.evicted }
func (s *Simulation) Spawned() int64 { return s.spawned }
func (s *Simulation) Config() Config { return s.cfg }
