package particle

import (
	"math"
	"math/rand"
	"testing"

	"hyperfireworks/internal/model"
)

func TestCount(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		scale  float64
		want   int
	}{
		{"zero", 0, 1, 0},
		{"negative", -10, 1, 0},
		{"nan", math.NaN(), 1, 0},
		{"one dollar", 1, 1, 1},  // floor(0.301*5)
		{"1k", 1000, 1, 15},      // floor(3.0004*5)
		{"50k", 50000, 1, 23},    // floor(4.699*5)
		{"2M", 2_000_000, 1, 31}, // floor(6.301*5)
		{"half scale", 2_000_000, 0.5, 15},
		{"huge", 1e30, 1, 100},
		{"infinite", math.Inf(1), 1, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Count(tt.amount, tt.scale, 100); got != tt.want {
				t.Errorf("Count(%v, %v) = %d, want %d", tt.amount, tt.scale, got, tt.want)
			}
		})
	}
}

func TestCount_Monotonic(t *testing.T) {
	prev := 0
	for a := 1.0; a < 1e40; a *= 3 {
		n := Count(a, 1, 100)
		if n < prev || n > 100 {
			t.Fatalf("Count(%v) = %d after %d", a, n, prev)
		}
		prev = n
	}
	if prev != 100 {
		t.Errorf("expected saturation at 100, got %d", prev)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		ev   model.Event
		want string
	}{
		{model.Event{Type: model.EventADL, PnL: 0}, "#51cf66"},
		{model.Event{Type: model.EventADL, PnL: -1}, "#ff6b6b"},
		{model.Event{Type: model.EventLiquidation, Amount: 193_000_000}, "#9b59b6"},
		{model.Event{Type: model.EventLiquidation, Amount: 2_000_000}, "#ff6b6b"},
		{model.Event{Type: model.EventLiquidation, Amount: 100_001}, "#ffa500"},
		{model.Event{Type: model.EventLiquidation, Amount: 100_000}, "#ffd700"},
	}
	for _, tc := range cases {
		if got := Classify(tc.ev).Hex(); got != tc.want {
			t.Errorf("Classify(%+v) = %s, want %s", tc.ev, got, tc.want)
		}
	}
}

func TestSize(t *testing.T) {
	if Size(0) != 0 {
		t.Error("size of zero amount should be 0")
	}
	if got := Size(1e30); got != MaxSize {
		t.Errorf("size should cap at %v, got %v", MaxSize, got)
	}
}

func TestSpawnBurst_ClimaxUsesFixedCount(t *testing.T) {
	s := New(Config{MaxParticles: 10000, MaxBurst: 100, ClimaxParticles: 750, Scale: 1}, rand.New(rand.NewSource(1)))
	ev := model.Event{Type: model.EventLiquidation, Amount: 193_000_000}
	if n := s.SpawnBurst(0, 0, ev, false); n != 41 {
		t.Errorf("regular burst: got %d, want 41", n)
	}
	if n := s.SpawnBurst(0, 0, ev, true); n != 750 {
		t.Errorf("climax burst: got %d, want 750", n)
	}
	if s.Len() != 791 {
		t.Errorf("live set: got %d", s.Len())
	}
}

func TestSpawnBurst_EvictsOldestFirst(t *testing.T) {
	s := New(Config{MaxParticles: 50, MaxBurst: 30, ClimaxParticles: 1, Scale: 10}, rand.New(rand.NewSource(2)))
	small := model.Event{Type: model.EventLiquidation, Amount: 10}
	big := model.Event{Type: model.EventLiquidation, Amount: 50_000_000}
	adl := model.Event{Type: model.EventADL, Amount: 1_000_000, PnL: 5}

	s.SpawnBurst(0, 0, small, false)
	s.SpawnBurst(0, 0, big, false)
	s.SpawnBurst(0, 0, adl, false)

	if s.Len() != 50 {
		t.Fatalf("cap not enforced: %d", s.Len())
	}
	if s.Evicted() != 40 {
		t.Errorf("evicted: got %d, want 40", s.Evicted())
	}
	var colors []ColorClass
	s.Each(func(p *Particle) { colors = append(colors, p.Color) })
	for i, c := range colors[:20] {
		if c != LiquidationHuge {
			t.Fatalf("particle %d: expected survivors of the second burst first, got %v", i, c)
		}
	}
	for _, c := range colors[20:] {
		if c != ADLFavorable {
			t.Fatal("newest burst must be kept intact")
		}
	}
}

func TestStep_PhysicsAndRemoval(t *testing.T) {
	s := New(DefaultConfig(), rand.New(rand.NewSource(3)))
	s.SpawnBurst(100, 100, model.Event{Type: model.EventADL, Amount: 1000}, false)

	var before Particle
	s.Each(func(p *Particle) {
		if before == (Particle{}) {
			before = *p
		}
	})
	if before.Decay < 0.01 || before.Decay >= 0.03 {
		t.Fatalf("decay out of range: %v", before.Decay)
	}
	speed := math.Hypot(before.VX, before.VY)
	if speed > 9 {
		t.Fatalf("initial speed too high: %v", speed)
	}

	s.Step()
	var after Particle
	s.Each(func(p *Particle) {
		if after == (Particle{}) {
			after = *p
		}
	})
	wantVX := before.VX * Friction
	wantVY := before.VY*Friction + Gravity
	if math.Abs(after.VX-wantVX) > 1e-12 || math.Abs(after.VY-wantVY) > 1e-12 {
		t.Errorf("velocity: got (%v,%v), want (%v,%v)", after.VX, after.VY, wantVX, wantVY)
	}
	if math.Abs(after.X-(before.X+wantVX)) > 1e-12 {
		t.Errorf("position not integrated: %v", after.X)
	}
	if math.Abs(after.Opacity-(1-before.Decay)) > 1e-12 {
		t.Errorf("opacity: %v", after.Opacity)
	}

	// Slowest decay is 0.01, so 101 steps kill everything.
	for i := 0; i < 100; i++ {
		s.Step()
	}
	if s.Len() != 0 {
		t.Errorf("expected all particles dead, %d remain", s.Len())
	}
}

func TestRandomPosition_UpperRegion(t *testing.T) {
	s := New(DefaultConfig(), rand.New(rand.NewSource(4)))
	for i := 0; i < 1000; i++ {
		x, y := s.RandomPosition(800, 600)
		if x < 0 || x > 800 || y < 60 || y > 420 {
			t.Fatalf("position out of region: (%v, %v)", x, y)
		}
	}
}

func TestClear(t *testing.T) {
	s := New(DefaultConfig(), nil)
	s.SpawnBurst(0, 0, model.Event{Type: model.EventLiquidation, Amount: 1e6}, false)
	s.Clear()
	if s.Len() != 0 {
		t.Error("Clear left particles behind")
	}
}
