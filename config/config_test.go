package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	if cfg.Tuning.Speed != 100 {
		t.Errorf("default speed: %v", cfg.Tuning.Speed)
	}
	if len(cfg.Tuning.SpeedSteps) != 6 || cfg.Tuning.SpeedSteps[0] != 10 {
		t.Errorf("default steps: %v", cfg.Tuning.SpeedSteps)
	}
	if cfg.Audio.ReferenceOffset >= 0 {
		t.Errorf("reference offset should default to the climax (negative), got %v", cfg.Audio.ReferenceOffset)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("redis should be disabled by default, got %q", cfg.RedisAddr)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PLAYBACK_SPEED", "250")
	t.Setenv("MAX_PARTICLES", "-3")
	t.Setenv("VIEWPORT", "800x600")
	t.Setenv("AUDIO_DROP_AT_SEC", "12.5")
	t.Setenv("SPEED_STEPS", "1, 2,x,0,4")

	cfg := Load()
	if cfg.Tuning.Speed != 250 {
		t.Errorf("speed: %v", cfg.Tuning.Speed)
	}
	if cfg.Tuning.MaxParticles != 5000 {
		t.Errorf("invalid MAX_PARTICLES should fall back, got %d", cfg.Tuning.MaxParticles)
	}
	if cfg.Tuning.ViewportWidth != 800 || cfg.Tuning.ViewportHeight != 600 {
		t.Errorf("viewport: %vx%v", cfg.Tuning.ViewportWidth, cfg.Tuning.ViewportHeight)
	}
	if cfg.Audio.DropAt != 12500*time.Millisecond {
		t.Errorf("drop at: %v", cfg.Audio.DropAt)
	}
	want := []float64{1, 2, 4}
	if len(cfg.Tuning.SpeedSteps) != len(want) {
		t.Fatalf("steps: %v", cfg.Tuning.SpeedSteps)
	}
	for i := range want {
		if cfg.Tuning.SpeedSteps[i] != want[i] {
			t.Errorf("step %d: %v", i, cfg.Tuning.SpeedSteps[i])
		}
	}
}

func TestParseViewport_Invalid(t *testing.T) {
	w, h := parseViewport("wide")
	if w != 1920 || h != 1080 {
		t.Errorf("expected fallback, got %vx%v", w, h)
	}
}
