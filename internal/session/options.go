package session

import (
	"log/slog"

	"hyperfireworks/config"
	"hyperfireworks/internal/audiosync"
	"hyperfireworks/internal/particle"
)

// OptionsFromConfig maps the tuning and audio settings onto session Options.
// The track is a ClockTrack of the configured duration; hosts with a real
// audio element replace it.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	t := cfg.Tuning
	refData := -1.0
	if cfg.Audio.ReferenceOffset >= 0 {
		refData = cfg.Audio.ReferenceOffset.Seconds()
	}
	return Options{
		Speed:            t.Speed,
		SpeedSteps:       t.SpeedSteps,
		MaxEventsPerTick: t.MaxEventsPerTick,
		Particles: particle.Config{
			MaxParticles:    t.MaxParticles,
			MaxBurst:        t.MaxBurstParticles,
			ClimaxParticles: t.ClimaxParticles,
			Scale:           t.ParticleScale,
		},
		ViewportWidth:  t.ViewportWidth,
		ViewportHeight: t.ViewportHeight,
		Audio: audiosync.Params{
			ReferenceDataTime:  refData,
			ReferenceAudioTime: cfg.Audio.DropAt.Seconds(),
			DriftTolerance:     cfg.Audio.DriftTolerance.Seconds(),
		},
		Track:  audiosync.NewClockTrack(cfg.Audio.Duration),
		Logger: logger,
	}
}
