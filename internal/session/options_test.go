package session

import (
	"testing"
	"time"

	"hyperfireworks/config"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Load()
	cfg.Tuning.Speed = 200
	cfg.Audio.DropAt = 62 * time.Second

	s := New(scenarioLog(), OptionsFromConfig(cfg, quiet))
	p := s.audio.Params()
	if p.ReferenceDataTime != 10 {
		t.Errorf("reference should default to the climax offset, got %v", p.ReferenceDataTime)
	}
	if p.ReferenceAudioTime != 62 {
		t.Errorf("reference audio: %v", p.ReferenceAudioTime)
	}
	if s.State().Speed != 200 {
		t.Errorf("speed: %v", s.State().Speed)
	}

	cfg.Audio.ReferenceOffset = 4 * time.Second
	s = New(scenarioLog(), OptionsFromConfig(cfg, quiet))
	if got := s.audio.Params().ReferenceDataTime; got != 4 {
		t.Errorf("explicit reference offset: %v", got)
	}
}
