package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hyperfireworks/internal/model"
	"hyperfireworks/internal/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTick_CountsDeltas(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	liq := model.Notice{Event: model.Event{Type: model.EventLiquidation}}
	adl := model.Notice{Event: model.Event{Type: model.EventADL}}

	m.ObserveTick(session.TickReport{
		Duration: time.Millisecond,
		Fired:    []model.Notice{liq, liq, adl},
		Counters: session.Counters{Evicted: 10, Resyncs: 1, Particles: 120},
		State:    model.State{Progress: 0.25, Speed: 100},
	})
	m.ObserveTick(session.TickReport{
		Dropped:  true,
		Counters: session.Counters{Evicted: 15, Resyncs: 1, Panics: 1, Particles: 90},
		State:    model.State{Progress: 0.5, Speed: 100},
	})

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"ticks", m.TicksTotal, 2},
		{"liquidations", m.EventsFiredTotal.WithLabelValues("liquidation"), 2},
		{"adls", m.EventsFiredTotal.WithLabelValues("adl"), 1},
		{"evicted", m.ParticlesEvicted, 15},
		{"resyncs", m.AudioResyncs, 1},
		{"panics", m.TickPanics, 1},
		{"overflow", m.FrameOverflow, 1},
		{"particles", m.ParticlesLive, 90},
		{"progress", m.Progress, 0.5},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			if got := testutil.ToFloat64(c.c); got != c.want {
				t.Errorf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestHealthStatus_Status(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHealthStatus()
	h.now = func() time.Time { return now }

	h.ObserveTick(session.TickReport{State: model.State{Playing: true}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("fresh tick: got %d", rec.Code)
	}

	now = now.Add(10 * time.Second)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("stalled tick loop: got %d", rec.Code)
	}
}
