package gateway

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// SystemMetrics is the periodic metrics envelope pushed to clients.
type SystemMetrics struct {
	CPULoad1    float64 `json:"cpu_load_1"`
	CPUCores    int     `json:"cpu_cores"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	GCRuns      uint32  `json:"gc_runs"`
	Goroutines  int     `json:"goroutines"`
	UptimeSec   int64   `json:"uptime_sec"`

	Clients      int     `json:"ws_clients"`
	Dropped      uint64  `json:"dropped"`
	Particles    int     `json:"particles"`
	Deferred     int     `json:"deferred"`
	TickP50Ms    float64 `json:"tick_p50_ms"`
	TickP95Ms    float64 `json:"tick_p95_ms"`
	TickP99Ms    float64 `json:"tick_p99_ms"`
	TickMaxMs    float64 `json:"tick_max_ms"`
	TickSamples  int     `json:"tick_samples"`
	PlaybackRate float64 `json:"speed"`

	TS string `json:"ts"`
}

// CollectMetrics gathers process usage and playback health.
func (h *Hub) CollectMetrics(start time.Time) SystemMetrics {
	st := h.ctl.Latest()
	m := SystemMetrics{
		CPUCores:     runtime.NumCPU(),
		Goroutines:   runtime.NumGoroutine(),
		UptimeSec:    int64(time.Since(start).Seconds()),
		Clients:      h.ClientCount(),
		Dropped:      h.Dropped(),
		Particles:    st.Particles,
		Deferred:     st.Deferred,
		PlaybackRate: st.Speed,
		TS:           time.Now().UTC().Format(time.RFC3339Nano),
	}
	m.CPULoad1 = readLoad1()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	m.SysMB = float64(ms.Sys) / 1024 / 1024
	m.GCRuns = ms.NumGC

	if h.TickTimes != nil {
		m.TickP50Ms, m.TickP95Ms, m.TickP99Ms = h.TickTimes.Percentiles()
		m.TickMaxMs = h.TickTimes.Max()
		m.TickSamples = h.TickTimes.Count()
	}
	return m
}

// readLoad1 returns the 1-minute load average, or 0 off Linux.
func readLoad1() float64 {
	f, err := os.Open("/proc/loadavg")
	if err != nil {
		return 0
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) == 0 {
		return 0
	}
	v, _ := strconv.ParseFloat(fields[0], 64)
	return v
}
