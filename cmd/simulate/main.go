// cmd/simulate plays an event log headlessly at a fixed frame delta and
// prints what fired. Useful for checking a prepared log and tuning speed
// and particle caps without a browser.
//
// Usage:
//
//	go run ./cmd/simulate --events=public/events.json --speed=100 --fps=60
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hyperfireworks/config"
	"hyperfireworks/internal/audiosync"
	"hyperfireworks/internal/eventlog"
	"hyperfireworks/internal/logger"
	"hyperfireworks/internal/model"
	"hyperfireworks/internal/render"
	"hyperfireworks/internal/session"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	cfg := config.Load()

	eventsPath := flag.String("events", cfg.EventsPath, "Event log: JSON file, URL or SQLite .db")
	speed := flag.Float64("speed", cfg.Tuning.Speed, "Playback speed multiplier")
	fps := flag.Int("fps", cfg.Tuning.FrameRate, "Simulated frames per second")
	seek := flag.Float64("seek", 0, "Start at this fraction of the log (0..1)")
	seed := flag.Int64("seed", 1, "Random seed for burst placement")
	verbose := flag.Bool("v", false, "Print every fired event, not only the major ones")
	mute := flag.Bool("mute", false, "Run without the virtual audio track")
	flag.Parse()
	if *fps <= 0 || *speed <= 0 {
		log.Fatal("[simulate] fps and speed must be positive")
	}

	slogger := logger.Init("simulate", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	src, closeSrc, err := eventlog.OpenSource(*eventsPath)
	if err != nil {
		log.Fatalf("[simulate] %v", err)
	}
	evLog, err := eventlog.Load(ctx, src, slogger)
	closeSrc()
	if err != nil {
		log.Fatalf("[simulate] %v", err)
	}

	cfg.Tuning.Speed = *speed
	opts := session.OptionsFromConfig(cfg, slogger)
	opts.Rand = rand.New(rand.NewSource(*seed))
	if *mute {
		opts.Track = audiosync.NopTrack{}
	}

	// Simulated wall clock, advanced by exactly one frame per tick.
	now := time.Now()
	opts.Now = func() time.Time { return now }

	s := session.New(evLog, opts)
	if *seek > 0 {
		if err := s.Seek(*seek); err != nil {
			log.Fatalf("[simulate] %v", err)
		}
	}
	s.OnFire(func(n model.Notice) {
		if *verbose || n.Major {
			tag := ""
			if n.Climax {
				tag = " CLIMAX"
			} else if n.Major {
				tag = " MAJOR"
			}
			fmt.Printf("  [%s] #%-6d %-10s %-6s %10s %s%s\n",
				n.Event.Timestamp.Format("15:04:05.000"), n.Index, n.Label, n.Event.Ticker, n.Amount, n.User, tag)
		}
	})

	frame := time.Second / time.Duration(*fps)
	counter := &render.Counter{}
	ticks, peakParticles, peakDeferred := 0, 0, 0
	started := time.Now()

	s.Start()
	for ctx.Err() == nil {
		now = now.Add(frame)
		if err := s.Advance(frame); err != nil {
			log.Printf("[simulate] tick %d: %v", ticks, err)
		}
		s.Paint(counter)
		s.TakeFired()
		ticks++

		c := s.Counters()
		if c.Particles > peakParticles {
			peakParticles = c.Particles
		}
		if c.Deferred > peakDeferred {
			peakDeferred = c.Deferred
		}
		if st := s.State(); st.Complete || evLog.Empty() {
			break
		}
	}

	st := s.State()
	c := s.Counters()
	simulated := time.Duration(ticks) * frame

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║          SIMULATION COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Events fired:     %-21s ║\n", model.FormatNumber(float64(st.Stats.EventsFired)))
	fmt.Printf("║  Liquidations:     %-21s ║\n", model.FormatNumber(float64(st.Stats.LiquidationCount)))
	fmt.Printf("║  ADLs:             %-21s ║\n", model.FormatNumber(float64(st.Stats.ADLCount)))
	fmt.Printf("║  Total volume:     %-21s ║\n", model.FormatMoney(st.Stats.TotalVolume))
	fmt.Printf("║  Frames:           %-21d ║\n", ticks)
	fmt.Printf("║  Playback time:    %-21s ║\n", simulated.Round(time.Millisecond))
	fmt.Printf("║  Peak particles:   %-21d ║\n", peakParticles)
	fmt.Printf("║  Peak deferred:    %-21d ║\n", peakDeferred)
	fmt.Printf("║  Evicted:          %-21d ║\n", c.Evicted)
	fmt.Printf("║  Audio resyncs:    %-21d ║\n", c.Resyncs)
	fmt.Printf("║  Draw calls:       %-21d ║\n", counter.Fades+counter.Circles)
	fmt.Printf("║  Wall time:        %-21s ║\n", time.Since(started).Round(time.Millisecond))
	fmt.Println("╚══════════════════════════════════════════╝")
}
