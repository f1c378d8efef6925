package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Data
	EventsPath string // JSON file, http(s) URL, or SQLite *.db
	SQLitePath string // default SQLite copy written by cmd/prepare

	// Servers
	GatewayAddr string
	MetricsAddr string
	StaticDir   string

	// Infrastructure (empty address disables the integration)
	RedisAddr       string
	RedisPassword   string
	NATSURL         string
	AlertWebhookURL string

	// Telegram alerts are enabled when both are set.
	TelegramBotToken string
	TelegramChatID   string
	AlertMinAmount   float64

	// Control plane
	ControlTOTPSecret string

	LogLevel string

	Tuning Tuning
	Audio  Audio
}

// Tuning groups the device / performance knobs for playback.
type Tuning struct {
	Speed             float64
	SpeedSteps        []float64
	FrameRate         int
	MaxEventsPerTick  int
	MaxParticles      int
	MaxBurstParticles int
	ClimaxParticles   int
	ParticleScale     float64
	ViewportWidth     float64
	ViewportHeight    float64
}

// Audio describes the music track and where the climax should land in it.
type Audio struct {
	Duration        time.Duration
	DropAt          time.Duration
	ReferenceOffset time.Duration // < 0 means "use the climax event"
	DriftTolerance  time.Duration
}

// DefaultSpeedSteps is the speed button cycle.
var DefaultSpeedSteps = []float64{10, 50, 100, 200, 500, 1000}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	w, h := parseViewport(getEnv("VIEWPORT", "1920x1080"))
	return &Config{
		EventsPath: getEnv("EVENTS_PATH", "public/events.json"),
		SQLitePath: getEnv("SQLITE_PATH", "data/events.db"),

		GatewayAddr: getEnv("GATEWAY_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		StaticDir:   getEnv("STATIC_DIR", "public"),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		NATSURL:         getEnv("NATS_URL", ""),
		AlertWebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		AlertMinAmount:   getFloat("ALERT_MIN_AMOUNT", 0),

		ControlTOTPSecret: getEnv("CONTROL_TOTP_SECRET", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		Tuning: Tuning{
			Speed:             getFloat("PLAYBACK_SPEED", 100),
			SpeedSteps:        ParseSpeedSteps(getEnv("SPEED_STEPS", "")),
			FrameRate:         getInt("FRAME_RATE", 60),
			MaxEventsPerTick:  getInt("MAX_EVENTS_PER_TICK", 50),
			MaxParticles:      getInt("MAX_PARTICLES", 5000),
			MaxBurstParticles: getInt("MAX_BURST_PARTICLES", 100),
			ClimaxParticles:   getInt("CLIMAX_PARTICLES", 600),
			ParticleScale:     getFloat("PARTICLE_SCALE", 1),
			ViewportWidth:     w,
			ViewportHeight:    h,
		},
		Audio: Audio{
			Duration:        getSeconds("AUDIO_DURATION_SEC", 210),
			DropAt:          getSeconds("AUDIO_DROP_AT_SEC", 62),
			ReferenceOffset: getSeconds("AUDIO_REFERENCE_OFFSET_SEC", -1),
			DriftTolerance:  getSeconds("AUDIO_DRIFT_TOLERANCE_SEC", 0.3),
		},
	}
}

// ParseSpeedSteps parses a comma-separated list of positive multipliers.
// Invalid entries are skipped; an empty result falls back to the defaults.
func ParseSpeedSteps(s string) []float64 {
	var steps []float64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v <= 0 {
			log.Printf("[config] skipping invalid speed step: %q", p)
			continue
		}
		steps = append(steps, v)
	}
	if len(steps) == 0 {
		return append([]float64(nil), DefaultSpeedSteps...)
	}
	return steps
}

func parseViewport(s string) (float64, float64) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) == 2 {
		w, errW := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		h, errH := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if errW == nil && errH == nil && w > 0 && h > 0 {
			return w, h
		}
	}
	log.Printf("[config] invalid VIEWPORT %q, using 1920x1080", s)
	return 1920, 1080
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getSeconds(key string, fallback float64) time.Duration {
	v := os.Getenv(key)
	sec := fallback
	if v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		} else {
			sec = f
		}
	}
	return time.Duration(sec * float64(time.Second))
}
