package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"hyperfireworks/internal/model"
	"hyperfireworks/internal/particle"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RegisterRoutes registers all HTTP routes on the provided mux. rdb may be nil.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, rdb *goredis.Client, processStart time.Time) {
	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleWSRequest(conn, r.URL.Query().Get("last_ts"))
	})

	// REST: current playback state
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		writeJSON(w, http.StatusOK, hub.ctl.Latest())
	})

	// REST: whole-log totals
	mux.HandleFunc("/api/summary", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		writeJSON(w, http.StatusOK, hub.ctl.EventLog().Summary())
	})

	// REST: largest liquidation / ADL and the climax
	mux.HandleFunc("/api/events/major", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		writeJSON(w, http.StatusOK, majorEvents(hub))
	})

	// REST: gap backfill, e.g. /api/missed?channel=notice&from=10&to=20
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		q := r.URL.Query()
		channel := q.Get("channel")
		if channel == "" {
			channel = ChannelNotice
		}
		from, errFrom := strconv.ParseInt(q.Get("from"), 10, 64)
		if errFrom != nil || from < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from must be a positive integer"})
			return
		}
		cur := hub.GetChannelSeq(channel)
		to := cur
		if v := q.Get("to"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n < to {
				to = n
			}
		}
		out := MissedOut{Channel: channel, CurrentSeq: cur, OldestSeq: hub.GetOldestSeq(channel), Messages: []json.RawMessage{}}
		for _, m := range hub.GetReplayRange(channel, from, to) {
			out.Messages = append(out.Messages, m)
		}
		writeJSON(w, http.StatusOK, out)
	})

	// REST: POST /api/control
	mux.HandleFunc("/api/control", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
			return
		case http.MethodPost:
		default:
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST only"})
			return
		}
		var msg ControlMsg
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
		if msg.Code == "" {
			msg.Code = r.Header.Get("X-TOTP")
		}
		res := hub.Control(r.Context(), msg)
		status := http.StatusOK
		switch {
		case res.OK:
		case res.Error == ErrUnauthorized.Error():
			status = http.StatusUnauthorized
		default:
			status = http.StatusBadRequest
		}
		writeJSON(w, status, res)
	})

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		redisOK := false
		if rdb != nil {
			redisOK = rdb.Ping(r.Context()).Err() == nil
		}
		st := hub.ctl.Latest()
		writeJSON(w, http.StatusOK, HealthOut{
			Status:      "ok",
			Redis:       redisOK,
			WSClients:   hub.ClientCount(),
			Events:      st.TotalEvents,
			Playing:     st.Playing,
			Complete:    st.Complete,
			UptimeSec:   int64(time.Since(processStart).Seconds()),
			ControlAuth: hub.auth.Enabled(),
			TS:          time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

func majorEvents(hub *Hub) MajorEventsOut {
	l := hub.ctl.EventLog()
	m := l.Majors()
	notice := func(i int) *model.Notice {
		if i < 0 {
			return nil
		}
		ev := l.At(i)
		n := model.NewNotice(i, ev, particle.Classify(ev).Hex(), time.Time{})
		n.Major = true
		n.Climax = l.IsClimax(i)
		return &n
	}
	return MajorEventsOut{
		Liquidation: notice(m.Liquidation),
		ADL:         notice(m.ADL),
		ClimaxIndex: m.Climax,
	}
}
