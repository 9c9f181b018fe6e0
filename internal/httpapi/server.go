package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/socketrobot/internal/arbiter"
	"github.com/ent0n29/socketrobot/internal/config"
	"github.com/ent0n29/socketrobot/internal/control"
	"github.com/ent0n29/socketrobot/internal/drive"
	"github.com/ent0n29/socketrobot/internal/motor"
	"github.com/ent0n29/socketrobot/internal/observability"
	"github.com/ent0n29/socketrobot/internal/protocol"
	"github.com/ent0n29/socketrobot/internal/session"
	"github.com/ent0n29/socketrobot/internal/telemetry"
	"github.com/ent0n29/socketrobot/internal/watchdog"
)

const (
	writeTimeout     = 5 * time.Second
	outboundQueue    = 64
	defaultEventPage = 50
	maxEventPage     = 1000
)

// Deps are the runtime components the API reads from and feeds.
type Deps struct {
	Sessions   *session.Manager
	Loop       *control.Loop
	Arbiter    *arbiter.Arbiter
	Watchdog   *watchdog.Watchdog
	Metrics    *observability.Metrics
	Journal    *telemetry.Recorder
	Store      telemetry.Store
	DriverKind motor.Kind
}

type Server struct {
	cfg      config.Config
	deps     Deps
	upgrader websocket.Upgrader
	static   http.Handler
}

func New(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:    cfg,
		deps:   deps,
		static: newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Only browsers on the same origin may drive the robot.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/robot/ws", s.handleRobotWS)
	r.Get("/v1/robot/state", s.handleState)
	r.Get("/v1/robot/events", s.handleEvents)
	r.Post("/v1/robot/stop", s.handleEmergencyStop)
	r.Get("/v1/perf/driver", s.handlePerfDriver)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"driver_kind":  s.deps.DriverKind,
		"journal_mode": s.journalMode(),
	})
}

type sessionState struct {
	session.Info
	Held arbiter.HeldState `json:"held"`
}

type robotState struct {
	Vector          drive.DriveVector `json:"vector"`
	WheelSpeeds     drive.WheelSpeeds `json:"wheel_speeds"`
	LastSent        drive.WheelSpeeds `json:"last_sent"`
	Synced          bool              `json:"synced"`
	Watchdog        watchdog.Snapshot `json:"watchdog"`
	ActiveSessions  int               `json:"active_sessions"`
	Sessions        []sessionState    `json:"sessions"`
	DriverKind      motor.Kind        `json:"driver_kind"`
	DriverCalls     int               `json:"driver_calls"`
	DriverFailures  int               `json:"driver_failures"`
	LastDriverError string            `json:"last_driver_error,omitempty"`
	JournalDropped  int64             `json:"journal_dropped"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	status := s.deps.Loop.Status()
	infos := s.deps.Sessions.List()
	sessions := make([]sessionState, 0, len(infos))
	for _, info := range infos {
		sessions = append(sessions, sessionState{
			Info: info,
			Held: s.deps.Arbiter.HeldBy(info.ID).State(),
		})
	}
	respondJSON(w, http.StatusOK, robotState{
		Vector:          status.Vector,
		WheelSpeeds:     status.Target,
		LastSent:        status.LastSent,
		Synced:          status.Synced,
		Watchdog:        s.deps.Watchdog.Snapshot(),
		ActiveSessions:  len(sessions),
		Sessions:        sessions,
		DriverKind:      s.deps.DriverKind,
		DriverCalls:     status.DriverCalls,
		DriverFailures:  status.DriverFailures,
		LastDriverError: status.LastDriverError,
		JournalDropped:  s.deps.Journal.Dropped(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		respondJSON(w, http.StatusOK, map[string]any{"events": []telemetry.Record{}})
		return
	}
	limit := defaultEventPage
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventPage)
	}
	records, err := s.deps.Store.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "journal_unavailable", err.Error())
		return
	}
	if records == nil {
		records = []telemetry.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": records})
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	reason := strings.TrimSpace(r.URL.Query().Get("reason"))
	if reason == "" {
		reason = "operator request"
	}
	s.deps.Loop.EmergencyStop(reason)
	respondJSON(w, http.StatusAccepted, map[string]any{
		"status": "stopping",
		"reason": reason,
	})
}

func (s *Server) handleRobotWS(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.Open()
	if err != nil {
		if errors.Is(err, session.ErrCapacityExceeded) {
			s.deps.Metrics.ObserveSession("rejected", s.deps.Sessions.ActiveCount())
			s.deps.Journal.Record(telemetry.KindSessionRejected, "", err.Error())
			respondError(w, http.StatusServiceUnavailable, "capacity_exceeded", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "session_open_failed", err.Error())
		return
	}
	sessionID := sess.ID()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		_ = s.deps.Sessions.Close(sessionID)
		return
	}
	defer conn.Close()

	s.deps.Metrics.ObserveSession("opened", s.deps.Sessions.ActiveCount())
	s.deps.Journal.Record(telemetry.KindSessionOpened, sessionID, r.RemoteAddr)
	log.Printf("httpapi: session %s connected from %s", sessionID, r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, outboundQueue)
	enqueue := func(msg any) {
		select {
		case outbound <- msg:
		default:
			// Writes stay single-threaded; drop when the client is not reading.
			s.deps.Metrics.ObserveWriteError("drop_full")
		}
	}

	enqueue(protocol.Hello{
		Type:                protocol.TypeHello,
		SessionID:           sessionID,
		HeartbeatIntervalMS: s.cfg.HeartbeatInterval.Milliseconds(),
		FailsafeTimeoutMS:   s.deps.Watchdog.Timeout().Milliseconds(),
		State:               s.deps.Arbiter.HeldBy(sessionID).State(),
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, conn, sess, outbound)
	}()

	readTimeout := s.readTimeout()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.deps.Metrics.ObserveInput("invalid", "rejected")
			enqueue(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Detail:    err.Error(),
			})
			continue
		}
		msgKind, _ := protocol.TypeOf(parsed)
		s.deps.Metrics.ObserveMessage("inbound", string(msgKind))

		events := protocol.Events(parsed)
		if len(events) == 0 {
			s.deps.Metrics.ObserveInput("unmapped", "ignored")
			continue
		}
		for _, ev := range events {
			if err := s.deps.Sessions.RecordEvent(sessionID, ev); err != nil {
				// Evicted underneath us; the writer closes the socket.
				log.Printf("httpapi: dropping %s for session %s: %v", ev.Kind, sessionID, err)
				s.deps.Metrics.ObserveInput(string(ev.Kind), "session_gone")
				break readLoop
			}
			s.deps.Metrics.ObserveInput(string(ev.Kind), "accepted")
		}
		if msgKind != protocol.TypeHeartbeat {
			enqueue(protocol.State{
				Type:      protocol.TypeState,
				SessionID: sessionID,
				Held:      s.deps.Arbiter.HeldBy(sessionID).State(),
				Vector:    s.deps.Arbiter.Current(),
			})
		}
	}

	if err := s.deps.Sessions.Close(sessionID); err != nil && !errors.Is(err, session.ErrUnknownSession) {
		log.Printf("httpapi: closing session %s: %v", sessionID, err)
	}
	cancel()
	<-writerDone
	log.Printf("httpapi: session %s disconnected (%s)", sessionID, sess.Reason())
}

// writeLoop owns every write on conn. It pings on the heartbeat cadence and
// closes the socket when the session ends underneath the connection.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session, outbound <-chan any) {
	ping := time.NewTicker(s.readTimeout() / 2)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			if sess.Reason() == session.EndEvicted {
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				_ = conn.WriteJSON(protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					SessionID: sess.ID(),
					Code:      "session_evicted",
					Detail:    "no input within the idle window",
				})
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "idle"),
					time.Now().Add(writeTimeout))
			}
			_ = conn.Close()
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				s.deps.Metrics.ObserveWriteError("ping")
				_ = conn.Close()
				return
			}
		case msg := <-outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				s.deps.Metrics.ObserveWriteError("write_json")
				_ = conn.Close()
				return
			}
			if t, ok := protocol.TypeOf(msg); ok {
				s.deps.Metrics.ObserveMessage("outbound", string(t))
			}
		}
	}
}

// readTimeout bounds how long a silent socket is kept. Session liveness is
// tracked separately by the manager's idle window.
func (s *Server) readTimeout() time.Duration {
	d := s.cfg.IdleSessionTimeout
	if d <= 0 {
		d = session.DefaultIdleTimeout
	}
	return d
}

func (s *Server) journalMode() string {
	if s.deps.Store == nil {
		return "disabled"
	}
	return telemetry.Mode(s.deps.Store)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
