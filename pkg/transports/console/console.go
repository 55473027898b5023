// Package console serves a websocket chat endpoint that feeds messages to a
// TurnHandler, for trying the agent locally without a messaging platform.
package console

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harunnryd/sapa/pkg/logging"
	"github.com/harunnryd/sapa/pkg/metrics"
	"github.com/harunnryd/sapa/pkg/redact"
	"github.com/harunnryd/sapa/pkg/transports"
)

const identityPrefix = "console:"

type Config struct {
	Enabled        bool     `mapstructure:"enabled"`
	Path           string   `mapstructure:"path"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (c Config) WithDefaults() Config {
	if c.Path == "" {
		c.Path = "/console"
	}
	return c
}

// Inbound is one chat message from the client. From is optional and is
// always scoped under the console: prefix.
type Inbound struct {
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

// Outbound carries the agent's reply.
type Outbound struct {
	Reply string `json:"reply"`
}

// Handler upgrades requests to websockets and answers every inbound frame.
type Handler struct {
	cfg      Config
	handler  transports.TurnHandler
	upgrader websocket.Upgrader
	obs      metrics.Observer
	log      *slog.Logger
	draining atomic.Bool
}

func New(cfg Config, handler transports.TurnHandler) *Handler {
	h := &Handler{
		cfg:     cfg.WithDefaults(),
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		obs: metrics.NoopObserver{},
		log: logging.NewComponentLogger(slog.Default(), "console"),
	}
	h.upgrader.CheckOrigin = h.checkOrigin
	return h
}

// Path returns the route the handler should be mounted on.
func (h *Handler) Path() string { return h.cfg.Path }

func (h *Handler) SetObserver(obs metrics.Observer) {
	if obs != nil {
		h.obs = obs
	}
}

func (h *Handler) SetLogger(log *slog.Logger) {
	if log != nil {
		h.log = logging.NewComponentLogger(log, "console")
	}
}

func (h *Handler) Drain() { h.draining.Store(true) }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(64 * 1024)

	identity := identityPrefix + uuid.NewString()
	h.log.Info("console_connected", "identity", identity)
	h.obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventConsoleConnection, Time: time.Now(), Value: 1})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var in Inbound
		if err := json.Unmarshal(msg, &in); err != nil {
			h.log.Debug("console_bad_frame", "error", err.Error())
			continue
		}
		from := consoleIdentity(identity, in.From)
		reply := h.handler.HandleTurn(r.Context(), from, strings.TrimSpace(in.Body))
		if err := conn.WriteJSON(Outbound{Reply: reply}); err != nil {
			h.log.Warn("console_write_failed", "identity", redact.Identity(from), "error", err.Error())
			break
		}
	}
	h.log.Info("console_disconnected", "identity", identity)
}

// consoleIdentity keeps explicit senders inside the console namespace so a
// client can never address another channel's history.
func consoleIdentity(conn, from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return conn
	}
	if strings.HasPrefix(from, identityPrefix) {
		return from
	}
	return identityPrefix + from
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := strings.TrimRight(strings.TrimSpace(r.Header.Get("Origin")), "/")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(strings.TrimSpace(allowed), "/"), origin) {
			return true
		}
	}
	return false
}

var _ transports.Drainer = (*Handler)(nil)
