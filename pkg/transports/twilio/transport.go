package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/sapa/pkg/errorsx"
	"github.com/harunnryd/sapa/pkg/logging"
	"github.com/harunnryd/sapa/pkg/metrics"
	"github.com/harunnryd/sapa/pkg/redact"
	"github.com/harunnryd/sapa/pkg/transports"
	twilioclient "github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"
)

const (
	// DefaultFallback answers the webhook when handling a message fails internally.
	DefaultFallback = "Maaf kijiye, kuch technical issue hai. Baad mein try kariye."
	// MissingSendFields is returned by the send endpoint when to or message is absent.
	MissingSendFields = "to aur message required hai"

	healthStatus  = "healthy"
	healthMessage = "WhatsApp AI Agent is running"
)

type Config struct {
	ServerAddr        string `mapstructure:"server_addr"`
	PublicURL         string `mapstructure:"public_url"`
	AccountSID        string `mapstructure:"account_sid"`
	AuthToken         string `mapstructure:"auth_token"`
	WhatsAppNumber    string `mapstructure:"whatsapp_number"`
	WebhookPath       string `mapstructure:"webhook_path"`
	SendPath          string `mapstructure:"send_path"`
	HealthPath        string `mapstructure:"health_path"`
	ValidateSignature bool   `mapstructure:"validate_signature"`
	MaxMediaBytes     int64  `mapstructure:"max_media_bytes"`
	Fallback          string `mapstructure:"fallback"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":5000"
	}
	if c.WebhookPath == "" {
		c.WebhookPath = "/whatsapp"
	}
	if c.SendPath == "" {
		c.SendPath = "/send-message"
	}
	if c.HealthPath == "" {
		c.HealthPath = "/health"
	}
	if c.MaxMediaBytes <= 0 {
		c.MaxMediaBytes = 16 << 20
	}
	if c.Fallback == "" {
		c.Fallback = DefaultFallback
	}
	return c
}

// Transport serves the WhatsApp webhook, the manual send endpoint and the
// health check on one HTTP server.
type Transport struct {
	cfg         Config
	handler     transports.TurnHandler
	sender      transports.MessageSender
	transcriber transports.Transcriber
	media       mediaFetcher
	obs         metrics.Observer
	log         *slog.Logger

	mu         sync.Mutex
	mux        *http.ServeMux
	server     *http.Server
	listenAddr string

	draining atomic.Bool
}

// New builds a transport that answers inbound messages with handler.
func New(cfg Config, handler transports.TurnHandler) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		cfg:     cfg,
		handler: handler,
		sender:  NewSender(cfg),
		media:   newHTTPMediaFetcher(cfg),
		obs:     metrics.NoopObserver{},
		log:     logging.NewComponentLogger(slog.Default(), "twilio"),
		mux:     http.NewServeMux(),
	}
	t.mux.HandleFunc(cfg.WebhookPath, t.handleWhatsApp)
	t.mux.HandleFunc(cfg.SendPath, t.handleSendMessage)
	t.mux.HandleFunc(cfg.HealthPath, t.handleHealth)
	return t
}

func (t *Transport) Name() string { return "twilio" }

// SetSender replaces the outbound message sender.
func (t *Transport) SetSender(s transports.MessageSender) {
	if s != nil {
		t.sender = s
	}
}

// SetTranscriber enables voice note transcription.
func (t *Transport) SetTranscriber(tr transports.Transcriber) {
	t.transcriber = tr
}

func (t *Transport) SetObserver(obs metrics.Observer) {
	if obs != nil {
		t.obs = obs
	}
}

func (t *Transport) SetLogger(log *slog.Logger) {
	if log != nil {
		t.log = logging.NewComponentLogger(log, "twilio")
	}
}

// Mount registers an additional handler on the transport's server.
func (t *Transport) Mount(path string, h http.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mux.Handle(path, h)
}

// Handler returns the HTTP handler serving every route.
func (t *Transport) Handler() http.Handler { return t.mux }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{
		"addr":        t.cfg.ServerAddr,
		"webhook_url": t.webhookURL(),
	}
}

// Addr reports the bound listen address once Start has run.
func (t *Transport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listenAddr
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ln, err := net.Listen("tcp", t.cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("twilio listen %s: %w", t.cfg.ServerAddr, err)
	}
	t.mu.Lock()
	t.server = &http.Server{
		Addr:              t.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           t.mux,
	}
	t.listenAddr = ln.Addr().String()
	srv := t.server
	t.mu.Unlock()
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("twilio_transport_server_error", "error", err.Error())
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = srv.Close()
		case <-stopped:
		}
	}()
	return nil
}

// Drain rejects new webhooks while in-flight ones complete.
func (t *Transport) Drain() {
	t.draining.Store(true)
}

// Shutdown waits for in-flight requests until ctx expires.
func (t *Transport) Shutdown(ctx context.Context) error {
	t.draining.Store(true)
	t.mu.Lock()
	srv := t.server
	t.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (t *Transport) Stop() error {
	t.draining.Store(true)
	t.mu.Lock()
	srv := t.server
	t.mu.Unlock()
	if srv != nil {
		return srv.Close()
	}
	return nil
}

func (t *Transport) handleWhatsApp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if t.cfg.ValidateSignature && !t.validateTwilioRequest(r) {
		t.log.Warn("webhook_invalid_signature", "reason_code", string(errorsx.ReasonWebhookInvalidSignature))
		t.record(metrics.EventWebhookRejected, nil)
		w.WriteHeader(http.StatusForbidden)
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			t.log.Error("webhook_internal_error",
				"reason_code", string(errorsx.ReasonWebhookInternal),
				"panic", fmt.Sprint(rec))
			t.record(metrics.EventWebhookRecovered, nil)
			t.writeReply(w, t.cfg.Fallback)
		}
	}()

	if err := r.ParseForm(); err != nil {
		t.log.Warn("webhook_form_invalid", "error", err.Error())
	}
	from := strings.TrimSpace(r.PostFormValue("From"))
	if from == "" {
		t.log.Warn("webhook_missing_from")
		t.record(metrics.EventWebhookRejected, map[string]string{"cause": "missing_from"})
		t.writeReply(w, t.cfg.Fallback)
		return
	}
	body := strings.TrimSpace(r.PostFormValue("Body"))
	t.log.Info("message_received", "from", redact.Identity(from), "body", redact.Text(body))

	if body == "" {
		if text, ok := t.transcribeVoiceNote(r.Context(), r); ok {
			body = text
		}
	}
	reply := t.handler.HandleTurn(r.Context(), from, body)
	t.log.Info("reply_sent", "to", redact.Identity(from), "body", redact.Text(reply))
	t.writeReply(w, reply)
}

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (t *Transport) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	if req.To == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": MissingSendFields})
		return
	}
	sid, err := t.sender.Send(r.Context(), WhatsAppAddress(req.To), req.Message)
	if err != nil {
		t.log.Error("send_message_failed",
			"to", redact.Identity(req.To),
			"reason_code", string(errorsx.ReasonTransportSend),
			"error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	t.record(metrics.EventMessageSent, map[string]string{"channel": "whatsapp"})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message_sid": sid})
}

func (t *Transport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": healthStatus, "message": healthMessage})
}

func (t *Transport) writeReply(w http.ResponseWriter, text string) {
	doc, err := MessagingResponse(text)
	if err != nil {
		t.log.Error("twiml_render_failed", "error", err.Error())
		doc = `<?xml version="1.0" encoding="UTF-8"?><Response><Message>` + xmlEscape(text) + `</Message></Response>`
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// MessagingResponse renders text as a TwiML reply containing one message.
func MessagingResponse(text string) (string, error) {
	return twiml.Messages([]twiml.Element{&twiml.MessagingMessage{Body: text}})
}

func (t *Transport) record(name string, tags map[string]string) {
	t.obs.RecordEvent(metrics.MetricsEvent{Name: name, Time: time.Now(), Value: 1, Tags: tags})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// validateTwilioRequest checks X-Twilio-Signature against the form parameters.
func (t *Transport) validateTwilioRequest(r *http.Request) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	if t.cfg.AuthToken == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}
	params := make(map[string]string, len(r.PostForm))
	for k, vs := range r.PostForm {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	validator := twilioclient.NewRequestValidator(t.cfg.AuthToken)
	return validator.Validate(t.requestURL(r), params, signature)
}

func (t *Transport) requestURL(r *http.Request) string {
	if t.cfg.PublicURL != "" {
		base := strings.TrimRight(t.cfg.PublicURL, "/")
		if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
			base = "https://" + base
		}
		return base + r.URL.RequestURI()
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "https"
		}
	}
	host := r.Host
	if host == "" {
		host = strings.TrimPrefix(t.cfg.ServerAddr, ":")
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func (t *Transport) webhookURL() string {
	if t.cfg.PublicURL != "" {
		return "https://" + normalizePublicURL(t.cfg.PublicURL) + t.cfg.WebhookPath
	}
	addr := t.cfg.ServerAddr
	if addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr + t.cfg.WebhookPath
}

func xmlEscape(in string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(in)
}

func normalizePublicURL(v string) string {
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimPrefix(v, "http://")
	return strings.TrimRight(v, "/")
}

var (
	_ transports.Transport     = (*Transport)(nil)
	_ transports.Drainer       = (*Transport)(nil)
	_ transports.ReadyReporter = (*Transport)(nil)
	_ transports.MessageSender = (*Sender)(nil)
)
