package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/sapa/pkg/errorsx"
	"github.com/harunnryd/sapa/pkg/logging"
	"github.com/tidwall/gjson"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

const (
	DefaultModel = "nova-2"

	transcriptPath = "results.channels.0.alternatives.0.transcript"
	confidencePath = "results.channels.0.alternatives.0.confidence"
)

var initOnce sync.Once

type Config struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
	// DetectLanguage asks Deepgram to pick the language when Language is empty.
	DetectLanguage bool `mapstructure:"detect_language"`
}

// prerecordedFunc submits audio and returns the raw JSON response.
type prerecordedFunc func(ctx context.Context, audio io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) ([]byte, error)

// Transcriber converts recorded voice notes to text with Deepgram's
// pre-recorded REST API.
type Transcriber struct {
	cfg    Config
	call   prerecordedFunc
	logger *slog.Logger
}

func New(cfg Config) (*Transcriber, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("deepgram: api key required")
	}
	initOnce.Do(client.InitWithDefault)
	dg := api.New(client.NewREST(cfg.APIKey, &interfaces.ClientOptions{}))
	call := func(ctx context.Context, audio io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) ([]byte, error) {
		res, err := dg.FromStream(ctx, audio, opts)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	}
	return newTranscriber(cfg, call), nil
}

func newTranscriber(cfg Config, call prerecordedFunc) *Transcriber {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Transcriber{
		cfg:    cfg,
		call:   call,
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_transcriber"),
	}
}

func (t *Transcriber) Name() string { return "deepgram" }

// Transcribe returns the best transcript for the audio. The MIME type is only
// logged; Deepgram detects the container itself.
func (t *Transcriber) Transcribe(ctx context.Context, audio io.Reader, mimeType string) (string, error) {
	opts := &interfaces.PreRecordedTranscriptionOptions{
		Model:       t.cfg.Model,
		Language:    t.cfg.Language,
		SmartFormat: true,
		Punctuate:   true,
	}
	if t.cfg.Language == "" && t.cfg.DetectLanguage {
		opts.DetectLanguage = true
	}
	start := time.Now()
	raw, err := t.call(ctx, audio, opts)
	if err != nil {
		t.logger.Error("deepgram_transcribe_error",
			slog.String("error", err.Error()),
			slog.String("mime", mimeType),
			slog.String("reason_code", string(errorsx.ReasonTranscribe)))
		return "", errorsx.Wrap(err, errorsx.ReasonTranscribe)
	}
	text, confidence, err := extractTranscript(raw)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscribe)
	}
	t.logger.Info("deepgram_transcribed",
		slog.String("mime", mimeType),
		slog.Float64("confidence", confidence),
		slog.Int("chars", len(text)),
		slog.Int64("latency_ms", time.Since(start).Milliseconds()))
	return text, nil
}

func extractTranscript(raw []byte) (string, float64, error) {
	if !gjson.ValidBytes(raw) {
		return "", 0, errors.New("deepgram: invalid response")
	}
	res := gjson.GetBytes(raw, transcriptPath)
	if !res.Exists() {
		return "", 0, errors.New("deepgram: response has no transcript")
	}
	return strings.TrimSpace(res.String()), gjson.GetBytes(raw, confidencePath).Float(), nil
}
