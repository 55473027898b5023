package twilio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harunnryd/sapa/pkg/errorsx"
	"github.com/harunnryd/sapa/pkg/metrics"
)

// mediaFetcher downloads an inbound media attachment.
type mediaFetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

type httpMediaFetcher struct {
	accountSID string
	authToken  string
	limit      int64
	client     *http.Client
}

func newHTTPMediaFetcher(cfg Config) *httpMediaFetcher {
	return &httpMediaFetcher{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		limit:      cfg.MaxMediaBytes,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *httpMediaFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if f.accountSID != "" {
		req.SetBasicAuth(f.accountSID, f.authToken)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("media fetch: status %d", resp.StatusCode)
	}
	return limitedBody{Reader: io.LimitReader(resp.Body, f.limit), Closer: resp.Body}, nil
}

// checkMediaURL accepts only https URLs on Twilio hosts, since Fetch sends
// the account credentials.
func checkMediaURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("media url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if u.Scheme != "https" || (host != "twilio.com" && !strings.HasSuffix(host, ".twilio.com")) {
		return fmt.Errorf("media url %s is not a twilio https url", u.Redacted())
	}
	return nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}

// transcribeVoiceNote returns the transcript of the first audio attachment.
func (t *Transport) transcribeVoiceNote(ctx context.Context, r *http.Request) (string, bool) {
	if t.transcriber == nil {
		return "", false
	}
	n, _ := strconv.Atoi(r.PostFormValue("NumMedia"))
	if n <= 0 {
		return "", false
	}
	mime := r.PostFormValue("MediaContentType0")
	mediaURL := r.PostFormValue("MediaUrl0")
	if !strings.HasPrefix(mime, "audio/") || mediaURL == "" {
		return "", false
	}
	if err := checkMediaURL(mediaURL); err != nil {
		t.log.Warn("voice_note_fetch_failed", "reason_code", string(errorsx.ReasonTranscribe), "error", err.Error())
		return "", false
	}
	start := time.Now()
	body, err := t.media.Fetch(ctx, mediaURL)
	if err != nil {
		t.log.Warn("voice_note_fetch_failed", "reason_code", string(errorsx.ReasonTranscribe), "error", err.Error())
		return "", false
	}
	defer body.Close()
	text, err := t.transcriber.Transcribe(ctx, body, mime)
	if err != nil {
		t.log.Warn("voice_note_transcribe_failed",
			"provider", t.transcriber.Name(),
			"reason_code", string(errorsx.ReasonTranscribe),
			"error", err.Error())
		return "", false
	}
	text = strings.TrimSpace(text)
	t.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventTranscribed,
		Time:  time.Now(),
		Value: float64(time.Since(start).Milliseconds()),
		Tags:  map[string]string{"provider": t.transcriber.Name(), "mime": mime},
	})
	return text, text != ""
}
