package sapa

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/harunnryd/sapa/pkg/errorsx"
)

var managedEnv = []string{
	"TWILIO_ACCOUNT_SID",
	"TWILIO_AUTH_TOKEN",
	"TWILIO_WHATSAPP_NUMBER",
	"PUBLIC_URL",
	"GOOGLE_API_KEY",
	"OPENAI_API_KEY",
	"DEEPGRAM_API_KEY",
	"PORT",
	"LOG_LEVEL",
	"LOG_FORMAT",
}

func setEnv(t *testing.T, values map[string]string) {
	t.Helper()
	for _, k := range managedEnv {
		t.Setenv(k, "")
	}
	for k, v := range values {
		t.Setenv(k, v)
	}
}

func completeEnv() map[string]string {
	return map[string]string{
		"TWILIO_ACCOUNT_SID":     "AC123",
		"TWILIO_AUTH_TOKEN":      "secret",
		"TWILIO_WHATSAPP_NUMBER": "+14155238886",
		"GOOGLE_API_KEY":         "g-key",
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigReportsMissingEnv(t *testing.T) {
	setEnv(t, map[string]string{"TWILIO_AUTH_TOKEN": "secret"})
	_, err := LoadConfig("")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonConfigMissing) {
		t.Fatalf("expected config_missing reason, got %s", errorsx.Reason(err))
	}
	want := []string{"GOOGLE_API_KEY", "TWILIO_ACCOUNT_SID", "TWILIO_WHATSAPP_NUMBER"}
	if got := MissingEnv(err); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	setEnv(t, completeEnv())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != DefaultPort || cfg.Twilio.ServerAddr != "0.0.0.0:5000" {
		t.Fatalf("unexpected address %q", cfg.Twilio.ServerAddr)
	}
	if cfg.Twilio.AccountSID != "AC123" || cfg.Twilio.WhatsAppNumber != "+14155238886" {
		t.Fatalf("twilio credentials not bound: %+v", cfg.Twilio)
	}
	if cfg.Credentials.GoogleAPIKey != "g-key" || cfg.Vendors.LLM.Provider != "gemini" {
		t.Fatalf("unexpected llm settings: %+v %+v", cfg.Credentials, cfg.Vendors.LLM)
	}
	if cfg.Conversation.MaxHistory != 5 || cfg.Conversation.PromptTurns != 3 || !cfg.Conversation.RecordFallbackTurns {
		t.Fatalf("unexpected conversation defaults: %+v", cfg.Conversation)
	}
	if cfg.Generation.TimeoutMS != 12000 || !cfg.Generation.CircuitBreaker.Enabled {
		t.Fatalf("unexpected generation defaults: %+v", cfg.Generation)
	}
	if cfg.Policy.Text != DefaultPolicy() || !strings.Contains(cfg.Policy.Text, "AL-GHAZALI") {
		t.Fatalf("expected built-in policy")
	}
}

func TestLoadConfigPort(t *testing.T) {
	cases := map[string]int{
		"8080":  8080,
		"abc":   DefaultPort,
		"0":     DefaultPort,
		"-1":    DefaultPort,
		"70000": DefaultPort,
	}
	for raw, want := range cases {
		env := completeEnv()
		env["PORT"] = raw
		setEnv(t, env)
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("PORT=%s: %v", raw, err)
		}
		if cfg.Server.Port != want {
			t.Fatalf("PORT=%s: expected %d, got %d", raw, want, cfg.Server.Port)
		}
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	env := completeEnv()
	delete(env, "GOOGLE_API_KEY")
	env["SCHOOL_REPLY"] = "Assalam o alaikum"
	setEnv(t, env)

	policyPath := writeFile(t, "policy.txt", "  You answer for Test School.  \n")
	cfgPath := writeFile(t, "config.yaml", `
server:
  host: 127.0.0.1
  port: 9090
vendors:
  llm:
    provider: mock
    settings:
      response_text: ${SCHOOL_REPLY}
conversation:
  max_history: 4
  prompt_turns: 2
  record_fallback_turns: false
policy:
  file: `+policyPath+`
console:
  enabled: true
`)
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Twilio.ServerAddr != "127.0.0.1:9090" {
		t.Fatalf("unexpected address %q", cfg.Twilio.ServerAddr)
	}
	if got := cfg.Vendors.LLM.Settings["response_text"]; got != "Assalam o alaikum" {
		t.Fatalf("expected expanded setting, got %v", got)
	}
	if cfg.Policy.Text != "You answer for Test School." {
		t.Fatalf("unexpected policy %q", cfg.Policy.Text)
	}
	if cfg.Conversation.MaxHistory != 4 || cfg.Conversation.PromptTurns != 2 || cfg.Conversation.RecordFallbackTurns {
		t.Fatalf("unexpected conversation settings: %+v", cfg.Conversation)
	}
	if !cfg.Console.Enabled {
		t.Fatalf("expected console enabled")
	}
}

func TestLoadConfigInlinePolicyWins(t *testing.T) {
	setEnv(t, completeEnv())
	cfgPath := writeFile(t, "config.yaml", `
policy:
  text: Inline policy.
  file: /does/not/exist
`)
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Policy.Text != "Inline policy." {
		t.Fatalf("unexpected policy %q", cfg.Policy.Text)
	}
}

func TestLoadConfigRejectsPromptTurnsAboveHistory(t *testing.T) {
	setEnv(t, completeEnv())
	cfgPath := writeFile(t, "config.yaml", `
conversation:
  max_history: 2
  prompt_turns: 3
`)
	_, err := LoadConfig(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "prompt_turns") {
		t.Fatalf("expected prompt_turns error, got %v", err)
	}
}

func TestRequiredEnvFollowsProviders(t *testing.T) {
	cfg := Config{}
	cfg.Vendors.LLM.Provider = "openai"
	cfg.Vendors.STT.Provider = "deepgram"
	req := cfg.RequiredEnv()
	for _, k := range []string{"OPENAI_API_KEY", "DEEPGRAM_API_KEY", "TWILIO_ACCOUNT_SID"} {
		if _, ok := req[k]; !ok {
			t.Fatalf("expected %s required", k)
		}
	}
	if _, ok := req["GOOGLE_API_KEY"]; ok {
		t.Fatalf("GOOGLE_API_KEY should not be required for openai")
	}

	cfg.Vendors.LLM.Settings = map[string]any{"api_key": "inline"}
	if _, ok := cfg.RequiredEnv()["OPENAI_API_KEY"]; ok {
		t.Fatalf("inline api_key should satisfy openai")
	}
}

func TestLoadDotEnv(t *testing.T) {
	const key = "SAPA_DOTENV_LOADED"
	t.Setenv(key, "")
	os.Unsetenv(key)
	t.Setenv("SAPA_DOTENV_KEEP", "original")

	path := writeFile(t, ".env", key+"=AC999\nSAPA_DOTENV_KEEP=replaced\n")
	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv(key); got != "AC999" {
		t.Fatalf("expected variable loaded, got %q", got)
	}
	if got := os.Getenv("SAPA_DOTENV_KEEP"); got != "original" {
		t.Fatalf("existing variable overwritten: %q", got)
	}
}
