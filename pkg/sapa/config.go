package sapa

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/harunnryd/sapa/pkg/configutil"
	"github.com/harunnryd/sapa/pkg/errorsx"
	"github.com/harunnryd/sapa/pkg/transports/console"
	"github.com/harunnryd/sapa/pkg/transports/twilio"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// DefaultPort is used when PORT is absent or not a positive integer.
const DefaultPort = 5000

//go:embed default_policy.txt
var defaultPolicy string

// DefaultPolicy returns the built-in school persona.
func DefaultPolicy() string { return strings.TrimSpace(defaultPolicy) }

type Config struct {
	Server         ServerConfig        `mapstructure:"server"`
	Twilio         twilio.Config       `mapstructure:"twilio"`
	Console        console.Config      `mapstructure:"console"`
	Vendors        VendorsConfig       `mapstructure:"vendors"`
	Credentials    CredentialsConfig   `mapstructure:"credentials"`
	Generation     GenerationConfig    `mapstructure:"generation"`
	Conversation   ConversationConfig  `mapstructure:"conversation"`
	Policy         PolicyConfig        `mapstructure:"policy"`
	Observability  ObservabilityConfig `mapstructure:"observability"`
	Privacy        PrivacyConfig       `mapstructure:"privacy"`
	Environment    string              `mapstructure:"environment"`
	LogLevel       string              `mapstructure:"log_level"`
	LogFormat      string              `mapstructure:"log_format"`
	DrainTimeoutMS int                 `mapstructure:"drain_timeout_ms"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	// Port is resolved from server.port or PORT after decoding.
	Port int `mapstructure:"-"`
}

// Addr is the listen address derived from host and port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	LLM VendorConfig `mapstructure:"llm"`
	STT VendorConfig `mapstructure:"stt"`
}

// CredentialsConfig holds API keys supplied through the environment.
type CredentialsConfig struct {
	GoogleAPIKey   string `mapstructure:"google_api_key"`
	OpenAIAPIKey   string `mapstructure:"openai_api_key"`
	DeepgramAPIKey string `mapstructure:"deepgram_api_key"`
}

type CircuitBreakerConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Threshold  int  `mapstructure:"threshold"`
	CooldownMS int  `mapstructure:"cooldown_ms"`
}

type GenerationConfig struct {
	TimeoutMS      int                  `mapstructure:"timeout_ms"`
	Fallback       string               `mapstructure:"fallback"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type ConversationConfig struct {
	MaxHistory          int    `mapstructure:"max_history"`
	PromptTurns         int    `mapstructure:"prompt_turns"`
	RecordFallbackTurns bool   `mapstructure:"record_fallback_turns"`
	EmptyPrompt         string `mapstructure:"empty_prompt"`
}

type PolicyConfig struct {
	Text string `mapstructure:"text"`
	File string `mapstructure:"file"`
}

type ObservabilityConfig struct {
	MetricsPath string `mapstructure:"metrics_path"`
	AsyncBuffer int    `mapstructure:"async_buffer"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

// envBindings maps config keys onto the environment variables that set them.
var envBindings = map[string]string{
	"twilio.account_sid":           "TWILIO_ACCOUNT_SID",
	"twilio.auth_token":            "TWILIO_AUTH_TOKEN",
	"twilio.whatsapp_number":       "TWILIO_WHATSAPP_NUMBER",
	"twilio.public_url":            "PUBLIC_URL",
	"credentials.google_api_key":   "GOOGLE_API_KEY",
	"credentials.openai_api_key":   "OPENAI_API_KEY",
	"credentials.deepgram_api_key": "DEEPGRAM_API_KEY",
	"server.port":                  "PORT",
	"log_level":                    "LOG_LEVEL",
	"log_format":                   "LOG_FORMAT",
}

// LoadDotEnv loads variables from the given files (default ".env") into the
// process environment. Variables already set are left untouched and missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := gotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig reads the optional YAML file at path, overlays the environment
// and validates that required settings are present. A missing requirement
// yields an error carrying errorsx.ReasonConfigMissing and a
// *configutil.ValidationError naming the environment variables to set.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	cfg.Server.Port = parsePort(v.Get("server.port"))
	cfg.Twilio.ServerAddr = cfg.Server.Addr()
	cfg.Vendors.LLM.Settings = configutil.ExpandEnv(cfg.Vendors.LLM.Settings)
	cfg.Vendors.STT.Settings = configutil.ExpandEnv(cfg.Vendors.STT.Settings)

	policy, err := resolvePolicy(cfg.Policy)
	if err != nil {
		return Config{}, err
	}
	cfg.Policy.Text = policy

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("twilio.webhook_path", "/whatsapp")
	v.SetDefault("twilio.send_path", "/send-message")
	v.SetDefault("twilio.health_path", "/health")
	v.SetDefault("twilio.validate_signature", false)
	v.SetDefault("twilio.max_media_bytes", 16<<20)
	v.SetDefault("console.enabled", false)
	v.SetDefault("console.path", "/console")
	v.SetDefault("vendors.llm.provider", "gemini")
	v.SetDefault("vendors.stt.provider", "")
	v.SetDefault("generation.timeout_ms", 12000)
	v.SetDefault("generation.fallback", "Maaf kijiye, abhi kuch technical issue hai. Thodi der baad try kariye.")
	v.SetDefault("generation.circuit_breaker.enabled", true)
	v.SetDefault("generation.circuit_breaker.threshold", 3)
	v.SetDefault("generation.circuit_breaker.cooldown_ms", 30000)
	v.SetDefault("conversation.max_history", 5)
	v.SetDefault("conversation.prompt_turns", 3)
	v.SetDefault("conversation.record_fallback_turns", true)
	v.SetDefault("conversation.empty_prompt", "Aap kya janna chahte hain? Main AL-GHAZALI HIGH School ka AI assistant hun.")
	v.SetDefault("observability.metrics_path", "")
	v.SetDefault("observability.async_buffer", 1024)
	v.SetDefault("privacy.redact_pii", false)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("drain_timeout_ms", 10000)
}

func parsePort(raw any) int {
	port, err := cast.ToIntE(raw)
	if err != nil || port <= 0 || port > 65535 {
		return DefaultPort
	}
	return port
}

func resolvePolicy(p PolicyConfig) (string, error) {
	if text := strings.TrimSpace(p.Text); text != "" {
		return text, nil
	}
	if file := strings.TrimSpace(p.File); file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read policy file: %w", err)
		}
		if text := strings.TrimSpace(string(b)); text != "" {
			return text, nil
		}
		return "", fmt.Errorf("policy file %s is empty", file)
	}
	return DefaultPolicy(), nil
}

// RequiredEnv returns the environment variables the configuration needs,
// with their resolved values.
func (c *Config) RequiredEnv() map[string]any {
	req := map[string]any{
		"TWILIO_ACCOUNT_SID":     c.Twilio.AccountSID,
		"TWILIO_AUTH_TOKEN":      c.Twilio.AuthToken,
		"TWILIO_WHATSAPP_NUMBER": c.Twilio.WhatsAppNumber,
	}
	switch strings.ToLower(strings.TrimSpace(c.Vendors.LLM.Provider)) {
	case "gemini":
		req["GOOGLE_API_KEY"] = c.Credentials.GoogleAPIKey
	case "openai":
		if _, ok := c.Vendors.LLM.Settings["api_key"]; !ok {
			req["OPENAI_API_KEY"] = c.Credentials.OpenAIAPIKey
		}
	}
	if strings.EqualFold(strings.TrimSpace(c.Vendors.STT.Provider), "deepgram") {
		if _, ok := c.Vendors.STT.Settings["api_key"]; !ok {
			req["DEEPGRAM_API_KEY"] = c.Credentials.DeepgramAPIKey
		}
	}
	return req
}

func (c *Config) Validate() error {
	req := c.RequiredEnv()
	names := make([]string, 0, len(req))
	for name := range req {
		names = append(names, name)
	}
	if err := configutil.ValidateSettings(req, configutil.Schema{Required: names}); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonConfigMissing)
	}
	if strings.TrimSpace(c.Vendors.LLM.Provider) == "" {
		return fmt.Errorf("vendors.llm.provider is required")
	}
	if c.Conversation.PromptTurns > c.Conversation.MaxHistory {
		return fmt.Errorf("conversation.prompt_turns (%d) exceeds conversation.max_history (%d)",
			c.Conversation.PromptTurns, c.Conversation.MaxHistory)
	}
	return nil
}

// MissingEnv returns the sorted names reported missing by err, if any.
func MissingEnv(err error) []string {
	var verr *configutil.ValidationError
	if errors.As(err, &verr) {
		return verr.Missing
	}
	return nil
}
