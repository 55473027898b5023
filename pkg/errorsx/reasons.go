package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonLLMGenerate  ReasonCode = "llm_generate"
	ReasonLLMTimeout   ReasonCode = "llm_timeout"
	ReasonLLMAuth      ReasonCode = "llm_auth"
	ReasonLLMQuota     ReasonCode = "llm_quota"
	ReasonLLMMalformed ReasonCode = "llm_malformed"

	ReasonWebhookInvalidSignature ReasonCode = "webhook_invalid_signature"
	ReasonWebhookInternal         ReasonCode = "webhook_internal"
	ReasonTransportSend           ReasonCode = "transport_send"
	ReasonTranscribe              ReasonCode = "transcribe"

	ReasonConfigMissing ReasonCode = "config_missing"
)
