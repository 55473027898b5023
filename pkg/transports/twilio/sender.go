package twilio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harunnryd/sapa/pkg/errorsx"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

const whatsappPrefix = "whatsapp:"

type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// Sender delivers outbound WhatsApp messages via the Twilio REST API.
type Sender struct {
	cfg    Config
	client messageCreator
}

// NewSender creates a sender using the account credentials in cfg.
func NewSender(cfg Config) *Sender {
	return &Sender{cfg: cfg.withDefaults()}
}

// Send delivers body to the given recipient and returns the message SID.
// Recipients without a channel prefix are addressed on WhatsApp.
func (s *Sender) Send(ctx context.Context, to, body string) (string, error) {
	// CreateMessage takes no context, so ctx is only honoured before the call.
	if err := ctx.Err(); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	if strings.TrimSpace(to) == "" || body == "" {
		return "", errors.New("to/body required")
	}
	if s.cfg.AccountSID == "" || s.cfg.AuthToken == "" {
		return "", errorsx.Wrap(errors.New("missing twilio credentials"), errorsx.ReasonTransportSend)
	}
	client := s.client
	if client == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: s.cfg.AccountSID,
			Password: s.cfg.AuthToken,
		})
		client = rest.Api
	}
	params := &api.CreateMessageParams{}
	params.SetTo(WhatsAppAddress(to))
	params.SetFrom(WhatsAppAddress(s.cfg.WhatsAppNumber))
	params.SetBody(body)
	resp, err := client.CreateMessage(params)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	if resp == nil || resp.Sid == nil {
		return "", errorsx.Wrap(fmt.Errorf("missing message sid"), errorsx.ReasonTransportSend)
	}
	return *resp.Sid, nil
}

// WhatsAppAddress prefixes addr with "whatsapp:" unless already present.
func WhatsAppAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" || strings.HasPrefix(addr, whatsappPrefix) {
		return addr
	}
	return whatsappPrefix + addr
}
