package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"smartspray.io/notifier/internal/notification"
	"smartspray.io/notifier/internal/pkg/logger"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioSender sends SMS, or WhatsApp messages when whatsapp is set, through
// the Twilio Messages API.
type TwilioSender struct {
	accountSID string
	authToken  string
	from       string
	whatsapp   bool
	transport  http.RoundTripper
	timeout    time.Duration
}

// TwilioOption configures a TwilioSender.
type TwilioOption func(*TwilioSender)

// WithTwilioTransport overrides the HTTP transport used by the SDK client.
func WithTwilioTransport(rt http.RoundTripper) TwilioOption {
	return func(s *TwilioSender) {
		if rt != nil {
			s.transport = rt
		}
	}
}

// WithTwilioBaseURL points the SDK at another API host, e.g. a local stub.
// An empty or default URL keeps the Twilio host.
func WithTwilioBaseURL(raw string) TwilioOption {
	return func(s *TwilioSender) {
		raw = strings.TrimRight(raw, "/")
		if raw == "" || raw == defaultTwilioBaseURL {
			return
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			logger.Warn("ignoring invalid twilio base url", zap.String("base_url", raw))
			return
		}
		s.transport = hostRewrite{target: u, next: s.transport}
	}
}

// NewTwilioSMSSender creates an SMS sender.
func NewTwilioSMSSender(accountSID, authToken, from string, opts ...TwilioOption) *TwilioSender {
	return newTwilioSender(accountSID, authToken, from, false, opts)
}

// NewTwilioWhatsAppSender creates a WhatsApp sender. Numbers are prefixed
// with "whatsapp:" as Twilio requires.
func NewTwilioWhatsAppSender(accountSID, authToken, from string, opts ...TwilioOption) *TwilioSender {
	return newTwilioSender(accountSID, authToken, from, true, opts)
}

func newTwilioSender(accountSID, authToken, from string, whatsapp bool, opts []TwilioOption) *TwilioSender {
	s := &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		whatsapp:   whatsapp,
		transport:  http.DefaultTransport,
		timeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send implements notification.Sender.
func (s *TwilioSender) Send(ctx context.Context, address string, content notification.Content) error {
	if address == "" {
		return ErrNoAddress
	}

	params := &twapi.CreateMessageParams{}
	params.SetPathAccountSid(s.accountSID)
	params.SetTo(s.address(address))
	params.SetFrom(s.address(s.from))
	params.SetBody(content.Body)

	msg, err := s.client(ctx).Api.CreateMessage(params)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("twilio: %w", ctx.Err())
		}
		var apiErr *twclient.TwilioRestError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("twilio status %d (code %d): %s", apiErr.Status, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("twilio: %w", err)
	}

	logger.Debug("message accepted by twilio",
		zap.Stringp("sid", msg.Sid),
		zap.Stringp("status", msg.Status),
		zap.Bool("whatsapp", s.whatsapp),
	)
	return nil
}

// client builds an SDK client whose requests carry ctx. The SDK's message
// calls take no context, so cancellation rides on the transport.
func (s *TwilioSender) client(ctx context.Context) *twilio.RestClient {
	base := &twclient.Client{
		Credentials: twclient.NewCredentials(s.accountSID, s.authToken),
		HTTPClient: &http.Client{
			Timeout:   s.timeout,
			Transport: withContext{ctx: ctx, next: s.transport},
		},
	}
	base.SetAccountSid(s.accountSID)
	return twilio.NewRestClientWithParams(twilio.ClientParams{
		Username:   s.accountSID,
		Password:   s.authToken,
		AccountSid: s.accountSID,
		Client:     base,
	})
}

func (s *TwilioSender) address(number string) string {
	if s.whatsapp && !strings.HasPrefix(number, "whatsapp:") {
		return "whatsapp:" + number
	}
	return number
}

type withContext struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t withContext) RoundTrip(r *http.Request) (*http.Response, error) {
	return t.next.RoundTrip(r.WithContext(t.ctx))
}

type hostRewrite struct {
	target *url.URL
	next   http.RoundTripper
}

func (t hostRewrite) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = t.target.Scheme
	r.URL.Host = t.target.Host
	r.Host = t.target.Host
	return t.next.RoundTrip(r)
}
