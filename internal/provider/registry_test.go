package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartspray.io/notifier/internal/config"
	"smartspray.io/notifier/internal/notification"
)

func TestNewSenders(t *testing.T) {
	twilio := config.TwilioConfig{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+1555", WhatsAppFrom: "+1556"}

	tests := []struct {
		name      string
		cfg       config.ProvidersConfig
		wantErr   bool
		wantEmail interface{}
		wantSMS   interface{}
		wantWA    interface{}
	}{
		{
			name:      "all log stubs",
			cfg:       config.ProvidersConfig{EmailDriver: "log", SMSDriver: "log", WhatsAppDriver: "log"},
			wantEmail: &LogSender{}, wantSMS: &LogSender{}, wantWA: &LogSender{},
		},
		{
			name: "resend and twilio",
			cfg: config.ProvidersConfig{
				EmailDriver: "resend", SMSDriver: "twilio", WhatsAppDriver: "twilio",
				Resend: config.ResendConfig{APIKey: "re_1", From: "a@b.com"},
				Twilio: twilio,
			},
			wantEmail: &ResendEmailSender{}, wantSMS: &TwilioSender{}, wantWA: &TwilioSender{},
		},
		{
			name: "smtp",
			cfg: config.ProvidersConfig{
				EmailDriver: "smtp", SMSDriver: "log", WhatsAppDriver: "log",
				SMTP: config.SMTPConfig{Host: "smtp.example.com", Port: 587},
			},
			wantEmail: &SMTPEmailSender{}, wantSMS: &LogSender{}, wantWA: &LogSender{},
		},
		{
			name:    "resend without key",
			cfg:     config.ProvidersConfig{EmailDriver: "resend", SMSDriver: "log", WhatsAppDriver: "log"},
			wantErr: true,
		},
		{
			name:    "twilio without credentials",
			cfg:     config.ProvidersConfig{EmailDriver: "log", SMSDriver: "twilio", WhatsAppDriver: "log"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			senders, err := NewSenders(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantEmail, senders[notification.ChannelEmail])
			assert.IsType(t, tt.wantSMS, senders[notification.ChannelSMS])
			assert.IsType(t, tt.wantWA, senders[notification.ChannelWhatsApp])
			assert.NotContains(t, senders, notification.ChannelInApp)
		})
	}
}

func TestLogSender(t *testing.T) {
	s := NewLogSender(notification.ChannelWhatsApp)
	assert.NoError(t, s.Send(context.Background(), "+15550001", notification.Content{Body: "hi"}))
	assert.ErrorIs(t, s.Send(context.Background(), "", notification.Content{}), ErrNoAddress)
}

func TestMockSender(t *testing.T) {
	m := NewMockSender()
	require.NoError(t, m.Send(context.Background(), "a@b.com", notification.Content{Subject: "s"}))
	assert.Len(t, m.Deliveries(), 1)

	m.FailWith(assert.AnError)
	assert.ErrorIs(t, m.Send(context.Background(), "a@b.com", notification.Content{}), assert.AnError)

	m.Reset()
	assert.Empty(t, m.Deliveries())
}
