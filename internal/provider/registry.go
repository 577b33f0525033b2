package provider

import (
	"fmt"

	"go.uber.org/zap"

	"smartspray.io/notifier/internal/config"
	"smartspray.io/notifier/internal/notification"
	"smartspray.io/notifier/internal/pkg/logger"
)

// NewSenders builds the channel sender set from configuration.
func NewSenders(cfg config.ProvidersConfig) (notification.Senders, error) {
	senders := notification.Senders{}

	switch cfg.EmailDriver {
	case config.EmailDriverResend:
		if cfg.Resend.APIKey == "" {
			return nil, fmt.Errorf("providers.resend.api_key is required for the resend email driver")
		}
		senders[notification.ChannelEmail] = NewResendEmailSender(cfg.Resend.APIKey, cfg.Resend.From)
	case config.EmailDriverSMTP:
		if cfg.SMTP.Host == "" {
			return nil, fmt.Errorf("providers.smtp.host is required for the smtp email driver")
		}
		senders[notification.ChannelEmail] = NewSMTPEmailSender(
			cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From,
		)
	default:
		senders[notification.ChannelEmail] = NewLogSender(notification.ChannelEmail)
	}

	twilioReady := cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != ""

	switch cfg.SMSDriver {
	case config.MessagingDriverTwilio:
		if !twilioReady || cfg.Twilio.FromNumber == "" {
			return nil, fmt.Errorf("providers.twilio account_sid, auth_token and from_number are required for the twilio sms driver")
		}
		senders[notification.ChannelSMS] = NewTwilioSMSSender(
			cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber,
			WithTwilioBaseURL(cfg.Twilio.BaseURL),
		)
	default:
		senders[notification.ChannelSMS] = NewLogSender(notification.ChannelSMS)
	}

	switch cfg.WhatsAppDriver {
	case config.MessagingDriverTwilio:
		if !twilioReady || cfg.Twilio.WhatsAppFrom == "" {
			return nil, fmt.Errorf("providers.twilio account_sid, auth_token and whatsapp_from are required for the twilio whatsapp driver")
		}
		senders[notification.ChannelWhatsApp] = NewTwilioWhatsAppSender(
			cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.WhatsAppFrom,
			WithTwilioBaseURL(cfg.Twilio.BaseURL),
		)
	default:
		senders[notification.ChannelWhatsApp] = NewLogSender(notification.ChannelWhatsApp)
	}

	logger.Info("channel senders configured",
		zap.String("email", cfg.EmailDriver),
		zap.String("sms", cfg.SMSDriver),
		zap.String("whatsapp", cfg.WhatsAppDriver),
	)
	return senders, nil
}
