package notification

import (
	"bytes"
	"html/template"
	"time"
	"unicode/utf8"
)

// Text limits for message channels.
const (
	SMSMaxLength      = 160
	WhatsAppMaxLength = 1000
)

const ellipsis = "..."

// Content is channel-ready rendered output.
type Content struct {
	Subject string
	Body    string
}

type kindStyle struct {
	Color string
	Icon  string
}

var kindStyles = map[Kind]kindStyle{
	KindAlert:   {Color: "#ff9800", Icon: "⚠️"},
	KindWarning: {Color: "#ff9800", Icon: "⚠️"},
	KindInfo:    {Color: "#2196f3", Icon: "ℹ️"},
	KindSuccess: {Color: "#4caf50", Icon: "✅"},
	KindError:   {Color: "#f44336", Icon: "❌"},
}

var neutralStyle = kindStyle{Color: "#607d8b", Icon: "🔔"}

func styleFor(k Kind) kindStyle {
	if s, ok := kindStyles[k]; ok {
		return s
	}
	return neutralStyle
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="margin:0;padding:0;font-family:Arial,sans-serif;background:#f5f5f5;">
  <div style="max-width:600px;margin:0 auto;background:#ffffff;">
    <div style="background:{{.Color}};color:#ffffff;padding:20px;text-align:center;">
      <h1 style="margin:0;font-size:22px;">{{.Icon}} {{.Title}}</h1>
    </div>
    <div style="padding:24px;color:#333333;line-height:1.5;">
      <p style="margin:0;">{{.Message}}</p>
    </div>
    <div style="padding:16px;background:#eeeeee;color:#777777;font-size:12px;text-align:center;">
      <p style="margin:0;">SmartSpray precision agriculture</p>
      <p style="margin:4px 0 0;">You are receiving this because notifications are enabled for your account. Manage preferences in your dashboard settings.</p>
      <p style="margin:4px 0 0;">&copy; {{.Year}} SmartSpray</p>
    </div>
  </div>
</body>
</html>
`))

type emailData struct {
	Title   string
	Message string
	Color   string
	Icon    string
	Year    int
}

// Render turns a notification payload into content for ch. Email gets an
// HTML document styled by kind; SMS and WhatsApp get "title: message"
// truncated to the channel limit; in-app gets the message unchanged.
func Render(ch Channel, kind Kind, title, message string) Content {
	switch ch {
	case ChannelEmail:
		return renderEmail(kind, title, message, time.Now().Year())
	case ChannelSMS:
		return Content{Subject: title, Body: Truncate(title+": "+message, SMSMaxLength)}
	case ChannelWhatsApp:
		return Content{Subject: title, Body: Truncate(title+": "+message, WhatsAppMaxLength)}
	default:
		return Content{Subject: title, Body: message}
	}
}

func renderEmail(kind Kind, title, message string, year int) Content {
	style := styleFor(kind)
	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, emailData{
		Title:   title,
		Message: message,
		Color:   style.Color,
		Icon:    style.Icon,
		Year:    year,
	})
	if err != nil {
		panic("notification: execute email template: " + err.Error())
	}
	return Content{Subject: style.Icon + " " + title, Body: buf.String()}
}

// Truncate limits s to max runes, replacing the tail with "..." when cut.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := max - len(ellipsis)
	if cut < 0 {
		cut = 0
	}
	return string(runes[:cut]) + ellipsis
}
