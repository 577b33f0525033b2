package notification

import "strings"

// Roles known to the user directory.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Preferences is a read-only snapshot of a user's delivery settings and
// contact details.
type Preferences struct {
	UserID string
	Name   string
	Role   string
	Active bool

	EmailEnabled          bool
	SMSEnabled            bool
	WhatsAppEnabled       bool
	CriticalAlertsEnabled bool

	Email string
	Phone string
}

// IsAdmin reports whether the user has the admin role.
func (p *Preferences) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Address returns the contact address used for ch, or "" when none is on
// file. In-app needs no address and returns the user id.
func (p *Preferences) Address(ch Channel) string {
	switch ch {
	case ChannelInApp:
		return p.UserID
	case ChannelEmail:
		return strings.TrimSpace(p.Email)
	case ChannelSMS, ChannelWhatsApp:
		return strings.TrimSpace(p.Phone)
	}
	return ""
}

func (p *Preferences) enabled(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelSMS:
		return p.SMSEnabled
	case ChannelWhatsApp:
		return p.WhatsAppEnabled
	}
	return false
}

// Resolve computes the effective channel set for a notification.
//
// In-app is always included. Email, SMS and WhatsApp are included when
// requested, enabled in prefs and backed by a contact address. Critical
// priority skips the enabled check but still needs an address.
func Resolve(prefs *Preferences, requested ChannelSet, priority Priority) (ChannelSet, error) {
	if prefs == nil {
		return nil, ErrInvalidUser
	}

	effective := []Channel{ChannelInApp}
	for _, ch := range []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp} {
		if !requested.Contains(ch) {
			continue
		}
		if prefs.Address(ch) == "" {
			continue
		}
		if priority != PriorityCritical && !prefs.enabled(ch) {
			continue
		}
		effective = append(effective, ch)
	}
	return NewChannelSet(effective...), nil
}
