// Package repository persists notifications and user preference snapshots.
//
// Two backends implement notification.Store and notification.UserDirectory:
// PostgresStore (pgx, shared pool with River) for deployments and SQLiteStore
// (sqlx + modernc.org/sqlite) for single-node installs and tests. Both apply
// state transitions through notification.Notification so their semantics
// cannot drift apart.
package repository

import (
	"fmt"
	"time"

	"smartspray.io/notifier/internal/notification"
)

// User is a directory entry. The notifier only reads preferences; writes
// come from the seed tool and the platform's user service.
type User struct {
	ID             string
	Name           string
	Email          string
	Phone          string
	Role           string
	Active         bool
	PasswordHash   string
	NotifyEmail    bool
	NotifySMS      bool
	NotifyWhatsApp bool
	NotifyCritical bool
	CreatedAt      time.Time
}

// Preferences converts u to the snapshot consumed by the resolver.
func (u *User) Preferences() *notification.Preferences {
	return &notification.Preferences{
		UserID:                u.ID,
		Name:                  u.Name,
		Role:                  u.Role,
		Active:                u.Active,
		EmailEnabled:          u.NotifyEmail,
		SMSEnabled:            u.NotifySMS,
		WhatsAppEnabled:       u.NotifyWhatsApp,
		CriticalAlertsEnabled: u.NotifyCritical,
		Email:                 u.Email,
		Phone:                 u.Phone,
	}
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", notification.ErrStoreUnavailable, op, err)
}

func relatedEntity(entityType, entityID string) *notification.RelatedEntity {
	if entityType == "" && entityID == "" {
		return nil
	}
	return &notification.RelatedEntity{Type: notification.EntityType(entityType), ID: entityID}
}

func entityColumns(re *notification.RelatedEntity) (string, string) {
	if re == nil {
		return "", ""
	}
	return string(re.Type), re.ID
}

func normalizeRole(role string) string {
	if role == "" {
		return notification.RoleUser
	}
	return role
}
