package notification

import (
	"context"
	"time"
)

// Requester identifies who is performing a store operation.
type Requester struct {
	UserID string
	Admin  bool
}

// CanAccess reports whether r may read or mutate n.
func (r Requester) CanAccess(n *Notification) bool {
	return r.Admin || (r.UserID != "" && r.UserID == n.UserID)
}

// Pagination bounds for List.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// ListFilter selects a page of one user's notifications.
type ListFilter struct {
	UserID  string
	Read    *bool
	Kind    Kind
	Page    int
	PerPage int
}

// Normalize clamps paging to sane defaults.
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
}

// Offset returns the row offset for the page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

// Page is one page of notifications, newest first.
type Page struct {
	Items   []*Notification `json:"items"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
}

// Stats aggregates one user's notifications.
type Stats struct {
	Total  int             `json:"total"`
	Unread int             `json:"unread"`
	ByKind map[Kind]int    `json:"by_kind"`
	Recent []*Notification `json:"recent"`
}

// Store persists notifications. It is the only place notification state
// changes. Implementations return ErrNotFound, ErrForbidden, ErrValidation
// and ErrStoreUnavailable (possibly wrapped).
type Store interface {
	// Insert persists a pending record: read, sent and sent channels start
	// false or empty regardless of n.
	Insert(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id string, requester Requester) (*Notification, error)
	List(ctx context.Context, filter ListFilter) (*Page, error)
	// MarkRead is idempotent: a second call returns the record with its
	// original ReadAt.
	MarkRead(ctx context.Context, id string, requester Requester) (*Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
	// RecordOutcome stores effective channels on first call and unions sent
	// into the stored sent channels.
	RecordOutcome(ctx context.Context, id string, effective, sent ChannelSet) (*Notification, error)
	Stats(ctx context.Context, userID string, recent int) (*Stats, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, id string, requester Requester) error
	// PurgeExpired deletes non-critical records older than retentionDays.
	PurgeExpired(ctx context.Context, retentionDays int) (int, error)
}

// UserDirectory exposes read-only user preference snapshots.
type UserDirectory interface {
	// Preferences returns ErrInvalidUser for unknown ids.
	Preferences(ctx context.Context, userID string) (*Preferences, error)
	ActiveUserIDs(ctx context.Context) ([]string, error)
}

// ValidateRecord checks the fields every stored record must carry.
func ValidateRecord(n *Notification) error {
	req := CreateRequest{
		UserID:   n.UserID,
		Kind:     n.Kind,
		Title:    n.Title,
		Message:  n.Message,
		Priority: n.Priority,
	}
	return req.Validate()
}

// RetentionCutoff returns the instant before which non-critical records may
// be purged.
func RetentionCutoff(now time.Time, retentionDays int) time.Time {
	return now.Add(-time.Duration(retentionDays) * 24 * time.Hour)
}
