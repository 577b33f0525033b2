// Package notification implements notification delivery for SmartSpray:
// preference resolution, channel rendering, dispatch to external providers,
// broadcast and retention cleanup.
//
// Persistence and transport live elsewhere; this package only depends on the
// narrow Store, UserDirectory, Sender and Pusher contracts declared here.
package notification

import (
	"strings"
	"time"
	"unicode/utf8"

	apperrors "smartspray.io/notifier/internal/pkg/errors"
)

// Kind classifies a notification for presentation.
type Kind string

const (
	KindAlert   Kind = "alert"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAlert, KindWarning, KindInfo, KindSuccess, KindError:
		return true
	}
	return false
}

// Kinds returns all known kinds in display order.
func Kinds() []Kind {
	return []Kind{KindAlert, KindWarning, KindInfo, KindSuccess, KindError}
}

// Priority controls delivery urgency. Critical forces delivery through every
// channel with usable contact information.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Channel is a delivery medium.
type Channel string

const (
	ChannelInApp    Channel = "in-app"
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// channelOrder is the canonical ordering used for every ChannelSet.
var channelOrder = []Channel{ChannelInApp, ChannelEmail, ChannelSMS, ChannelWhatsApp}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	for _, known := range channelOrder {
		if c == known {
			return true
		}
	}
	return false
}

// ChannelSet is a duplicate-free set of channels kept in canonical order.
// The zero value is the empty set.
type ChannelSet []Channel

// NewChannelSet deduplicates and orders channels. Unknown channels are dropped.
func NewChannelSet(channels ...Channel) ChannelSet {
	if len(channels) == 0 {
		return nil
	}
	seen := make(map[Channel]bool, len(channels))
	for _, c := range channels {
		seen[c] = true
	}
	var out ChannelSet
	for _, c := range channelOrder {
		if seen[c] {
			out = append(out, c)
		}
	}
	return out
}

// ParseChannelSet parses a comma-separated list as stored by the SQLite backend.
func ParseChannelSet(s string) ChannelSet {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	channels := make([]Channel, 0, len(parts))
	for _, p := range parts {
		channels = append(channels, Channel(strings.TrimSpace(p)))
	}
	return NewChannelSet(channels...)
}

// String joins the set with commas.
func (s ChannelSet) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

// Strings returns the set as plain strings.
func (s ChannelSet) Strings() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = string(c)
	}
	return out
}

// Contains reports whether c is in the set.
func (s ChannelSet) Contains(c Channel) bool {
	for _, x := range s {
		if x == c {
			return true
		}
	}
	return false
}

// Union returns s ∪ other.
func (s ChannelSet) Union(other ChannelSet) ChannelSet {
	all := make([]Channel, 0, len(s)+len(other))
	all = append(all, s...)
	all = append(all, other...)
	return NewChannelSet(all...)
}

// Intersect returns s ∩ other.
func (s ChannelSet) Intersect(other ChannelSet) ChannelSet {
	var out []Channel
	for _, c := range s {
		if other.Contains(c) {
			out = append(out, c)
		}
	}
	return NewChannelSet(out...)
}

// Without returns s with c removed.
func (s ChannelSet) Without(c Channel) ChannelSet {
	var out []Channel
	for _, x := range s {
		if x != c {
			out = append(out, x)
		}
	}
	return NewChannelSet(out...)
}

// EntityType tags what a notification links to.
type EntityType string

const (
	EntitySpray  EntityType = "spray"
	EntityFarm   EntityType = "farm"
	EntitySensor EntityType = "sensor"
	EntitySystem EntityType = "system"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntitySpray, EntityFarm, EntitySensor, EntitySystem:
		return true
	}
	return false
}

// RelatedEntity links a notification to a farm, spray, sensor or system event.
type RelatedEntity struct {
	Type EntityType `json:"entity_type"`
	ID   string     `json:"entity_id"`
}

// State is the dispatch state. Read state is tracked separately.
type State string

const (
	StatePending    State = "pending"
	StateDispatched State = "dispatched"
)

// Notification is a persisted notification record.
type Notification struct {
	ID                string         `json:"id"`
	UserID            string         `json:"user_id"`
	Kind              Kind           `json:"kind"`
	Title             string         `json:"title"`
	Message           string         `json:"message"`
	RelatedEntity     *RelatedEntity `json:"related_entity,omitempty"`
	Priority          Priority       `json:"priority"`
	RequestedChannels ChannelSet     `json:"requested_channels"`
	EffectiveChannels ChannelSet     `json:"effective_channels"`
	SentChannels      ChannelSet     `json:"sent_channels"`
	Read              bool           `json:"read"`
	Sent              bool           `json:"sent"`
	CreatedAt         time.Time      `json:"created_at"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
	ReadAt            *time.Time     `json:"read_at,omitempty"`
	ExpiresAt         *time.Time     `json:"expires_at,omitempty"`
}

// State reports whether channel resolution has run for n.
func (n *Notification) State() State {
	if len(n.EffectiveChannels) == 0 {
		return StatePending
	}
	return StateDispatched
}

// ApplyOutcome merges a dispatch outcome into n. The effective set is only
// recorded the first time; sent channels are unioned and restricted to the
// effective set. Sent and SentAt are set once, when the union first becomes
// non-empty. Repeating the same outcome leaves n unchanged.
func (n *Notification) ApplyOutcome(effective, sent ChannelSet, now time.Time) {
	if len(n.EffectiveChannels) == 0 {
		n.EffectiveChannels = NewChannelSet(effective...)
	}
	n.SentChannels = n.SentChannels.Union(sent).Intersect(n.EffectiveChannels)
	if len(n.SentChannels) > 0 && !n.Sent {
		n.Sent = true
		t := now
		n.SentAt = &t
	}
}

// MarkRead flips n to read. It returns false when n was already read, in
// which case ReadAt is left untouched.
func (n *Notification) MarkRead(now time.Time) bool {
	if n.Read {
		return false
	}
	n.Read = true
	t := now
	n.ReadAt = &t
	return true
}

// Field limits.
const (
	MaxTitleLength   = 255
	MaxMessageLength = 2048
)

// CreateRequest is the validated input to Dispatcher.Create.
type CreateRequest struct {
	UserID        string         `json:"user_id"`
	Kind          Kind           `json:"kind"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	RelatedEntity *RelatedEntity `json:"related_entity,omitempty"`
	Priority      Priority       `json:"priority,omitempty"`
	Channels      []Channel      `json:"channels,omitempty"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
}

// Normalize applies defaults: priority medium, trimmed text.
func (r *CreateRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
	r.Title = strings.TrimSpace(r.Title)
	r.Message = strings.TrimSpace(r.Message)
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
}

// Validate returns a *ValidationError listing every offending field, or nil.
func (r *CreateRequest) Validate() error {
	var fields []apperrors.FieldError
	add := func(field, code, msg string) {
		fields = append(fields, apperrors.FieldError{Field: field, Code: code, Message: msg})
	}

	if r.UserID == "" {
		add("user_id", apperrors.FieldRequired, "user_id is required")
	}
	switch {
	case r.Kind == "":
		add("kind", apperrors.FieldRequired, "kind is required")
	case !r.Kind.Valid():
		add("kind", apperrors.FieldInvalid, "kind must be one of alert, warning, info, success, error")
	}
	switch {
	case r.Title == "":
		add("title", apperrors.FieldRequired, "title is required")
	case utf8.RuneCountInString(r.Title) > MaxTitleLength:
		add("title", apperrors.FieldTooLong, "title exceeds 255 characters")
	}
	switch {
	case r.Message == "":
		add("message", apperrors.FieldRequired, "message is required")
	case utf8.RuneCountInString(r.Message) > MaxMessageLength:
		add("message", apperrors.FieldTooLong, "message exceeds 2048 characters")
	}
	switch {
	case r.Priority == "":
		add("priority", apperrors.FieldRequired, "priority is required")
	case !r.Priority.Valid():
		add("priority", apperrors.FieldInvalid, "priority must be one of low, medium, high, critical")
	}
	for _, c := range r.Channels {
		if !c.Valid() {
			add("channels", apperrors.FieldInvalid, "unknown channel "+string(c))
			break
		}
	}
	if r.RelatedEntity != nil {
		if !r.RelatedEntity.Type.Valid() {
			add("related_entity.entity_type", apperrors.FieldInvalid, "entity_type must be one of spray, farm, sensor, system")
		}
		if strings.TrimSpace(r.RelatedEntity.ID) == "" {
			add("related_entity.entity_id", apperrors.FieldRequired, "entity_id is required")
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// NewRecord builds the pending record inserted for r.
func (r *CreateRequest) NewRecord(id string, now time.Time) *Notification {
	return &Notification{
		ID:                id,
		UserID:            r.UserID,
		Kind:              r.Kind,
		Title:             r.Title,
		Message:           r.Message,
		RelatedEntity:     r.RelatedEntity,
		Priority:          r.Priority,
		RequestedChannels: NewChannelSet(r.Channels...),
		CreatedAt:         now,
		ExpiresAt:         r.ExpiresAt,
	}
}
