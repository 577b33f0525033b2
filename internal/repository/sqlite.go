package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"smartspray.io/notifier/internal/notification"
)

// SQLiteStore implements notification.Store and notification.UserDirectory
// on a local SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, enables WAL
// mode and foreign keys, and runs any pending schema migrations.
// Use ":memory:" for tests.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection serialises writers and keeps ":memory:" databases
	// from splitting across connections.
	db.SetMaxOpenConns(1)

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	o := buildOptions(opts)
	s := &SQLiteStore{db: db, now: o.now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks connectivity for the readiness probe.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range sqliteMigrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

type sqliteNotification struct {
	ID                string        `db:"id"`
	UserID            string        `db:"user_id"`
	Kind              string        `db:"kind"`
	Title             string        `db:"title"`
	Message           string        `db:"message"`
	EntityType        string        `db:"entity_type"`
	EntityID          string        `db:"entity_id"`
	Priority          string        `db:"priority"`
	RequestedChannels string        `db:"requested_channels"`
	EffectiveChannels string        `db:"effective_channels"`
	SentChannels      string        `db:"sent_channels"`
	Read              bool          `db:"read"`
	Sent              bool          `db:"sent"`
	CreatedAt         int64         `db:"created_at"`
	SentAt            sql.NullInt64 `db:"sent_at"`
	ReadAt            sql.NullInt64 `db:"read_at"`
	ExpiresAt         sql.NullInt64 `db:"expires_at"`
}

const sqliteNotificationColumns = `id, user_id, kind, title, message, entity_type, entity_id, priority,
	requested_channels, effective_channels, sent_channels, read, sent,
	created_at, sent_at, read_at, expires_at`

func (r *sqliteNotification) toModel() *notification.Notification {
	return &notification.Notification{
		ID:                r.ID,
		UserID:            r.UserID,
		Kind:              notification.Kind(r.Kind),
		Title:             r.Title,
		Message:           r.Message,
		RelatedEntity:     relatedEntity(r.EntityType, r.EntityID),
		Priority:          notification.Priority(r.Priority),
		RequestedChannels: notification.ParseChannelSet(r.RequestedChannels),
		EffectiveChannels: notification.ParseChannelSet(r.EffectiveChannels),
		SentChannels:      notification.ParseChannelSet(r.SentChannels),
		Read:              r.Read,
		Sent:              r.Sent,
		CreatedAt:         fromNanos(r.CreatedAt),
		SentAt:            fromNullNanos(r.SentAt),
		ReadAt:            fromNullNanos(r.ReadAt),
		ExpiresAt:         fromNullNanos(r.ExpiresAt),
	}
}

func fromNanos(v int64) time.Time {
	return time.Unix(0, v).UTC()
}

func fromNullNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromNanos(v.Int64)
	return &t
}

func toNullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// Insert implements notification.Store.
func (s *SQLiteStore) Insert(ctx context.Context, n *notification.Notification) error {
	if err := notification.ValidateRecord(n); err != nil {
		return err
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	n.Read, n.Sent = false, false
	n.ReadAt, n.SentAt = nil, nil
	n.EffectiveChannels, n.SentChannels = nil, nil

	entityType, entityID := entityColumns(n.RelatedEntity)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (
			id, user_id, kind, title, message, entity_type, entity_id, priority,
			requested_channels, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, string(n.Kind), n.Title, n.Message, entityType, entityID, string(n.Priority),
		n.RequestedChannels.String(), n.CreatedAt.UnixNano(), toNullNanos(n.ExpiresAt),
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %s", notification.ErrInvalidUser, n.UserID)
	}
	if err != nil {
		return unavailable("insert notification", err)
	}
	return nil
}

func (s *SQLiteStore) load(ctx context.Context, q sqlx.QueryerContext, id string) (*notification.Notification, error) {
	var row sqliteNotification
	err := sqlx.GetContext(ctx, q, &row,
		"SELECT "+sqliteNotificationColumns+" FROM notifications WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notification.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("load notification", err)
	}
	return row.toModel(), nil
}

func (s *SQLiteStore) loadAuthorized(ctx context.Context, q sqlx.QueryerContext, id string, requester notification.Requester) (*notification.Notification, error) {
	n, err := s.load(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if !requester.CanAccess(n) {
		return nil, notification.ErrForbidden
	}
	return n, nil
}

// Get implements notification.Store.
func (s *SQLiteStore) Get(ctx context.Context, id string, requester notification.Requester) (*notification.Notification, error) {
	return s.loadAuthorized(ctx, s.db, id, requester)
}

func sqliteListWhere(f notification.ListFilter) (string, []interface{}) {
	clauses := []string{"user_id = ?"}
	args := []interface{}{f.UserID}
	if f.Read != nil {
		clauses = append(clauses, "read = ?")
		args = append(args, *f.Read)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(f.Kind))
	}
	return strings.Join(clauses, " AND "), args
}

// List implements notification.Store.
func (s *SQLiteStore) List(ctx context.Context, f notification.ListFilter) (*notification.Page, error) {
	f.Normalize()
	where, args := sqliteListWhere(f)

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM notifications WHERE "+where, args...); err != nil {
		return nil, unavailable("count notifications", err)
	}

	var rows []sqliteNotification
	err := s.db.SelectContext(ctx, &rows,
		"SELECT "+sqliteNotificationColumns+" FROM notifications WHERE "+where+
			" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, f.PerPage, f.Offset())...,
	)
	if err != nil {
		return nil, unavailable("list notifications", err)
	}

	items := make([]*notification.Notification, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].toModel())
	}
	return &notification.Page{Items: items, Total: total, Page: f.Page, PerPage: f.PerPage}, nil
}

// MarkRead implements notification.Store.
func (s *SQLiteStore) MarkRead(ctx context.Context, id string, requester notification.Requester) (*notification.Notification, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin mark read", err)
	}
	defer tx.Rollback()

	if _, err := s.loadAuthorized(ctx, tx, id, requester); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE notifications SET read = 1, read_at = ? WHERE id = ? AND read = 0",
		s.now().UnixNano(), id,
	); err != nil {
		return nil, unavailable("mark read", err)
	}
	n, err := s.load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit mark read", err)
	}
	return n, nil
}

// MarkAllRead implements notification.Store.
func (s *SQLiteStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1, read_at = ? WHERE user_id = ? AND read = 0",
		s.now().UnixNano(), userID,
	)
	if err != nil {
		return 0, unavailable("mark all read", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("mark all read", err)
	}
	return int(affected), nil
}

// RecordOutcome implements notification.Store.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, id string, effective, sent notification.ChannelSet) (*notification.Notification, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin record outcome", err)
	}
	defer tx.Rollback()

	n, err := s.load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	n.ApplyOutcome(effective, sent, s.now())

	if _, err := tx.ExecContext(ctx, `
		UPDATE notifications
		SET effective_channels = ?, sent_channels = ?, sent = ?, sent_at = ?
		WHERE id = ?`,
		n.EffectiveChannels.String(), n.SentChannels.String(), n.Sent, toNullNanos(n.SentAt), id,
	); err != nil {
		return nil, unavailable("record outcome", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit record outcome", err)
	}
	return n, nil
}

// Stats implements notification.Store.
func (s *SQLiteStore) Stats(ctx context.Context, userID string, recent int) (*notification.Stats, error) {
	stats := &notification.Stats{ByKind: map[notification.Kind]int{}}

	var counts struct {
		Total  int `db:"total"`
		Unread int `db:"unread"`
	}
	if err := s.db.GetContext(ctx, &counts, `
		SELECT COUNT(*) AS total, COALESCE(SUM(CASE WHEN read = 0 THEN 1 ELSE 0 END), 0) AS unread
		FROM notifications WHERE user_id = ?`, userID); err != nil {
		return nil, unavailable("count stats", err)
	}
	stats.Total, stats.Unread = counts.Total, counts.Unread

	var byKind []struct {
		Kind  string `db:"kind"`
		Count int    `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &byKind,
		"SELECT kind, COUNT(*) AS count FROM notifications WHERE user_id = ? GROUP BY kind", userID); err != nil {
		return nil, unavailable("group stats", err)
	}
	for _, k := range byKind {
		stats.ByKind[notification.Kind(k.Kind)] = k.Count
	}

	stats.Recent = []*notification.Notification{}
	if recent > 0 {
		var rows []sqliteNotification
		if err := s.db.SelectContext(ctx, &rows,
			"SELECT "+sqliteNotificationColumns+" FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?",
			userID, recent); err != nil {
			return nil, unavailable("recent stats", err)
		}
		for i := range rows {
			stats.Recent = append(stats.Recent, rows[i].toModel())
		}
	}
	return stats, nil
}

// UnreadCount implements notification.Store.
func (s *SQLiteStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = 0", userID); err != nil {
		return 0, unavailable("unread count", err)
	}
	return count, nil
}

// Delete implements notification.Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string, requester notification.Requester) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable("begin delete", err)
	}
	defer tx.Rollback()

	if _, err := s.loadAuthorized(ctx, tx, id, requester); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id); err != nil {
		return unavailable("delete notification", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit delete", err)
	}
	return nil
}

// PurgeExpired implements notification.Store.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, retentionDays int) (int, error) {
	cutoff := notification.RetentionCutoff(s.now(), retentionDays)
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE created_at < ? AND priority <> ?",
		cutoff.UnixNano(), string(notification.PriorityCritical),
	)
	if err != nil {
		return 0, unavailable("purge notifications", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("purge notifications", err)
	}
	return int(affected), nil
}

type sqliteUser struct {
	ID             string `db:"id"`
	Name           string `db:"name"`
	Email          string `db:"email"`
	Phone          string `db:"phone"`
	Role           string `db:"role"`
	Active         bool   `db:"is_active"`
	PasswordHash   string `db:"password_hash"`
	NotifyEmail    bool   `db:"notify_email"`
	NotifySMS      bool   `db:"notify_sms"`
	NotifyWhatsApp bool   `db:"notify_whatsapp"`
	NotifyCritical bool   `db:"notify_critical"`
	CreatedAt      int64  `db:"created_at"`
}

// UpsertUser inserts or replaces a directory entry.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u *User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (
			id, name, email, phone, role, is_active, password_hash,
			notify_email, notify_sms, notify_whatsapp, notify_critical, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, email = excluded.email, phone = excluded.phone,
			role = excluded.role, is_active = excluded.is_active, password_hash = excluded.password_hash,
			notify_email = excluded.notify_email, notify_sms = excluded.notify_sms,
			notify_whatsapp = excluded.notify_whatsapp, notify_critical = excluded.notify_critical`,
		u.ID, u.Name, u.Email, u.Phone, normalizeRole(u.Role), u.Active, u.PasswordHash,
		u.NotifyEmail, u.NotifySMS, u.NotifyWhatsApp, u.NotifyCritical, u.CreatedAt.UnixNano(),
	)
	if err != nil {
		return unavailable("upsert user", err)
	}
	return nil
}

// Preferences implements notification.UserDirectory.
func (s *SQLiteStore) Preferences(ctx context.Context, userID string) (*notification.Preferences, error) {
	var row sqliteUser
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, email, phone, role, is_active, password_hash,
			notify_email, notify_sms, notify_whatsapp, notify_critical, created_at
		FROM users WHERE id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", notification.ErrInvalidUser, userID)
	}
	if err != nil {
		return nil, unavailable("load user", err)
	}
	u := User{
		ID: row.ID, Name: row.Name, Email: row.Email, Phone: row.Phone,
		Role: row.Role, Active: row.Active, PasswordHash: row.PasswordHash,
		NotifyEmail: row.NotifyEmail, NotifySMS: row.NotifySMS,
		NotifyWhatsApp: row.NotifyWhatsApp, NotifyCritical: row.NotifyCritical,
		CreatedAt: fromNanos(row.CreatedAt),
	}
	return u.Preferences(), nil
}

// ActiveUserIDs implements notification.UserDirectory.
func (s *SQLiteStore) ActiveUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids,
		"SELECT id FROM users WHERE is_active = 1 ORDER BY id"); err != nil {
		return nil, unavailable("list active users", err)
	}
	return ids, nil
}
