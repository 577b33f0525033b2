package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"smartspray.io/notifier/internal/notification"
)

// pgForeignKeyViolation is the SQLSTATE for foreign_key_violation.
const pgForeignKeyViolation = "23503"

// PostgresStore implements notification.Store and notification.UserDirectory
// on PostgreSQL. It shares its pool with the River client.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...Option) *PostgresStore {
	o := buildOptions(opts)
	return &PostgresStore{pool: pool, now: o.now}
}

// Ping checks connectivity for the readiness probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PostgreSQL keeps microseconds.
func (s *PostgresStore) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

const pgNotificationColumns = `id, user_id, kind, title, message, entity_type, entity_id, priority,
	requested_channels, effective_channels, sent_channels, read, sent,
	created_at, sent_at, read_at, expires_at`

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	var (
		n                              notification.Notification
		kind, priority                 string
		entityType, entityID           string
		requested, effective, sentChan []string
	)
	err := row.Scan(
		&n.ID, &n.UserID, &kind, &n.Title, &n.Message, &entityType, &entityID, &priority,
		&requested, &effective, &sentChan, &n.Read, &n.Sent,
		&n.CreatedAt, &n.SentAt, &n.ReadAt, &n.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	n.Kind = notification.Kind(kind)
	n.Priority = notification.Priority(priority)
	n.RelatedEntity = relatedEntity(entityType, entityID)
	n.RequestedChannels = channelSetFromStrings(requested)
	n.EffectiveChannels = channelSetFromStrings(effective)
	n.SentChannels = channelSetFromStrings(sentChan)
	n.CreatedAt = n.CreatedAt.UTC()
	n.SentAt = utcPtr(n.SentAt)
	n.ReadAt = utcPtr(n.ReadAt)
	n.ExpiresAt = utcPtr(n.ExpiresAt)
	return &n, nil
}

func channelSetFromStrings(ss []string) notification.ChannelSet {
	channels := make([]notification.Channel, len(ss))
	for i, s := range ss {
		channels[i] = notification.Channel(s)
	}
	return notification.NewChannelSet(channels...)
}

// channelArray never returns nil so NOT NULL array columns receive '{}'.
func channelArray(s notification.ChannelSet) []string {
	return s.Strings()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func truncPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC().Truncate(time.Microsecond)
	return &u
}

// Insert implements notification.Store.
func (s *PostgresStore) Insert(ctx context.Context, n *notification.Notification) error {
	if err := notification.ValidateRecord(n); err != nil {
		return err
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.clock()
	}
	n.CreatedAt = n.CreatedAt.UTC().Truncate(time.Microsecond)
	n.ExpiresAt = truncPtr(n.ExpiresAt)
	n.Read, n.Sent = false, false
	n.ReadAt, n.SentAt = nil, nil
	n.EffectiveChannels, n.SentChannels = nil, nil

	entityType, entityID := entityColumns(n.RelatedEntity)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (
			id, user_id, kind, title, message, entity_type, entity_id, priority,
			requested_channels, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, n.UserID, string(n.Kind), n.Title, n.Message, entityType, entityID, string(n.Priority),
		channelArray(n.RequestedChannels), n.CreatedAt, n.ExpiresAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("%w: %s", notification.ErrInvalidUser, n.UserID)
	}
	if err != nil {
		return unavailable("insert notification", err)
	}
	return nil
}

func (s *PostgresStore) load(ctx context.Context, q pgx.Tx, id string, forUpdate bool) (*notification.Notification, error) {
	query := "SELECT " + pgNotificationColumns + " FROM notifications WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	var row pgx.Row
	if q != nil {
		row = q.QueryRow(ctx, query, id)
	} else {
		row = s.pool.QueryRow(ctx, query, id)
	}
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notification.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("load notification", err)
	}
	return n, nil
}

// Get implements notification.Store.
func (s *PostgresStore) Get(ctx context.Context, id string, requester notification.Requester) (*notification.Notification, error) {
	n, err := s.load(ctx, nil, id, false)
	if err != nil {
		return nil, err
	}
	if !requester.CanAccess(n) {
		return nil, notification.ErrForbidden
	}
	return n, nil
}

// List implements notification.Store.
func (s *PostgresStore) List(ctx context.Context, f notification.ListFilter) (*notification.Page, error) {
	f.Normalize()

	clauses := []string{"user_id = $1"}
	args := []interface{}{f.UserID}
	if f.Read != nil {
		args = append(args, *f.Read)
		clauses = append(clauses, fmt.Sprintf("read = $%d", len(args)))
	}
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		clauses = append(clauses, fmt.Sprintf("kind = $%d", len(args)))
	}
	where := strings.Join(clauses, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM notifications WHERE "+where, args...).Scan(&total); err != nil {
		return nil, unavailable("count notifications", err)
	}

	pageArgs := append(args, f.PerPage, f.Offset())
	rows, err := s.pool.Query(ctx,
		"SELECT "+pgNotificationColumns+" FROM notifications WHERE "+where+
			fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2),
		pageArgs...,
	)
	if err != nil {
		return nil, unavailable("list notifications", err)
	}
	items, err := collectNotifications(rows)
	if err != nil {
		return nil, unavailable("scan notifications", err)
	}
	return &notification.Page{Items: items, Total: total, Page: f.Page, PerPage: f.PerPage}, nil
}

func collectNotifications(rows pgx.Rows) ([]*notification.Notification, error) {
	defer rows.Close()
	items := []*notification.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// MarkRead implements notification.Store.
func (s *PostgresStore) MarkRead(ctx context.Context, id string, requester notification.Requester) (*notification.Notification, error) {
	n, err := s.Get(ctx, id, requester)
	if err != nil {
		return nil, err
	}
	if n.Read {
		return n, nil
	}

	// The read = FALSE guard keeps concurrent markers from moving read_at.
	if _, err := s.pool.Exec(ctx,
		"UPDATE notifications SET read = TRUE, read_at = $2 WHERE id = $1 AND read = FALSE",
		id, s.clock(),
	); err != nil {
		return nil, unavailable("mark read", err)
	}
	return s.load(ctx, nil, id, false)
}

// MarkAllRead implements notification.Store.
func (s *PostgresStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		"UPDATE notifications SET read = TRUE, read_at = $2 WHERE user_id = $1 AND read = FALSE",
		userID, s.clock(),
	)
	if err != nil {
		return 0, unavailable("mark all read", err)
	}
	return int(tag.RowsAffected()), nil
}

// RecordOutcome implements notification.Store.
func (s *PostgresStore) RecordOutcome(ctx context.Context, id string, effective, sent notification.ChannelSet) (*notification.Notification, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, unavailable("begin record outcome", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n, err := s.load(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	n.ApplyOutcome(effective, sent, s.clock())

	if _, err := tx.Exec(ctx, `
		UPDATE notifications
		SET effective_channels = $2, sent_channels = $3, sent = $4, sent_at = $5
		WHERE id = $1`,
		id, channelArray(n.EffectiveChannels), channelArray(n.SentChannels), n.Sent, n.SentAt,
	); err != nil {
		return nil, unavailable("record outcome", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable("commit record outcome", err)
	}
	return n, nil
}

// Stats implements notification.Store.
func (s *PostgresStore) Stats(ctx context.Context, userID string, recent int) (*notification.Stats, error) {
	stats := &notification.Stats{ByKind: map[notification.Kind]int{}, Recent: []*notification.Notification{}}

	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT read)
		FROM notifications WHERE user_id = $1`, userID,
	).Scan(&stats.Total, &stats.Unread); err != nil {
		return nil, unavailable("count stats", err)
	}

	rows, err := s.pool.Query(ctx,
		"SELECT kind, COUNT(*) FROM notifications WHERE user_id = $1 GROUP BY kind", userID)
	if err != nil {
		return nil, unavailable("group stats", err)
	}
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			rows.Close()
			return nil, unavailable("scan group stats", err)
		}
		stats.ByKind[notification.Kind(kind)] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, unavailable("group stats", err)
	}

	if recent > 0 {
		rows, err := s.pool.Query(ctx,
			"SELECT "+pgNotificationColumns+" FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2",
			userID, recent)
		if err != nil {
			return nil, unavailable("recent stats", err)
		}
		if stats.Recent, err = collectNotifications(rows); err != nil {
			return nil, unavailable("scan recent stats", err)
		}
	}
	return stats, nil
}

// UnreadCount implements notification.Store.
func (s *PostgresStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read", userID,
	).Scan(&count); err != nil {
		return 0, unavailable("unread count", err)
	}
	return count, nil
}

// Delete implements notification.Store.
func (s *PostgresStore) Delete(ctx context.Context, id string, requester notification.Requester) error {
	if _, err := s.Get(ctx, id, requester); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM notifications WHERE id = $1", id); err != nil {
		return unavailable("delete notification", err)
	}
	return nil
}

// PurgeExpired implements notification.Store.
func (s *PostgresStore) PurgeExpired(ctx context.Context, retentionDays int) (int, error) {
	cutoff := notification.RetentionCutoff(s.clock(), retentionDays)
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM notifications WHERE created_at < $1 AND priority <> $2",
		cutoff, string(notification.PriorityCritical),
	)
	if err != nil {
		return 0, unavailable("purge notifications", err)
	}
	return int(tag.RowsAffected()), nil
}

// UpsertUser inserts or replaces a directory entry.
func (s *PostgresStore) UpsertUser(ctx context.Context, u *User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.clock()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (
			id, name, email, phone, role, is_active, password_hash,
			notify_email, notify_sms, notify_whatsapp, notify_critical, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone,
			role = EXCLUDED.role, is_active = EXCLUDED.is_active, password_hash = EXCLUDED.password_hash,
			notify_email = EXCLUDED.notify_email, notify_sms = EXCLUDED.notify_sms,
			notify_whatsapp = EXCLUDED.notify_whatsapp, notify_critical = EXCLUDED.notify_critical`,
		u.ID, u.Name, u.Email, u.Phone, normalizeRole(u.Role), u.Active, u.PasswordHash,
		u.NotifyEmail, u.NotifySMS, u.NotifyWhatsApp, u.NotifyCritical, u.CreatedAt,
	)
	if err != nil {
		return unavailable("upsert user", err)
	}
	return nil
}

// Preferences implements notification.UserDirectory.
func (s *PostgresStore) Preferences(ctx context.Context, userID string) (*notification.Preferences, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, role, is_active, password_hash,
			notify_email, notify_sms, notify_whatsapp, notify_critical, created_at
		FROM users WHERE id = $1`, userID,
	).Scan(
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.Active, &u.PasswordHash,
		&u.NotifyEmail, &u.NotifySMS, &u.NotifyWhatsApp, &u.NotifyCritical, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", notification.ErrInvalidUser, userID)
	}
	if err != nil {
		return nil, unavailable("load user", err)
	}
	return u.Preferences(), nil
}

// ActiveUserIDs implements notification.UserDirectory.
func (s *PostgresStore) ActiveUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT id FROM users WHERE is_active ORDER BY id")
	if err != nil {
		return nil, unavailable("list active users", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, unavailable("scan active users", err)
	}
	return ids, nil
}
