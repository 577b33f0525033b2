package testutil

import (
	"context"
	"testing"
	"time"

	"smartspray.io/notifier/internal/repository"
)

// NewSQLiteStore opens an in-memory store closed at test end.
func NewSQLiteStore(t *testing.T, opts ...repository.Option) *repository.SQLiteStore {
	t.Helper()
	store, err := repository.NewSQLiteStore(":memory:", opts...)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// UserWriter is implemented by both repository backends.
type UserWriter interface {
	UpsertUser(ctx context.Context, u *repository.User) error
}

// SeedUser inserts an active user with every channel enabled unless mutate
// says otherwise.
func SeedUser(t *testing.T, store UserWriter, id string, mutate ...func(*repository.User)) *repository.User {
	t.Helper()
	u := &repository.User{
		ID:             id,
		Name:           id,
		Email:          id + "@farm.example",
		Phone:          "+15550100",
		Role:           "user",
		Active:         true,
		NotifyEmail:    true,
		NotifySMS:      true,
		NotifyWhatsApp: true,
		NotifyCritical: true,
		CreatedAt:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, m := range mutate {
		m(u)
	}
	if err := store.UpsertUser(context.Background(), u); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return u
}
