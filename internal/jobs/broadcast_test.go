package jobs

import (
	"context"
	"testing"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartspray.io/notifier/internal/notification"
	"smartspray.io/notifier/internal/provider"
	"smartspray.io/notifier/internal/repository"
	"smartspray.io/notifier/internal/testutil"
)

func TestBroadcastArgs(t *testing.T) {
	req := notification.BroadcastRequest{
		Title:    "Maintenance tonight",
		Message:  "The platform is offline 22:00-23:00",
		Kind:     notification.KindWarning,
		Channels: []notification.Channel{notification.ChannelInApp, notification.ChannelSMS},
	}
	args := BroadcastArgsFromRequest(req)

	assert.Equal(t, "notification_broadcast", args.Kind())
	assert.Equal(t, []string{"in-app", "sms"}, args.Channels)
	assert.Equal(t, req, args.Request())
	assert.Equal(t, 1, args.InsertOpts().MaxAttempts)
}

func TestBroadcastWorkerWork(t *testing.T) {
	store := testutil.NewSQLiteStore(t)
	testutil.SeedUser(t, store, "amy")
	testutil.SeedUser(t, store, "bob", func(u *repository.User) { u.NotifyEmail = false })
	testutil.SeedUser(t, store, "retired", func(u *repository.User) { u.Active = false })

	email := provider.NewMockSender()
	d := notification.NewDispatcher(store, store, notification.Senders{notification.ChannelEmail: email})
	w := NewBroadcastWorker(d)

	job := &river.Job[BroadcastArgs]{
		JobRow: &rivertype.JobRow{ID: 42},
		Args:   BroadcastArgs{Title: "Frost warning", Message: "Cover seedlings tonight"},
	}
	require.NoError(t, w.Work(context.Background(), job))

	for _, user := range []string{"amy", "bob"} {
		page, err := store.List(context.Background(), notification.ListFilter{UserID: user})
		require.NoError(t, err)
		require.Len(t, page.Items, 1, user)
		assert.Equal(t, notification.PriorityHigh, page.Items[0].Priority)
		assert.Equal(t, notification.KindInfo, page.Items[0].Kind)
	}
	page, err := store.List(context.Background(), notification.ListFilter{UserID: "retired"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	deliveries := email.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "amy@farm.example", deliveries[0].Address)
}

func TestBroadcastWorkerWork_Invalid(t *testing.T) {
	store := testutil.NewSQLiteStore(t)
	d := notification.NewDispatcher(store, store, notification.Senders{})

	err := NewBroadcastWorker(d).Work(context.Background(), &river.Job[BroadcastArgs]{
		JobRow: &rivertype.JobRow{ID: 1},
		Args:   BroadcastArgs{Title: "", Message: "no title"},
	})
	assert.ErrorIs(t, err, notification.ErrValidation)

	var nilWorker *BroadcastWorker
	assert.Error(t, nilWorker.Work(context.Background(), nil))
}
