package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"smartspray.io/notifier/internal/pkg/logger"
)

// BroadcastRequest is the content sent to every active user.
type BroadcastRequest struct {
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Kind     Kind      `json:"kind,omitempty"`
	Channels []Channel `json:"channels,omitempty"`
}

// BroadcastResult summarises a broadcast.
type BroadcastResult struct {
	Created       []*Notification `json:"-"`
	CreatedCount  int             `json:"created"`
	FailedCount   int             `json:"failed"`
	FailedUserIDs []string        `json:"failed_user_ids,omitempty"`
}

func (r *BroadcastRequest) applyDefaults() {
	if r.Kind == "" {
		r.Kind = KindInfo
	}
	if len(r.Channels) == 0 {
		r.Channels = []Channel{ChannelInApp, ChannelEmail}
	}
}

// Validate checks the broadcast content with the same rules Create applies
// to each per-user notification.
func (r BroadcastRequest) Validate() error {
	r.applyDefaults()
	probe := CreateRequest{
		UserID:   "broadcast",
		Kind:     r.Kind,
		Title:    r.Title,
		Message:  r.Message,
		Priority: PriorityHigh,
		Channels: r.Channels,
	}
	probe.Normalize()
	return probe.Validate()
}

// Broadcast creates one high-priority notification per active user.
// Defaults are kind info over in-app and email. A failure for one user is
// logged and counted; it never stops the remaining users.
func (d *Dispatcher) Broadcast(ctx context.Context, req BroadcastRequest) (*BroadcastResult, error) {
	req.applyDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	userIDs, err := d.users.ActiveUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}

	result := &BroadcastResult{}
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		n, err := d.Create(ctx, CreateRequest{
			UserID:   userID,
			Kind:     req.Kind,
			Title:    req.Title,
			Message:  req.Message,
			Priority: PriorityHigh,
			Channels: req.Channels,
		})
		if err != nil {
			result.FailedCount++
			result.FailedUserIDs = append(result.FailedUserIDs, userID)
			logger.Error("broadcast notification failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			continue
		}
		result.Created = append(result.Created, n)
		result.CreatedCount++
	}

	logger.Info("broadcast completed",
		zap.Int("recipients", len(userIDs)),
		zap.Int("created", result.CreatedCount),
		zap.Int("failed", result.FailedCount),
	)
	return result, nil
}
