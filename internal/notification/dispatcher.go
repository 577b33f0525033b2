package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"smartspray.io/notifier/internal/pkg/logger"
	"smartspray.io/notifier/internal/pkg/worker"
)

// DefaultSendTimeout bounds a single provider call.
const DefaultSendTimeout = 10 * time.Second

// outcomeTimeout bounds the store write that follows delivery.
const outcomeTimeout = 5 * time.Second

// sendGrace lets a sender that honours its context report the timeout
// itself before the collector gives up on it.
const sendGrace = 250 * time.Millisecond

// Submitter runs tasks off the calling goroutine. *worker.Pool satisfies it.
type Submitter interface {
	Submit(ctx context.Context, task worker.Task) error
}

// Dispatcher persists notifications and delivers them over their effective
// channels.
type Dispatcher struct {
	store       Store
	users       UserDirectory
	senders     Senders
	pool        Submitter
	pusher      Pusher
	sendTimeout time.Duration
	now         func() time.Time
	newID       func() string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPool runs provider sends concurrently on pool. Without a pool sends run
// one after another on the caller's goroutine.
func WithPool(pool Submitter) Option {
	return func(d *Dispatcher) { d.pool = pool }
}

// WithPusher enables live push of new notifications.
func WithPusher(p Pusher) Option {
	return func(d *Dispatcher) { d.pusher = p }
}

// WithSendTimeout overrides DefaultSendTimeout.
func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.sendTimeout = timeout
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithIDGenerator overrides notification id generation.
func WithIDGenerator(newID func() string) Option {
	return func(d *Dispatcher) { d.newID = newID }
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(store Store, users UserDirectory, senders Senders, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		users:       users,
		senders:     senders,
		sendTimeout: DefaultSendTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Create validates req, persists it and attempts delivery on every effective
// channel. Provider failures are logged and reflected only in SentChannels;
// validation, unknown-user and store errors are returned.
func (d *Dispatcher) Create(ctx context.Context, req CreateRequest) (*Notification, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	prefs, err := d.users.Preferences(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	n := req.NewRecord(d.newID(), d.now())
	if err := d.store.Insert(ctx, n); err != nil {
		return nil, err
	}

	if len(n.RequestedChannels) == 0 {
		logger.Debug("notification stored without delivery channels",
			zap.String("notification_id", n.ID),
			zap.String("user_id", n.UserID),
		)
		d.push(n)
		return n, nil
	}

	effective, err := Resolve(prefs, n.RequestedChannels, n.Priority)
	if err != nil {
		return nil, err
	}

	// Once the record exists, delivery and its bookkeeping no longer follow
	// the caller: a provider that accepted the message must be recorded.
	detached := context.WithoutCancel(ctx)
	sent := d.deliver(detached, n, prefs, effective)

	recordCtx, cancel := context.WithTimeout(detached, outcomeTimeout)
	defer cancel()
	updated, err := d.store.RecordOutcome(recordCtx, n.ID, effective, sent)
	if err != nil {
		return nil, err
	}

	logger.Info("notification dispatched",
		zap.String("notification_id", updated.ID),
		zap.String("user_id", updated.UserID),
		zap.String("priority", string(updated.Priority)),
		zap.Strings("effective_channels", updated.EffectiveChannels.Strings()),
		zap.Strings("sent_channels", updated.SentChannels.Strings()),
	)

	d.push(updated)
	return updated, nil
}

// SendCriticalAlert forces an alert through in-app, email and SMS regardless
// of the user's channel preferences.
func (d *Dispatcher) SendCriticalAlert(ctx context.Context, userID, title, message string, related *RelatedEntity) (*Notification, error) {
	return d.Create(ctx, CreateRequest{
		UserID:        userID,
		Kind:          KindAlert,
		Title:         title,
		Message:       message,
		RelatedEntity: related,
		Priority:      PriorityCritical,
		Channels:      []Channel{ChannelInApp, ChannelEmail, ChannelSMS},
	})
}

type sendResult struct {
	channel Channel
	err     error
}

// deliver sends n on every effective external channel and returns the
// channels that succeeded. A send that fails, panics, cannot be scheduled or
// outlives the send timeout is excluded. The deadline covers scheduling too.
func (d *Dispatcher) deliver(ctx context.Context, n *Notification, prefs *Preferences, effective ChannelSet) ChannelSet {
	targets := effective.Without(ChannelInApp)
	if len(targets) == 0 {
		return nil
	}

	deadline := time.NewTimer(d.sendTimeout + sendGrace)
	defer deadline.Stop()

	results := make(chan sendResult, len(targets))
	pending := make(map[Channel]bool, len(targets))

	for _, ch := range targets {
		ch := ch
		sender, ok := d.senders[ch]
		if !ok || sender == nil {
			d.logFailure(n, ch, fmt.Errorf("%w: no sender configured", ErrProviderFailure))
			continue
		}
		content := Render(ch, n.Kind, n.Title, n.Message)
		address := prefs.Address(ch)

		task := func(ctx context.Context) {
			results <- sendResult{channel: ch, err: d.sendOne(ctx, sender, address, content)}
		}
		if err := d.submit(ctx, task); err != nil {
			d.logFailure(n, ch, fmt.Errorf("%w: schedule send: %v", ErrProviderFailure, err))
			continue
		}
		pending[ch] = true
	}

	var sent []Channel
	collect := func(r sendResult) {
		delete(pending, r.channel)
		if r.err != nil {
			d.logFailure(n, r.channel, r.err)
			return
		}
		sent = append(sent, r.channel)
	}
	for len(pending) > 0 {
		select {
		case r := <-results:
			collect(r)
		case <-deadline.C:
			// Results that finished alongside the deadline still count.
			for drained := false; !drained && len(pending) > 0; {
				select {
				case r := <-results:
					collect(r)
				default:
					drained = true
				}
			}
			for ch := range pending {
				d.logFailure(n, ch, fmt.Errorf("%w: %v", ErrProviderFailure, context.DeadlineExceeded))
			}
			return NewChannelSet(sent...)
		}
	}
	return NewChannelSet(sent...)
}

func (d *Dispatcher) sendOne(ctx context.Context, sender Sender, address string, content Content) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: sender panic: %v", ErrProviderFailure, r)
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if err := sender.Send(sendCtx, address, content); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	if sendCtx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrProviderFailure, sendCtx.Err())
	}
	return nil
}

func (d *Dispatcher) submit(ctx context.Context, task worker.Task) error {
	if d.pool != nil {
		return d.pool.Submit(ctx, task)
	}
	task(ctx)
	return nil
}

func (d *Dispatcher) push(n *Notification) {
	if d.pusher == nil {
		return
	}
	d.pusher.Push(n.UserID, n)
}

func (d *Dispatcher) logFailure(n *Notification, ch Channel, err error) {
	logger.Warn("notification channel delivery failed",
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("channel", string(ch)),
		zap.Error(err),
	)
}
