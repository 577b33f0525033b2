package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memStore is a map-backed Store for dispatcher tests.
type memStore struct {
	mu        sync.Mutex
	records   map[string]*Notification
	now       func() time.Time
	insertErr error
	outcomes  int
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{records: map[string]*Notification{}, now: now}
}

func clone(n *Notification) *Notification {
	c := *n
	c.RequestedChannels = append(ChannelSet(nil), n.RequestedChannels...)
	c.EffectiveChannels = append(ChannelSet(nil), n.EffectiveChannels...)
	c.SentChannels = append(ChannelSet(nil), n.SentChannels...)
	return &c
}

func (s *memStore) Insert(_ context.Context, n *Notification) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	if err := ValidateRecord(n); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n.Read, n.Sent, n.SentChannels, n.EffectiveChannels = false, false, nil, nil
	n.ReadAt, n.SentAt = nil, nil
	s.records[n.ID] = clone(n)
	return nil
}

func (s *memStore) get(id string, r Requester) (*Notification, error) {
	n, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !r.CanAccess(n) {
		return nil, ErrForbidden
	}
	return n, nil
}

func (s *memStore) Get(_ context.Context, id string, r Requester) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.get(id, r)
	if err != nil {
		return nil, err
	}
	return clone(n), nil
}

func (s *memStore) List(_ context.Context, f ListFilter) (*Page, error) {
	f.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []*Notification
	for _, n := range s.records {
		if n.UserID != f.UserID {
			continue
		}
		if f.Read != nil && n.Read != *f.Read {
			continue
		}
		if f.Kind != "" && n.Kind != f.Kind {
			continue
		}
		items = append(items, clone(n))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	total := len(items)
	start := min(f.Offset(), total)
	end := min(start+f.PerPage, total)
	return &Page{Items: items[start:end], Total: total, Page: f.Page, PerPage: f.PerPage}, nil
}

func (s *memStore) MarkRead(_ context.Context, id string, r Requester) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.get(id, r)
	if err != nil {
		return nil, err
	}
	n.MarkRead(s.now())
	return clone(n), nil
}

func (s *memStore) MarkAllRead(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.records {
		if n.UserID == userID && n.MarkRead(s.now()) {
			count++
		}
	}
	return count, nil
}

func (s *memStore) RecordOutcome(ctx context.Context, id string, effective, sent ChannelSet) (*Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: record outcome: %v", ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.outcomes++
	n.ApplyOutcome(effective, sent, s.now())
	return clone(n), nil
}

func (s *memStore) Stats(ctx context.Context, userID string, recent int) (*Stats, error) {
	page, _ := s.List(ctx, ListFilter{UserID: userID, PerPage: MaxPerPage})
	st := &Stats{ByKind: map[Kind]int{}}
	for _, n := range page.Items {
		st.Total++
		if !n.Read {
			st.Unread++
		}
		st.ByKind[n.Kind]++
	}
	st.Recent = page.Items[:min(recent, len(page.Items))]
	return st, nil
}

func (s *memStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	st, err := s.Stats(ctx, userID, 0)
	if err != nil {
		return 0, err
	}
	return st.Unread, nil
}

func (s *memStore) Delete(_ context.Context, id string, r Requester) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.get(id, r); err != nil {
		return err
	}
	delete(s.records, id)
	return nil
}

func (s *memStore) PurgeExpired(_ context.Context, retentionDays int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := RetentionCutoff(s.now(), retentionDays)
	count := 0
	for id, n := range s.records {
		if n.Priority != PriorityCritical && n.CreatedAt.Before(cutoff) {
			delete(s.records, id)
			count++
		}
	}
	return count, nil
}

// memUsers is a map-backed UserDirectory.
type memUsers struct {
	users   map[string]*Preferences
	listErr error
}

func (u *memUsers) Preferences(_ context.Context, userID string) (*Preferences, error) {
	p, ok := u.users[userID]
	if !ok {
		return nil, ErrInvalidUser
	}
	c := *p
	return &c, nil
}

func (u *memUsers) ActiveUserIDs(context.Context) ([]string, error) {
	if u.listErr != nil {
		return nil, u.listErr
	}
	var ids []string
	for id, p := range u.users {
		if p.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type sendCall struct {
	Address string
	Content Content
}

// recordingSender records calls and returns err (or blocks until ctx ends
// when block is set).
type recordingSender struct {
	mu    sync.Mutex
	calls []sendCall
	err   error
	block bool
	panic bool
}

func (s *recordingSender) Send(ctx context.Context, address string, content Content) error {
	s.mu.Lock()
	s.calls = append(s.calls, sendCall{Address: address, Content: content})
	s.mu.Unlock()
	if s.panic {
		panic("provider exploded")
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func (s *recordingSender) Calls() []sendCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sendCall(nil), s.calls...)
}

// recordingPusher records pushes.
type recordingPusher struct {
	mu     sync.Mutex
	pushed []*Notification
}

func (p *recordingPusher) Push(_ string, n *Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, n)
}

func (p *recordingPusher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushed)
}

var errProviderDown = errors.New("provider down")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
