package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"agency-chat/internal/clock"
	"agency-chat/internal/gateway"
	"agency-chat/internal/markers"
	"agency-chat/internal/model"
)

// Tracker derives unread badges and the notification counter from local
// markers and message timestamps. It watches the unfiltered feed no matter
// which conversation is open.
type Tracker struct {
	gw      gateway.Gateway
	markers markers.Store
	actor   model.Actor
	clock   clock.Clock
	log     *slog.Logger

	mu      sync.Mutex
	latest  map[string]time.Time
	count   int
	counted map[string]struct{}
	sub     gateway.Subscription
	done    chan struct{}

	updates chan struct{}
}

func NewTracker(gw gateway.Gateway, store markers.Store, actor model.Actor, clk clock.Clock, logger *slog.Logger) *Tracker {
	return &Tracker{
		gw:      gw,
		markers: store,
		actor:   actor,
		clock:   clk,
		log:     logger,
		latest:  make(map[string]time.Time),
		counted: make(map[string]struct{}),
		updates: make(chan struct{}, 1),
	}
}

// Updates signals whenever a badge or the counter may have changed.
func (t *Tracker) Updates() <-chan struct{} { return t.updates }

// Start seeds latest activity and the counter, then follows the feed.
// Messages created between the count and the subscription are not counted.
func (t *Tracker) Start(ctx context.Context) error {
	if !t.actor.Authenticated() {
		return ErrNotAuthenticated
	}
	latest, err := t.gw.LatestActivity(ctx)
	if err != nil {
		return &GatewayError{Op: "latest activity", Err: err}
	}
	since, _, err := t.markers.Get(ctx, markers.LastCheckedKey)
	if err != nil {
		return err
	}
	n, err := t.gw.CountSince(ctx, since)
	if err != nil {
		return &GatewayError{Op: "count unread", Err: err}
	}
	sub, err := t.gw.Subscribe(ctx, "")
	if err != nil {
		return &GatewayError{Op: "subscribe", Err: err}
	}

	done := make(chan struct{})
	t.mu.Lock()
	old, oldDone := t.sub, t.done
	t.latest = latest
	if t.latest == nil {
		t.latest = make(map[string]time.Time)
	}
	t.count = n
	t.sub, t.done = sub, done
	t.mu.Unlock()

	if old != nil {
		old.Close()
		<-oldDone
	}
	go t.pump(sub, done)
	t.log.Debug("unread tracker started", "projects", len(latest), "count", n)
	t.notify()
	return nil
}

func (t *Tracker) pump(sub gateway.Subscription, done chan struct{}) {
	defer close(done)
	for ev := range sub.Events() {
		if ev.Type != model.EventInsert {
			continue
		}
		t.observe(ev.Record)
	}
	t.log.Debug("unread feed ended")
}

func (t *Tracker) observe(m model.Message) {
	t.mu.Lock()
	if last, ok := t.latest[m.ProjectID]; !ok || m.CreatedAt.After(last) {
		t.latest[m.ProjectID] = m.CreatedAt
	}
	if !m.SentBy(t.actor) {
		if _, seen := t.counted[m.ID]; !seen {
			t.counted[m.ID] = struct{}{}
			t.count++
		}
	}
	t.mu.Unlock()
	t.notify()
}

// IsUnread reports whether the project has activity after its last-viewed
// marker. A project with messages that was never viewed is unread.
func (t *Tracker) IsUnread(ctx context.Context, projectID string) (bool, error) {
	t.mu.Lock()
	last, ok := t.latest[projectID]
	t.mu.Unlock()
	if !ok {
		return false, nil
	}
	viewed, found, err := t.markers.Get(ctx, markers.ViewedKey(projectID))
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	return last.After(viewed), nil
}

// Count is the number of messages from others since the last check.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func (t *Tracker) MarkViewed(ctx context.Context, projectID string) error {
	if err := t.markers.Set(ctx, markers.ViewedKey(projectID), t.clock.Now()); err != nil {
		return err
	}
	t.notify()
	return nil
}

// MarkChecked zeroes the counter.
func (t *Tracker) MarkChecked(ctx context.Context) error {
	if err := t.markers.Set(ctx, markers.LastCheckedKey, t.clock.Now()); err != nil {
		return err
	}
	t.mu.Lock()
	t.count = 0
	t.mu.Unlock()
	t.notify()
	return nil
}

func (t *Tracker) Close() error {
	t.mu.Lock()
	sub, done := t.sub, t.done
	t.sub, t.done = nil, nil
	t.mu.Unlock()
	if sub == nil {
		return nil
	}
	err := sub.Close()
	<-done
	return err
}

func (t *Tracker) notify() {
	select {
	case t.updates <- struct{}{}:
	default:
	}
}
