package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"agency-chat/internal/gateway"
	"agency-chat/internal/model"

	"github.com/stretchr/testify/require"
)

var (
	ada   = model.Actor{ID: "u-ada", Username: "ada", Role: model.RoleClient}
	bob   = model.Actor{ID: "u-bob", Username: "bob", Role: model.RoleClient}
	admin = model.Actor{ID: "u-admin", Username: "root", Role: model.RoleAdmin}

	t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	errBackend = errors.New("backend down")
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func msg(id, projectID, sender string, at time.Duration) model.Message {
	return model.Message{ID: id, ProjectID: projectID, SenderID: sender, Kind: model.KindText, Content: id, CreatedAt: t0.Add(at)}
}

type inserted struct {
	ProjectID string
	Kind      model.Kind
	Content   string
}

// fakeGateway records calls and lets tests push feed events.
type fakeGateway struct {
	mu        sync.Mutex
	projects  []model.Project
	messages  map[string][]model.Message
	latest    map[string]time.Time
	count     int
	since     []time.Time
	subs      []*fakeSub
	inserts   []inserted
	updates   map[string]string
	deletes   []string
	uploads   [][]byte
	calls     int
	insertErr error
	listErr   error
}

var _ gateway.Gateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{messages: map[string][]model.Message{}, updates: map[string]string{}}
}

func (f *fakeGateway) call() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeGateway) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeGateway) ListProjects(ctx context.Context) ([]model.Project, error) {
	f.call()
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Project(nil), f.projects...), nil
}

func (f *fakeGateway) ListMessages(ctx context.Context, projectID string) ([]model.Message, error) {
	f.call()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Message(nil), f.messages[projectID]...), nil
}

func (f *fakeGateway) InsertMessage(ctx context.Context, projectID string, kind model.Kind, content string) error {
	f.call()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserts = append(f.inserts, inserted{projectID, kind, content})
	return nil
}

func (f *fakeGateway) Inserts() []inserted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]inserted(nil), f.inserts...)
}

func (f *fakeGateway) UpdateMessage(ctx context.Context, id, content string) error {
	f.call()
	f.mu.Lock()
	f.updates[id] = content
	f.mu.Unlock()
	return nil
}

func (f *fakeGateway) DeleteMessage(ctx context.Context, id string) error {
	f.call()
	f.mu.Lock()
	f.deletes = append(f.deletes, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeGateway) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	f.call()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, data)
	return "http://cdn/media/" + filename, nil
}

func (f *fakeGateway) Subscribe(ctx context.Context, projectID string) (gateway.Subscription, error) {
	f.call()
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSub{gw: f, projectID: projectID, ch: make(chan model.Event, 64)}
	f.subs = append(f.subs, s)
	return s, nil
}

func (f *fakeGateway) CountSince(ctx context.Context, since time.Time) (int, error) {
	f.call()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = append(f.since, since)
	return f.count, nil
}

func (f *fakeGateway) LatestActivity(ctx context.Context) (map[string]time.Time, error) {
	f.call()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]time.Time{}
	for k, v := range f.latest {
		out[k] = v
	}
	return out, nil
}

// Open returns the subscriptions that have not been closed.
func (f *fakeGateway) Open() []*fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeSub
	for _, s := range f.subs {
		if !s.closed {
			out = append(out, s)
		}
	}
	return out
}

// Emit delivers ev to every open subscription whose filter matches.
func (f *fakeGateway) Emit(ev model.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.closed || (s.projectID != "" && s.projectID != ev.Record.ProjectID) {
			continue
		}
		s.ch <- ev
	}
}

type fakeSub struct {
	gw        *fakeGateway
	projectID string
	ch        chan model.Event
	closed    bool
}

func (s *fakeSub) Events() <-chan model.Event { return s.ch }

func (s *fakeSub) Close() error {
	s.gw.mu.Lock()
	defer s.gw.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// fakeDevice hands out scripted streams.
type fakeDevice struct {
	mu      sync.Mutex
	openErr error
	streams []*fakeStream
}

func (d *fakeDevice) Open(ctx context.Context) (AudioStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	s := &fakeStream{}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDevice) last() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[len(d.streams)-1]
}

// fakeStream returns whatever was Captured since the previous Flush.
type fakeStream struct {
	mu       sync.Mutex
	buf      []byte
	paused   bool
	closed   bool
	flushErr error
}

func (s *fakeStream) Capture(b string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused && !s.closed {
		s.buf = append(s.buf, b...)
	}
}

func (s *fakeStream) Pause() error  { s.mu.Lock(); s.paused = true; s.mu.Unlock(); return nil }
func (s *fakeStream) Resume() error { s.mu.Lock(); s.paused = false; s.mu.Unlock(); return nil }

func (s *fakeStream) Flush() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushErr != nil {
		return nil, s.flushErr
	}
	out := s.buf
	s.buf = nil
	return out, nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func eventually(t *testing.T, cond func() bool, msgAndArgs ...any) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msgAndArgs...)
}
