// Package messaging is the client side of project chat: the live message
// list for the open conversation, the composer with its voice recorder,
// conversation selection, the rendered message stream and unread badges.
// Everything remote goes through a gateway.Gateway.
package messaging

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"agency-chat/internal/config"
	"agency-chat/internal/gateway"
	"agency-chat/internal/model"
)

// MaxUploadBytes bounds image and voice attachments.
const MaxUploadBytes = config.MaxUploadBytes

// Store holds the messages of the one conversation that is open and keeps
// them in step with the change feed. Inserts only ever arrive through the
// feed: Append persists and waits for the echo.
type Store struct {
	gw    gateway.Gateway
	actor model.Actor
	log   *slog.Logger

	selectMu sync.Mutex // serializes Select

	mu        sync.Mutex
	projectID string
	messages  []model.Message
	deleted   map[string]struct{}
	gen       uint64
	sub       gateway.Subscription
	pumpDone  chan struct{}

	updates chan struct{}
}

func NewStore(gw gateway.Gateway, actor model.Actor, logger *slog.Logger) *Store {
	return &Store{
		gw:      gw,
		actor:   actor,
		log:     logger,
		deleted: make(map[string]struct{}),
		updates: make(chan struct{}, 1),
	}
}

// Updates signals after every change to the list. Signals coalesce; read
// Messages for the current state.
func (s *Store) Updates() <-chan struct{} { return s.updates }

func (s *Store) ProjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectID
}

// Messages returns a copy of the list in display order.
func (s *Store) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Select switches the open conversation. The previous feed is closed
// before anything else happens; an empty projectID leaves the store empty
// and unsubscribed.
//
// The new feed is opened before the bulk fetch so nothing published in
// between is lost; events that overlap the fetch merge idempotently.
// If either call fails the conversation stays selected but unsubscribed,
// and selecting it again is the way to recover.
func (s *Store) Select(ctx context.Context, projectID string) error {
	s.selectMu.Lock()
	defer s.selectMu.Unlock()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	old, oldDone := s.sub, s.pumpDone
	s.sub, s.pumpDone = nil, nil
	s.projectID = projectID
	s.messages = nil
	s.deleted = make(map[string]struct{})
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			s.log.Debug("closing feed", "error", err)
		}
		<-oldDone
	}
	s.notify()

	if projectID == "" {
		return nil
	}

	sub, err := s.gw.Subscribe(ctx, projectID)
	if err != nil {
		return &GatewayError{Op: "subscribe", Err: err}
	}
	msgs, err := s.gw.ListMessages(ctx, projectID)
	if err != nil {
		sub.Close()
		return &GatewayError{Op: "fetch messages", Err: err}
	}
	slices.SortStableFunc(msgs, byCreatedAt)

	done := make(chan struct{})
	s.mu.Lock()
	s.messages = msgs
	s.sub, s.pumpDone = sub, done
	s.mu.Unlock()
	s.notify()

	go s.pump(gen, projectID, sub, done)
	return nil
}

// Close drops the subscription, e.g. when the chat surface goes away.
func (s *Store) Close() error {
	return s.Select(context.Background(), "")
}

func (s *Store) pump(gen uint64, projectID string, sub gateway.Subscription, done chan struct{}) {
	defer close(done)
	for ev := range sub.Events() {
		s.mu.Lock()
		if s.gen != gen {
			// Superseded; drain without applying.
			s.mu.Unlock()
			continue
		}
		changed := s.apply(ev)
		s.mu.Unlock()
		if changed {
			s.notify()
		}
	}

	s.mu.Lock()
	current := s.gen == gen
	s.mu.Unlock()
	if current {
		s.log.Warn("message feed ended; reselect the conversation to resume", "project_id", projectID)
	}
}

// apply merges one feed event. Every branch is idempotent: a repeated
// insert, update or delete changes nothing. Deleted ids are remembered for
// the life of the selection so a late duplicate insert cannot resurrect
// a removed message. Callers hold s.mu.
func (s *Store) apply(ev model.Event) bool {
	rec := ev.Record
	if rec.ProjectID != "" && rec.ProjectID != s.projectID {
		return false
	}
	i := s.indexOf(rec.ID)

	switch ev.Type {
	case model.EventInsert:
		if i >= 0 {
			return false
		}
		if _, gone := s.deleted[rec.ID]; gone {
			return false
		}
		// Sorted insert: equal timestamps keep arrival order.
		at := len(s.messages)
		for at > 0 && s.messages[at-1].CreatedAt.After(rec.CreatedAt) {
			at--
		}
		s.messages = slices.Insert(s.messages, at, rec)
		return true

	case model.EventUpdate:
		if i < 0 || s.messages[i] == rec {
			return false
		}
		s.messages[i] = rec
		return true

	case model.EventDelete:
		s.deleted[rec.ID] = struct{}{}
		if i < 0 {
			return false
		}
		s.messages = slices.Delete(s.messages, i, i+1)
		return true
	}
	return false
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.messages, func(m model.Message) bool { return m.ID == id })
}

func (s *Store) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// Append persists a new message in the open conversation.
func (s *Store) Append(ctx context.Context, content string, kind model.Kind) error {
	if !s.actor.Authenticated() {
		return ErrNotAuthenticated
	}
	projectID := s.ProjectID()
	if projectID == "" {
		return ErrNoConversation
	}
	if !kind.Valid() {
		return ErrInvalidKind
	}
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if err := s.gw.InsertMessage(ctx, projectID, kind, content); err != nil {
		return &GatewayError{Op: "send message", Err: err}
	}
	return nil
}

// Edit replaces the text of one of the actor's own text messages.
func (s *Store) Edit(ctx context.Context, messageID, content string) error {
	msg, err := s.own(messageID)
	if err != nil {
		return err
	}
	if !msg.Kind.Editable() {
		return ErrNotEditable
	}
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if err := s.gw.UpdateMessage(ctx, messageID, content); err != nil {
		return &GatewayError{Op: "edit message", Err: err}
	}
	return nil
}

// Remove deletes one of the actor's own messages.
func (s *Store) Remove(ctx context.Context, messageID string) error {
	if _, err := s.own(messageID); err != nil {
		return err
	}
	if err := s.gw.DeleteMessage(ctx, messageID); err != nil {
		return &GatewayError{Op: "delete message", Err: err}
	}
	return nil
}

func (s *Store) own(messageID string) (model.Message, error) {
	if !s.actor.Authenticated() {
		return model.Message{}, ErrNotAuthenticated
	}
	s.mu.Lock()
	i := s.indexOf(messageID)
	var msg model.Message
	if i >= 0 {
		msg = s.messages[i]
	}
	s.mu.Unlock()

	if i < 0 {
		return model.Message{}, ErrUnknownMessage
	}
	if !msg.SentBy(s.actor) {
		return model.Message{}, ErrNotSender
	}
	return msg, nil
}

// UploadMedia stores an attachment and returns its public URL. Oversized
// payloads are refused before any network call.
func (s *Store) UploadMedia(ctx context.Context, filename string, data []byte) (string, error) {
	if !s.actor.Authenticated() {
		return "", ErrNotAuthenticated
	}
	if int64(len(data)) > MaxUploadBytes {
		return "", ErrTooLarge
	}
	url, err := s.gw.Upload(ctx, filename, data)
	if err != nil {
		return "", &GatewayError{Op: "upload media", Err: err}
	}
	return url, nil
}

func byCreatedAt(a, b model.Message) int {
	return a.CreatedAt.Compare(b.CreatedAt)
}
