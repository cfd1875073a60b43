package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"agency-chat/internal/model"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotFound         = errors.New("message not found")
	ErrNotSender        = errors.New("only the sender may change a message")
	ErrNotEditable      = errors.New("only text messages can be edited")
	ErrEmptyContent     = errors.New("message content is empty")
	ErrInvalidKind      = errors.New("unknown message type")
)

type Store interface {
	SaveMessage(ctx context.Context, msg *model.Message) (*model.Message, error)
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	GetProjectMessages(ctx context.Context, projectID string) ([]model.Message, error)
	UpdateContent(ctx context.Context, id, content string) (*model.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	CountSince(ctx context.Context, actorID, ownerID string, since time.Time) (int, error)
	LatestByProject(ctx context.Context, ownerID string) (map[string]time.Time, error)
}

// Projects resolves a project the actor is allowed to see.
// *project.Service satisfies it.
type Projects interface {
	Get(ctx context.Context, actor model.Actor, id string) (*model.Project, error)
}

type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

type Service struct {
	repo     Store
	projects Projects
	feed     Publisher
	log      *slog.Logger
}

func NewService(repo Store, projects Projects, feed Publisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, projects: projects, feed: feed, log: logger}
}

func (s *Service) History(ctx context.Context, actor model.Actor, projectID string) ([]model.Message, error) {
	if !actor.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	if _, err := s.projects.Get(ctx, actor, projectID); err != nil {
		return nil, err
	}
	return s.repo.GetProjectMessages(ctx, projectID)
}

func (s *Service) Send(ctx context.Context, actor model.Actor, projectID string, kind model.Kind, content string) (*model.Message, error) {
	if !actor.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	if kind == "" {
		kind = model.KindText
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	p, err := s.projects.Get(ctx, actor, projectID)
	if err != nil {
		return nil, err
	}

	msg, err := s.repo.SaveMessage(ctx, &model.Message{
		ProjectID: projectID,
		SenderID:  actor.ID,
		Kind:      kind,
		Content:   content,
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, p.UserID, model.EventInsert, *msg)
	return msg, nil
}

func (s *Service) Edit(ctx context.Context, actor model.Actor, id, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	msg, p, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !msg.Kind.Editable() {
		return nil, ErrNotEditable
	}

	updated, err := s.repo.UpdateContent(ctx, id, content)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, p.UserID, model.EventUpdate, *updated)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, actor model.Actor, id string) error {
	msg, p, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteMessage(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, p.UserID, model.EventDelete, *msg)
	return nil
}

// UnreadCount counts messages after since that the actor did not send,
// across the projects the actor can see.
func (s *Service) UnreadCount(ctx context.Context, actor model.Actor, since time.Time) (int, error) {
	if !actor.Authenticated() {
		return 0, ErrNotAuthenticated
	}
	return s.repo.CountSince(ctx, actor.ID, ownerScope(actor), since)
}

func (s *Service) Latest(ctx context.Context, actor model.Actor) (map[string]time.Time, error) {
	if !actor.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	return s.repo.LatestByProject(ctx, ownerScope(actor))
}

// owned loads a message the actor sent, along with its project.
// Clients only ever authorize themselves; the sender check lives here too.
func (s *Service) owned(ctx context.Context, actor model.Actor, id string) (*model.Message, *model.Project, error) {
	if !actor.Authenticated() {
		return nil, nil, ErrNotAuthenticated
	}
	msg, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !msg.SentBy(actor) {
		return nil, nil, ErrNotSender
	}
	p, err := s.projects.Get(ctx, actor, msg.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return msg, p, nil
}

// publish never fails the mutation: the row is already committed, and
// subscribers recover missed events by reselecting the conversation.
func (s *Service) publish(ctx context.Context, ownerID string, typ model.EventType, msg model.Message) {
	env := Envelope{OwnerID: ownerID, Event: model.Event{Type: typ, Record: msg}}
	if err := s.feed.Publish(ctx, env); err != nil {
		s.log.Error("feed publish failed", "event", typ, "message_id", msg.ID, "project_id", msg.ProjectID, "error", err)
	}
}

func ownerScope(actor model.Actor) string {
	if actor.IsAdmin() {
		return ""
	}
	return actor.ID
}
