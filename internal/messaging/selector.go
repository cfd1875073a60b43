package messaging

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"agency-chat/internal/model"
)

// ProjectLister is the slice of the gateway the selector reads.
type ProjectLister interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
}

// Conversation is the open-conversation target, normally a *Store.
type Conversation interface {
	Select(ctx context.Context, projectID string) error
}

// ViewMarker records that a conversation was opened, normally a *Tracker.
type ViewMarker interface {
	MarkViewed(ctx context.Context, projectID string) error
}

// Selector lists the conversations the actor can see and decides which one
// is open. A client who owns exactly one project gets it opened without
// asking; admins always choose.
type Selector struct {
	projects ProjectLister
	conv     Conversation
	viewed   ViewMarker
	actor    model.Actor
	log      *slog.Logger

	mu       sync.Mutex
	list     []model.Project
	query    string
	selected string
}

func NewSelector(projects ProjectLister, conv Conversation, viewed ViewMarker, actor model.Actor, logger *slog.Logger) *Selector {
	return &Selector{projects: projects, conv: conv, viewed: viewed, actor: actor, log: logger}
}

// Load fetches the visible projects, newest first.
func (s *Selector) Load(ctx context.Context) error {
	if !s.actor.Authenticated() {
		return ErrNotAuthenticated
	}
	all, err := s.projects.ListProjects(ctx)
	if err != nil {
		return &GatewayError{Op: "list projects", Err: err}
	}
	visible := make([]model.Project, 0, len(all))
	for _, p := range all {
		if s.actor.CanSee(p) {
			visible = append(visible, p)
		}
	}
	slices.SortStableFunc(visible, func(a, b model.Project) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	s.mu.Lock()
	s.list = visible
	auto := !s.actor.IsAdmin() && len(visible) == 1 && s.selected == ""
	s.mu.Unlock()

	if auto {
		return s.Select(ctx, visible[0].ID)
	}
	return nil
}

func (s *Selector) Projects() []model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.list)
}

// SetQuery sets the case-insensitive filter applied by Filtered.
func (s *Selector) SetQuery(q string) {
	s.mu.Lock()
	s.query = q
	s.mu.Unlock()
}

// Filtered returns the projects whose type tag contains the query.
func (s *Selector) Filtered() []model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(s.query))
	if q == "" {
		return slices.Clone(s.list)
	}
	var out []model.Project
	for _, p := range s.list {
		if strings.Contains(strings.ToLower(p.Type), q) {
			out = append(out, p)
		}
	}
	return out
}

// Select opens a conversation and records it as viewed. An empty id
// closes the current one.
func (s *Selector) Select(ctx context.Context, projectID string) error {
	if projectID != "" {
		s.mu.Lock()
		known := slices.ContainsFunc(s.list, func(p model.Project) bool { return p.ID == projectID })
		s.mu.Unlock()
		if !known {
			return ErrUnknownConversation
		}
	}

	s.mu.Lock()
	s.selected = projectID
	s.mu.Unlock()

	if err := s.conv.Select(ctx, projectID); err != nil {
		return err
	}
	if projectID == "" || s.viewed == nil {
		return nil
	}
	if err := s.viewed.MarkViewed(ctx, projectID); err != nil {
		s.log.Warn("failed to store view marker", "project_id", projectID, "error", err)
	}
	return nil
}

// Selected returns the open project, if any.
func (s *Selector) Selected() (model.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.list {
		if p.ID == s.selected {
			return p, true
		}
	}
	return model.Project{}, false
}
