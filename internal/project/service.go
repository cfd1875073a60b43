package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"agency-chat/internal/clock"
	"agency-chat/internal/model"
)

var (
	ErrForbidden        = errors.New("not allowed")
	ErrInvalidProject   = errors.New("invalid project")
	ErrInvalidStatus    = errors.New("status can only advance one step")
	ErrStaleStatus      = errors.New("project status changed concurrently")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Types are the categories offered by onboarding.
var Types = []string{"saas", "ecommerce", "mobile", "landing"}

type Store interface {
	Create(ctx context.Context, p *model.Project) (*model.Project, error)
	Get(ctx context.Context, id string) (*model.Project, error)
	List(ctx context.Context, ownerID string) ([]model.Project, error)
	UpdateStatus(ctx context.Context, id string, from, to model.Status, now time.Time) (*model.Project, error)
}

type CreateRequest struct {
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Budget      int64      `json:"budget"`
	Timeline    *time.Time `json:"timeline,omitempty"`
}

type StatusRequest struct {
	Status model.Status `json:"status"`
}

type Service struct {
	repo  Store
	clock clock.Clock
	log   *slog.Logger
}

func NewService(repo Store, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{repo: repo, clock: clk, log: logger}
}

// Create records a project at onboarding completion. The actor becomes the owner.
func (s *Service) Create(ctx context.Context, actor model.Actor, req *CreateRequest) (*model.Project, error) {
	if !actor.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	kind := strings.ToLower(strings.TrimSpace(req.Type))
	if !slices.Contains(Types, kind) {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidProject, req.Type)
	}
	if req.Budget <= 0 {
		return nil, fmt.Errorf("%w: budget must be positive", ErrInvalidProject)
	}

	p, err := s.repo.Create(ctx, &model.Project{
		UserID:      actor.ID,
		Type:        kind,
		Description: strings.TrimSpace(req.Description),
		Status:      model.StatusOnboarding,
		Budget:      req.Budget,
		Timeline:    req.Timeline,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("project created", "project_id", p.ID, "owner", actor.ID, "type", p.Type)
	return p, nil
}

// Visible lists the projects the actor may open, newest first.
func (s *Service) Visible(ctx context.Context, actor model.Actor) ([]model.Project, error) {
	if !actor.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	owner := actor.ID
	if actor.IsAdmin() {
		owner = ""
	}
	return s.repo.List(ctx, owner)
}

// Get returns the project if the actor may see it.
func (s *Service) Get(ctx context.Context, actor model.Actor, id string) (*model.Project, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanSee(*p) {
		// Hide existence from other clients.
		return nil, ErrNotFound
	}
	return p, nil
}

// Advance moves the project's status forward. Only administrators may do so.
func (s *Service) Advance(ctx context.Context, actor model.Actor, id string, next model.Status) (*model.Project, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Status.CanAdvanceTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, p.Status, next)
	}
	updated, err := s.repo.UpdateStatus(ctx, id, p.Status, next, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.log.Info("project status advanced", "project_id", id, "from", p.Status, "to", next, "by", actor.ID)
	return updated, nil
}
