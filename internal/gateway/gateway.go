// Package gateway is the messaging client's view of the backend: record
// queries and mutations, media upload, and change-feed subscriptions.
package gateway

import (
	"context"
	"time"

	"agency-chat/internal/model"
)

// Gateway is everything the messaging core asks of the backend. The
// current actor is implied by the gateway's credentials.
type Gateway interface {
	ListProjects(ctx context.Context) ([]model.Project, error)

	// ListMessages returns the project's messages oldest first.
	ListMessages(ctx context.Context, projectID string) ([]model.Message, error)
	InsertMessage(ctx context.Context, projectID string, kind model.Kind, content string) error
	UpdateMessage(ctx context.Context, id, content string) error
	DeleteMessage(ctx context.Context, id string) error

	// Upload stores data and returns a publicly resolvable URL.
	Upload(ctx context.Context, filename string, data []byte) (string, error)

	// Subscribe opens a change feed. An empty projectID subscribes to every
	// project the actor can see.
	Subscribe(ctx context.Context, projectID string) (Subscription, error)

	// CountSince counts messages created after since by anyone but the actor.
	CountSince(ctx context.Context, since time.Time) (int, error)
	// LatestActivity maps project id to its newest message timestamp.
	LatestActivity(ctx context.Context) (map[string]time.Time, error)
}

// Subscription is a live change feed. Events is closed once the feed ends,
// either through Close or because the connection dropped.
type Subscription interface {
	Events() <-chan model.Event
	Close() error
}
