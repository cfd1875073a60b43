package model

import (
	"strings"
	"time"
)

// ---------------------------------------------
// 👤 Actors
// ---------------------------------------------

type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleClient || r == RoleAdmin
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Authenticated reports whether the actor carries an identity at all.
func (a Actor) Authenticated() bool { return a.ID != "" }

// CanSee reports whether the actor may read the given project's thread.
func (a Actor) CanSee(p Project) bool {
	return a.IsAdmin() || (a.Authenticated() && p.UserID == a.ID)
}

// ---------------------------------------------
// 💬 Messages
// ---------------------------------------------

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVoice Kind = "voice"
)

func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindVoice:
		return true
	}
	return false
}

// Editable reports whether messages of this kind may be changed in place.
// Media messages point at uploaded objects and are only ever removed.
func (k Kind) Editable() bool { return k == KindText }

type Message struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	SenderID  string    `json:"sender_id"`
	Kind      Kind      `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SentBy reports whether the actor authored the message.
func (m Message) SentBy(a Actor) bool {
	return a.Authenticated() && m.SenderID == a.ID
}

// ---------------------------------------------
// 📁 Projects
// ---------------------------------------------

type Status string

const (
	StatusOnboarding Status = "onboarding"
	StatusReview     Status = "review"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

var statusOrder = []Status{StatusOnboarding, StatusReview, StatusInProgress, StatusCompleted}

func (s Status) rank() int {
	for i, st := range statusOrder {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool { return s.rank() >= 0 }

// Next returns the status that follows s, or false when s is terminal.
func (s Status) Next() (Status, bool) {
	r := s.rank()
	if r < 0 || r == len(statusOrder)-1 {
		return "", false
	}
	return statusOrder[r+1], true
}

// CanAdvanceTo reports whether next is exactly one step after s.
func (s Status) CanAdvanceTo(next Status) bool {
	n, ok := s.Next()
	return ok && n == next
}

// Label renders the status the way the dashboard shows it ("in progress").
func (s Status) Label() string {
	return strings.ReplaceAll(string(s), "_", " ")
}

type Project struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Type        string     `json:"type"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Budget      int64      `json:"budget"`
	Timeline    *time.Time `json:"timeline,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ---------------------------------------------
// ⚡ Change feed
// ---------------------------------------------

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event is one change-feed notification for the messages table.
// Delete events carry at least the record's ID and ProjectID.
type Event struct {
	Type   EventType `json:"type"`
	Record Message   `json:"record"`
}
