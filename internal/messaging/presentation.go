package messaging

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"agency-chat/internal/model"
)

// Item is one rendered message.
type Item struct {
	Message model.Message
	Mine    bool
	// Editable and Deletable gate the per-message actions.
	Editable  bool
	Deletable bool
}

// Group is a run of consecutive messages from one sender.
type Group struct {
	SenderID string
	Mine     bool
	Items    []Item
}

// Render orders msgs by creation time and groups consecutive messages by
// sender. msgs is not modified.
func Render(msgs []model.Message, actor model.Actor) []Group {
	sorted := slices.Clone(msgs)
	slices.SortStableFunc(sorted, byCreatedAt)

	var groups []Group
	for _, m := range sorted {
		mine := m.SentBy(actor)
		item := Item{Message: m, Mine: mine, Editable: mine && m.Kind.Editable(), Deletable: mine}
		if n := len(groups); n > 0 && groups[n-1].SenderID == m.SenderID {
			groups[n-1].Items = append(groups[n-1].Items, item)
			continue
		}
		groups = append(groups, Group{SenderID: m.SenderID, Mine: mine, Items: []Item{item}})
	}
	return groups
}

// FormatElapsed renders a duration as m:ss for the recorder.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// Editor applies edits, normally a *Store.
type Editor interface {
	Edit(ctx context.Context, messageID, content string) error
}

// Remover deletes messages, normally a *Store.
type Remover interface {
	Remove(ctx context.Context, messageID string) error
}

// EditSession is an in-place edit of one text message.
type EditSession struct {
	original model.Message
	draft    string
}

// BeginEdit opens an edit on one of the actor's own text messages. The
// draft starts as the current content.
func BeginEdit(msg model.Message, actor model.Actor) (*EditSession, error) {
	if !msg.SentBy(actor) {
		return nil, ErrNotSender
	}
	if !msg.Kind.Editable() {
		return nil, ErrNotEditable
	}
	return &EditSession{original: msg, draft: msg.Content}, nil
}

func (e *EditSession) MessageID() string { return e.original.ID }
func (e *EditSession) SetDraft(s string) { e.draft = s }
func (e *EditSession) Draft() string     { return e.draft }

// Cancel restores the draft to the original content.
func (e *EditSession) Cancel() { e.draft = e.original.Content }

// Commit saves the trimmed draft. It reports whether an edit was sent:
// an unchanged draft issues no call.
func (e *EditSession) Commit(ctx context.Context, ed Editor) (bool, error) {
	content := strings.TrimSpace(e.draft)
	if content == e.original.Content {
		return false, nil
	}
	if content == "" {
		return false, ErrEmptyContent
	}
	if err := ed.Edit(ctx, e.original.ID, content); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes one of the actor's own messages. Other senders'
// messages are refused without a call.
func Delete(ctx context.Context, msg model.Message, actor model.Actor, rm Remover) error {
	if !msg.SentBy(actor) {
		return ErrNotSender
	}
	return rm.Remove(ctx, msg.ID)
}

// MediaState tracks per-message voice playback and the single image
// preview overlay. Each voice message plays and pauses independently.
type MediaState struct {
	mu      sync.Mutex
	playing map[string]bool
	preview string
}

// Toggle flips playback of a voice message and reports whether it is now
// playing.
func (m *MediaState) Toggle(msg model.Message) bool {
	if msg.Kind != model.KindVoice {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playing == nil {
		m.playing = make(map[string]bool)
	}
	if m.playing[msg.ID] {
		delete(m.playing, msg.ID)
		return false
	}
	m.playing[msg.ID] = true
	return true
}

// Ended clears playback when a voice message finishes.
func (m *MediaState) Ended(messageID string) {
	m.mu.Lock()
	delete(m.playing, messageID)
	m.mu.Unlock()
}

func (m *MediaState) Playing(messageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing[messageID]
}

// OpenPreview shows an image message full size.
func (m *MediaState) OpenPreview(msg model.Message) bool {
	if msg.Kind != model.KindImage {
		return false
	}
	m.mu.Lock()
	m.preview = msg.Content
	m.mu.Unlock()
	return true
}

func (m *MediaState) ClosePreview() {
	m.mu.Lock()
	m.preview = ""
	m.mu.Unlock()
}

// Preview returns the URL being previewed, or "".
func (m *MediaState) Preview() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.preview
}
