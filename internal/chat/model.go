package chat

import "agency-chat/internal/model"

// ---------------------------------------------
// 🗄️ API Models
// ---------------------------------------------

// SendRequest is the JSON the frontend POSTs to create a message.
// It carries no ID, sender or timestamp (we figure those out).
type SendRequest struct {
	Kind    model.Kind `json:"type"`
	Content string     `json:"content"`
}

type EditRequest struct {
	Content string `json:"content"`
}

type CountResponse struct {
	Count int `json:"count"`
}

// ---------------------------------------------
// ⚡ Internal Hub Models
// ---------------------------------------------

// Envelope is what travels over Redis between instances. OwnerID lets the
// Hub route events to clients watching every project they can see without
// a database lookup per event.
type Envelope struct {
	OwnerID string      `json:"owner_id"`
	Event   model.Event `json:"event"`
}
