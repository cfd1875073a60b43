package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const feedPrefix = "feed:messages:"

// FeedChannel is the Redis channel carrying one project's change events.
func FeedChannel(projectID string) string { return feedPrefix + projectID }

// Hub fans change-feed events out to WebSocket clients. Events go through
// Redis so every server instance sees every mutation.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Envelope // From Redis -> Clients
	Register   chan *Client  // New client joins
	Unregister chan *Client  // Client leaves
	done       chan struct{} // Closed when Run returns
	redis      *redis.Client
	log        *slog.Logger
}

func NewHub(redisClient *redis.Client, logger *slog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan Envelope, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
		redis:      redisClient,
		log:        logger,
	}
}

// Run owns h.clients. Nothing else touches the map.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			return

		case client := <-h.Register:
			h.clients[client] = true

		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}

		case env := <-h.broadcast:
			payload, err := json.Marshal(env.Event)
			if err != nil {
				h.log.Error("encode feed event", "error", err)
				continue
			}
			for client := range h.clients {
				if !client.Wants(env) {
					continue
				}
				select {
				case client.Send <- payload:
				default:
					// Too slow to keep up; drop it and let the client reselect.
					close(client.Send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// Attach registers the client. It reports false once the hub has stopped.
func (h *Hub) Attach(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Detach unregisters the client; a no-op once the hub has stopped.
func (h *Hub) Detach(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// Publish sends the envelope to every instance, this one included.
func (h *Hub) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, FeedChannel(env.Event.Record.ProjectID), payload).Err()
}

// SubscribeToRedis listens for events from every instance until ctx ends.
func (h *Hub) SubscribeToRedis(ctx context.Context) {
	pubsub := h.redis.PSubscribe(ctx, feedPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			env, err := decodeEnvelope(msg.Channel, msg.Payload)
			if err != nil {
				h.log.Warn("dropping malformed feed event", "channel", msg.Channel, "error", err)
				continue
			}
			select {
			case h.broadcast <- env:
			case <-ctx.Done():
				return
			}
		}
	}
}

func decodeEnvelope(channel, payload string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Envelope{}, err
	}
	// The channel name is authoritative for routing.
	if id := strings.TrimPrefix(channel, feedPrefix); id != channel && id != "" {
		env.Event.Record.ProjectID = id
	}
	return env, nil
}
