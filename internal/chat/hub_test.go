package chat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"agency-chat/internal/model"

	"github.com/stretchr/testify/require"
)

func envelope(projectID, ownerID, msgID string) Envelope {
	return Envelope{
		OwnerID: ownerID,
		Event: model.Event{
			Type:   model.EventInsert,
			Record: model.Message{ID: msgID, ProjectID: projectID},
		},
	}
}

func TestClient_Wants(t *testing.T) {
	scoped := &Client{Actor: owner, ProjectID: "p1"}
	require.True(t, scoped.Wants(envelope("p1", owner.ID, "m")))
	require.False(t, scoped.Wants(envelope("p2", owner.ID, "m")))

	all := &Client{Actor: owner}
	require.True(t, all.Wants(envelope("p9", owner.ID, "m")))
	require.False(t, all.Wants(envelope("p9", stranger.ID, "m")))

	adminAll := &Client{Actor: admin}
	require.True(t, adminAll.Wants(envelope("p9", stranger.ID, "m")))
}

func recv(t *testing.T, ch <-chan []byte) model.Event {
	t.Helper()
	select {
	case raw := <-ch:
		var ev model.Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return model.Event{}
	}
}

func TestHub_RoutesByScope(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run(ctx)

	p1 := &Client{Hub: hub, Send: make(chan []byte, 4), Actor: owner, ProjectID: "p1"}
	p2 := &Client{Hub: hub, Send: make(chan []byte, 4), Actor: owner, ProjectID: "p2"}
	require.True(t, hub.Attach(p1))
	require.True(t, hub.Attach(p2))

	hub.broadcast <- envelope("p2", owner.ID, "m1")
	require.Equal(t, "m1", recv(t, p2.Send).Record.ID)

	hub.broadcast <- envelope("p1", owner.ID, "m2")
	require.Equal(t, "m2", recv(t, p1.Send).Record.ID)
	require.Empty(t, p2.Send)

	hub.Detach(p1)
	_, open := <-p1.Send
	require.False(t, open, "detaching closes the send channel")

	cancel()
	<-hub.done
	require.False(t, hub.Attach(&Client{Send: make(chan []byte)}))
	hub.Detach(p2) // must not block after shutdown
}

func TestDecodeEnvelope_ChannelWins(t *testing.T) {
	raw, err := json.Marshal(envelope("spoofed", owner.ID, "m1"))
	require.NoError(t, err)

	env, err := decodeEnvelope(FeedChannel("p1"), string(raw))
	require.NoError(t, err)
	require.Equal(t, "p1", env.Event.Record.ProjectID)

	_, err = decodeEnvelope(FeedChannel("p1"), "{")
	require.Error(t, err)
}
