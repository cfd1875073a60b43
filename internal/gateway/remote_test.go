package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agency-chat/internal/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeServer mimics the handful of cmd/server routes the client uses.
type fakeServer struct {
	t        *testing.T
	inserted []map[string]string
	uploaded []byte
	feedReq  chan string
	push     chan model.Event
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(loginResponse{AccessToken: "tok", ID: "u1", Username: "ada", Role: model.RoleClient})
	})
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" && r.URL.Query().Get("token") != "tok" {
				http.Error(w, "Missing authentication token", http.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}
	mux.HandleFunc("GET /api/projects/{id}/messages", authed(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]model.Message{{ID: "m1", ProjectID: r.PathValue("id"), Kind: model.KindText, Content: "hi"}})
	}))
	mux.HandleFunc("POST /api/projects/{id}/messages", authed(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		body["project"] = r.PathValue("id")
		f.inserted = append(f.inserted, body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("{}"))
	}))
	mux.HandleFunc("DELETE /api/messages/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "only the sender may change a message", http.StatusForbidden)
	}))
	mux.HandleFunc("POST /api/media", authed(func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		require.NoError(f.t, err)
		f.uploaded, _ = io.ReadAll(file)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"url": "http://cdn/media/u1/x.png"})
	}))
	mux.HandleFunc("GET /api/messages/unread", authed(func(w http.ResponseWriter, r *http.Request) {
		_, err := time.Parse(time.RFC3339Nano, r.URL.Query().Get("since"))
		require.NoError(f.t, err)
		json.NewEncoder(w).Encode(map[string]int{"count": 3})
	}))
	mux.HandleFunc("GET /ws", authed(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		require.NoError(f.t, err)
		defer conn.Close()
		f.feedReq <- r.URL.Query().Get("project_id")
		for ev := range f.push {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}))
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeServer) {
	fs := &fakeServer{t: t, feedReq: make(chan string, 1), push: make(chan model.Event)}
	srv := httptest.NewServer(fs.handler())
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)
	return c, fs
}

func TestClient_RequiresLogin(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.ListMessages(context.Background(), "p1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)

	_, err = c.Subscribe(context.Background(), "p1")
	require.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestClient_RecordsAndMedia(t *testing.T) {
	c, fs := newTestClient(t)
	ctx := context.Background()

	actor, err := c.Login(ctx, "ada", "pw")
	require.NoError(t, err)
	require.Equal(t, "u1", actor.ID)
	require.Equal(t, actor, c.Actor())

	msgs, err := c.ListMessages(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "p1", msgs[0].ProjectID)

	require.NoError(t, c.InsertMessage(ctx, "p1", model.KindVoice, "http://cdn/a.webm"))
	require.Equal(t, []map[string]string{{"type": "voice", "content": "http://cdn/a.webm", "project": "p1"}}, fs.inserted)

	err = c.DeleteMessage(ctx, "m1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.Contains(t, apiErr.Message, "sender")

	url, err := c.Upload(ctx, "x.png", []byte("png"))
	require.NoError(t, err)
	require.Equal(t, "http://cdn/media/u1/x.png", url)
	require.Equal(t, []byte("png"), fs.uploaded)

	n, err := c.CountSince(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestClient_SubscribeDeliversEventsUntilClosed(t *testing.T) {
	c, fs := newTestClient(t)
	ctx := context.Background()
	_, err := c.Login(ctx, "ada", "pw")
	require.NoError(t, err)

	sub, err := c.Subscribe(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "p1", <-fs.feedReq)

	fs.push <- model.Event{Type: model.EventInsert, Record: model.Message{ID: "m9", ProjectID: "p1"}}
	select {
	case ev := <-sub.Events():
		require.Equal(t, model.EventInsert, ev.Type)
		require.Equal(t, "m9", ev.Record.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	require.NoError(t, sub.Close())
	close(fs.push)
	for range sub.Events() {
	}
	require.NoError(t, sub.Close(), "second Close is a no-op")
}
