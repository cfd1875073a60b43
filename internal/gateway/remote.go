package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"agency-chat/internal/model"

	"github.com/gorilla/websocket"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

var ErrNotLoggedIn = errors.New("gateway: not logged in")

type loginResponse struct {
	AccessToken string     `json:"access_token"`
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Role        model.Role `json:"role"`
}

// ProjectRequest is the onboarding payload.
type ProjectRequest struct {
	Type        string     `json:"type"`
	Description string     `json:"description,omitempty"`
	Budget      int64      `json:"budget"`
	Timeline    *time.Time `json:"timeline,omitempty"`
}

// Client talks to cmd/server over HTTP and WebSocket.
type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer

	mu    sync.RWMutex
	token string
	actor model.Actor
}

var _ Gateway = (*Client)(nil)

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gateway: unsupported scheme %q", u.Scheme)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: u, http: httpClient, dialer: websocket.DefaultDialer}, nil
}

// Actor is the identity established by Login.
func (c *Client) Actor() model.Actor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.actor
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	return c.do(ctx, http.MethodPost, "/register", body, nil)
}

func (c *Client) Login(ctx context.Context, username, password string) (model.Actor, error) {
	var res loginResponse
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/login", body, &res); err != nil {
		return model.Actor{}, err
	}
	actor := model.Actor{ID: res.ID, Username: res.Username, Role: res.Role}

	c.mu.Lock()
	c.token = res.AccessToken
	c.actor = actor
	c.mu.Unlock()
	return actor, nil
}

// SetToken reuses a token issued earlier.
func (c *Client) SetToken(token string, actor model.Actor) {
	c.mu.Lock()
	c.token = token
	c.actor = actor
	c.mu.Unlock()
}

func (c *Client) CreateProject(ctx context.Context, req ProjectRequest) (*model.Project, error) {
	var p model.Project
	if err := c.do(ctx, http.MethodPost, "/api/projects", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) AdvanceStatus(ctx context.Context, projectID string, next model.Status) (*model.Project, error) {
	var p model.Project
	body := map[string]model.Status{"status": next}
	if err := c.do(ctx, http.MethodPatch, "/api/projects/"+url.PathEscape(projectID)+"/status", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	err := c.do(ctx, http.MethodGet, "/api/projects", nil, &projects)
	return projects, err
}

func (c *Client) ListMessages(ctx context.Context, projectID string) ([]model.Message, error) {
	var msgs []model.Message
	err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID)+"/messages", nil, &msgs)
	return msgs, err
}

func (c *Client) InsertMessage(ctx context.Context, projectID string, kind model.Kind, content string) error {
	body := map[string]string{"type": string(kind), "content": content}
	return c.do(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(projectID)+"/messages", body, nil)
}

func (c *Client) UpdateMessage(ctx context.Context, id, content string) error {
	body := map[string]string{"content": content}
	return c.do(ctx, http.MethodPatch, "/api/messages/"+url.PathEscape(id), body, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/messages/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/media", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res struct {
		URL string `json:"url"`
	}
	if err := c.send(req, &res); err != nil {
		return "", err
	}
	return res.URL, nil
}

func (c *Client) CountSince(ctx context.Context, since time.Time) (int, error) {
	path := "/api/messages/unread"
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}
	var res struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &res)
	return res.Count, err
}

func (c *Client) LatestActivity(ctx context.Context) (map[string]time.Time, error) {
	latest := map[string]time.Time{}
	err := c.do(ctx, http.MethodGet, "/api/messages/latest", nil, &latest)
	return latest, err
}

// Heartbeat marks the actor online.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/presence", nil, nil)
}

func (c *Client) Online(ctx context.Context) ([]string, error) {
	var ids []string
	err := c.do(ctx, http.MethodGet, "/api/presence", nil, &ids)
	return ids, err
}

func (c *Client) Subscribe(ctx context.Context, projectID string) (Subscription, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		return nil, ErrNotLoggedIn
	}

	u := *c.base
	u.Path += "/ws"
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	q := url.Values{}
	q.Set("token", token)
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	u.RawQuery = q.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
		}
		return nil, err
	}
	return newFeed(conn), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// feed pumps WebSocket frames into a channel until closed.
type feed struct {
	conn   *websocket.Conn
	events chan model.Event
	done   chan struct{}
	once   sync.Once
	exited chan struct{}
}

func newFeed(conn *websocket.Conn) *feed {
	f := &feed{
		conn:   conn,
		events: make(chan model.Event, 64),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go f.readPump()
	return f
}

func (f *feed) Events() <-chan model.Event { return f.events }

func (f *feed) readPump() {
	defer close(f.exited)
	defer close(f.events)
	for {
		_, raw, err := f.conn.ReadMessage()
		if err != nil {
			return
		}
		var ev model.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		select {
		case f.events <- ev:
		case <-f.done:
			return
		}
	}
}

// Close ends the subscription and waits for the pump to stop. Events
// already buffered stay readable until the channel drains.
func (f *feed) Close() error {
	var err error
	f.once.Do(func() {
		close(f.done)
		f.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = f.conn.Close()
	})
	<-f.exited
	return err
}
