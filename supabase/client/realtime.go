package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// DefaultHeartbeatInterval matches the Phoenix socket default.
const DefaultHeartbeatInterval = 30 * time.Second

// RealtimeClient handles Supabase Realtime subscriptions over the Phoenix
// channel protocol.
type RealtimeClient struct {
	mu       sync.Mutex
	writeMu  sync.Mutex
	url      string
	conn     *websocket.Conn
	channels map[string]*Channel
	handlers map[string][]EventHandler
	done     chan struct{}
	closed   chan struct{}
	ref      int

	accessToken string
	heartbeat   time.Duration
	dialer      *websocket.Dialer
}

// EventHandler handles realtime events. It runs on the read loop and must
// not block.
type EventHandler func(event *RealtimeEvent)

// RealtimeEvent is a database change delivered on a channel.
type RealtimeEvent struct {
	Topic  string
	Type   string // INSERT, UPDATE, DELETE
	Schema string
	Table  string
	Record gjson.Result
}

// Channel represents a realtime channel.
type Channel struct {
	client  *RealtimeClient
	topic   string
	joined  bool
	joinRef string
}

// Topic returns the Phoenix topic of the channel.
func (c *Channel) Topic() string { return c.topic }

// NewRealtimeClient creates a new realtime client.
func NewRealtimeClient(supabaseURL, apiKey string) *RealtimeClient {
	wsURL := strings.TrimSuffix(supabaseURL, "/")
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	wsURL += "/realtime/v1/websocket?apikey=" + apiKey + "&vsn=1.0.0"

	closed := make(chan struct{})
	close(closed)
	return &RealtimeClient{
		url:       wsURL,
		channels:  make(map[string]*Channel),
		handlers:  make(map[string][]EventHandler),
		done:      make(chan struct{}),
		closed:    closed,
		heartbeat: DefaultHeartbeatInterval,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// SetAccessToken sets the user token sent with channel joins so row-level
// security decides which rows are delivered.
func (r *RealtimeClient) SetAccessToken(token string) {
	r.mu.Lock()
	r.accessToken = token
	r.mu.Unlock()
}

// SetHeartbeat overrides the heartbeat interval. It must be called before
// Connect.
func (r *RealtimeClient) SetHeartbeat(d time.Duration) {
	r.mu.Lock()
	r.heartbeat = d
	r.mu.Unlock()
}

// Connect establishes the WebSocket connection.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}

	conn, _, err := r.dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	r.done = make(chan struct{})
	r.closed = make(chan struct{})

	go r.handleMessages(conn, r.closed)
	go r.runHeartbeat(r.done, r.heartbeat)

	return nil
}

// Done is closed when the connection is lost or closed.
func (r *RealtimeClient) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Disconnect closes the WebSocket connection.
func (r *RealtimeClient) Disconnect() error {
	r.mu.Lock()
	conn := r.conn
	if conn == nil {
		r.mu.Unlock()
		return nil
	}
	close(r.done)
	r.conn = nil
	for topic, ch := range r.channels {
		ch.joined = false
		delete(r.channels, topic)
	}
	r.handlers = make(map[string][]EventHandler)
	r.mu.Unlock()

	r.writeMu.Lock()
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	r.writeMu.Unlock()

	conn.Close()
	if err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return nil
}

// Channel returns or creates a channel. name is the client-side channel
// name; the Phoenix topic is "realtime:<name>".
func (r *RealtimeClient) Channel(name string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	topic := "realtime:" + name
	if ch, ok := r.channels[topic]; ok {
		return ch
	}

	ch := &Channel{
		client: r,
		topic:  topic,
	}
	r.channels[topic] = ch
	return ch
}

// On registers a handler for a change type (INSERT, UPDATE, DELETE).
func (c *Channel) On(changeType string, handler EventHandler) *Channel {
	c.client.mu.Lock()
	defer c.client.mu.Unlock()

	key := c.topic + ":" + strings.ToUpper(changeType)
	c.client.handlers[key] = append(c.client.handlers[key], handler)
	return c
}

func (c *Channel) join(changes []PostgresChangesConfig) error {
	r := c.client
	r.mu.Lock()
	if c.joined {
		r.mu.Unlock()
		return nil
	}
	if r.conn == nil {
		r.mu.Unlock()
		return fmt.Errorf("realtime: not connected")
	}

	r.ref++
	ref := fmt.Sprintf("%d", r.ref)
	c.joinRef = ref

	filters := make([]map[string]string, 0, len(changes))
	for _, cfg := range changes {
		f := map[string]string{
			"event":  cfg.Event,
			"schema": cfg.Schema,
			"table":  cfg.Table,
		}
		if cfg.Filter != "" {
			f["filter"] = cfg.Filter
		}
		filters = append(filters, f)
	}
	payload := map[string]any{
		"config": map[string]any{
			"broadcast":        map[string]any{"self": false},
			"presence":         map[string]any{"key": ""},
			"postgres_changes": filters,
		},
	}
	if r.accessToken != "" {
		payload["access_token"] = r.accessToken
	}
	c.joined = true
	r.mu.Unlock()

	err := r.send(map[string]any{
		"topic":    c.topic,
		"event":    "phx_join",
		"payload":  payload,
		"ref":      ref,
		"join_ref": ref,
	})
	if err != nil {
		r.mu.Lock()
		c.joined = false
		r.mu.Unlock()
	}
	return err
}

// Unsubscribe leaves the channel and drops its handlers.
func (c *Channel) Unsubscribe(ctx context.Context) error {
	r := c.client
	r.mu.Lock()
	if !c.joined {
		r.mu.Unlock()
		return nil
	}
	c.joined = false
	delete(r.channels, c.topic)
	for key := range r.handlers {
		if strings.HasPrefix(key, c.topic+":") {
			delete(r.handlers, key)
		}
	}
	if r.conn == nil {
		r.mu.Unlock()
		return nil
	}
	r.ref++
	ref := fmt.Sprintf("%d", r.ref)
	r.mu.Unlock()

	return r.send(map[string]any{
		"topic":    c.topic,
		"event":    "phx_leave",
		"payload":  map[string]any{},
		"ref":      ref,
		"join_ref": c.joinRef,
	})
}

func (r *RealtimeClient) send(msg map[string]any) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("realtime: not connected")
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %v: %w", msg["event"], err)
	}
	return nil
}

func (r *RealtimeClient) handleMessages(conn *websocket.Conn, closed chan struct{}) {
	defer close(closed)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if !gjson.ValidBytes(message) {
			continue
		}
		r.dispatchEvent(message)
	}
}

func (r *RealtimeClient) dispatchEvent(message []byte) {
	msg := gjson.ParseBytes(message)
	ev := &RealtimeEvent{Topic: msg.Get("topic").String()}

	switch name := msg.Get("event").String(); name {
	case "postgres_changes":
		data := msg.Get("payload.data")
		ev.Type = data.Get("type").String()
		ev.Schema = data.Get("schema").String()
		ev.Table = data.Get("table").String()
		ev.Record = data.Get("record")
	case "INSERT", "UPDATE", "DELETE":
		payload := msg.Get("payload")
		ev.Type = name
		ev.Schema = payload.Get("schema").String()
		ev.Table = payload.Get("table").String()
		ev.Record = payload.Get("record")
	default:
		return
	}

	r.mu.Lock()
	handlers := append([]EventHandler(nil), r.handlers[ev.Topic+":"+ev.Type]...)
	handlers = append(handlers, r.handlers[ev.Topic+":*"]...)
	r.mu.Unlock()

	for _, handler := range handlers {
		handler(ev)
	}
}

func (r *RealtimeClient) runHeartbeat(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.mu.Lock()
			r.ref++
			ref := fmt.Sprintf("%d", r.ref)
			r.mu.Unlock()
			if err := r.send(map[string]any{
				"topic":   "phoenix",
				"event":   "heartbeat",
				"payload": map[string]any{},
				"ref":     ref,
			}); err != nil {
				return
			}
		}
	}
}

// =============================================================================
// Postgres Changes Subscription
// =============================================================================

// PostgresChangesConfig configures postgres changes subscription.
type PostgresChangesConfig struct {
	Event  string // INSERT, UPDATE, DELETE, *
	Schema string
	Table  string
	Filter string // optional, e.g. "application_id=eq.42"
}

// SubscribeToPostgresChanges joins channel name and delivers changes matching
// cfg to handler.
func (r *RealtimeClient) SubscribeToPostgresChanges(ctx context.Context, name string, cfg PostgresChangesConfig, handler EventHandler) (*Channel, error) {
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Event == "" {
		cfg.Event = "*"
	}
	if name == "" {
		name = cfg.Schema + ":" + cfg.Table
		if cfg.Filter != "" {
			name += ":" + cfg.Filter
		}
	}

	ch := r.Channel(name)
	ch.On(cfg.Event, handler)

	if err := ch.join([]PostgresChangesConfig{cfg}); err != nil {
		return nil, err
	}
	return ch, nil
}
