package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/tidwall/gjson"

	"github.com/dancelink/platform/internal/logging"
)

// NotifyChannel is the NOTIFY channel written by the messages insert trigger.
const NotifyChannel = "dancelink_changes"

// PostgresListener relays LISTEN/NOTIFY change events into a Hub, giving the
// self-hosted Postgres backend the same feed semantics as Supabase Realtime.
type PostgresListener struct {
	dsn    string
	hub    *Hub
	logger *logging.Logger

	minReconnect time.Duration
	maxReconnect time.Duration
	pingInterval time.Duration
}

// NewPostgresListener creates a listener for dsn publishing into hub.
func NewPostgresListener(dsn string, hub *Hub, logger *logging.Logger) *PostgresListener {
	if logger == nil {
		logger = logging.NewDiscard("realtime")
	}
	return &PostgresListener{
		dsn:          dsn,
		hub:          hub,
		logger:       logger,
		minReconnect: 10 * time.Second,
		maxReconnect: time.Minute,
		pingInterval: 90 * time.Second,
	}
}

// Run listens until ctx is done. pq.Listener reconnects on its own.
func (l *PostgresListener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, l.minReconnect, l.maxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			l.logger.WithError(err).WithField("event", int(ev)).Warn("postgres listener event")
		}
	})
	defer listener.Close()

	if err := listener.Listen(NotifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}
	l.logger.WithField("channel", NotifyChannel).Info("postgres change listener started")

	ticker := time.NewTicker(l.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			l.handle(ctx, n)
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					l.logger.WithError(err).Warn("postgres listener ping failed")
				}
			}()
		}
	}
}

// handle routes one notification. A nil one follows a reconnect; every open
// thread is told to reload since inserts during the outage went unseen.
func (l *PostgresListener) handle(ctx context.Context, n *pq.Notification) {
	if n == nil {
		count := l.hub.Broadcast()
		l.logger.WithContext(ctx).WithField("subscriptions", count).Info("postgres listener reconnected")
		return
	}
	l.dispatch(n.Extra)
}

// dispatch parses {table,type,record{...}} and publishes INSERTs. It reports
// whether the payload was published.
func (l *PostgresListener) dispatch(payload string) bool {
	if !gjson.Valid(payload) {
		l.logger.WithField("payload", payload).Warn("ignoring malformed change notification")
		return false
	}
	doc := gjson.Parse(payload)
	if doc.Get("type").String() != "INSERT" {
		return false
	}
	table := doc.Get("table").String()
	if table == "" {
		return false
	}

	row := make(map[string]string)
	doc.Get("record").ForEach(func(key, value gjson.Result) bool {
		row[key.String()] = value.String()
		return true
	})
	l.hub.Publish(table, row)
	return true
}
