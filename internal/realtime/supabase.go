package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/internal/metrics"
	"github.com/dancelink/platform/supabase/client"
)

// SupabaseFeed subscribes through Supabase Realtime. Each subscription owns
// its socket, so the join carries that caller's access token.
type SupabaseFeed struct {
	url       string
	apiKey    string
	heartbeat time.Duration
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewSupabaseFeed creates a feed for the project at url.
func NewSupabaseFeed(url, apiKey string, logger *logging.Logger, m *metrics.Metrics) *SupabaseFeed {
	if logger == nil {
		logger = logging.NewDiscard("realtime")
	}
	return &SupabaseFeed{
		url:       url,
		apiKey:    apiKey,
		heartbeat: client.DefaultHeartbeatInterval,
		logger:    logger,
		metrics:   m,
	}
}

// Subscribe connects, joins the channel and returns once the join is sent.
func (f *SupabaseFeed) Subscribe(ctx context.Context, req Request) (Subscription, error) {
	rt := client.NewRealtimeClient(f.url, f.apiKey)
	rt.SetHeartbeat(f.heartbeat)
	if req.AccessToken != "" {
		rt.SetAccessToken(req.AccessToken)
	}
	if err := rt.Connect(ctx); err != nil {
		return nil, fmt.Errorf("realtime connect: %w", err)
	}

	sub := &supabaseSubscription{rt: rt, sig: newSignal(), closed: make(chan struct{})}
	ch, err := rt.SubscribeToPostgresChanges(ctx, req.Channel, client.PostgresChangesConfig{
		Event:  "INSERT",
		Schema: req.Schema,
		Table:  req.Table,
		Filter: req.Filter(),
	}, func(*client.RealtimeEvent) {
		sub.sig.notify()
		if f.metrics != nil {
			f.metrics.RecordFeedSignal(req.Table)
		}
	})
	if err != nil {
		_ = rt.Disconnect()
		return nil, fmt.Errorf("realtime subscribe %s: %w", req.Channel, err)
	}
	sub.ch = ch

	go func() {
		select {
		case <-rt.Done():
			select {
			case <-sub.closed:
				return
			default:
			}
			f.logger.WithContext(ctx).WithField("channel", req.Channel).Warn("realtime connection lost")
			_ = sub.Close()
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.closed:
		}
	}()
	return sub, nil
}

type supabaseSubscription struct {
	rt  *client.RealtimeClient
	ch  *client.Channel
	sig *signal

	closeOnce sync.Once
	closed    chan struct{}
	err       error
}

func (s *supabaseSubscription) Signals() <-chan struct{} { return s.sig.ch }

func (s *supabaseSubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.sig.close()
		if s.ch != nil {
			_ = s.ch.Unsubscribe(context.Background())
		}
		s.err = s.rt.Disconnect()
	})
	return s.err
}
