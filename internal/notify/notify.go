// Package notify sends the application decision emails. The HTTP function
// (Handler) renders and delivers the email through Resend; controllers
// reach it through a Sender.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/dancelink/platform/internal/app/domain"
	"github.com/dancelink/platform/internal/httputil"
	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/internal/metrics"
)

// Status values accepted by the function.
const (
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Payload is the request body of the notification function.
type Payload struct {
	DancerEmail   string `json:"dancerEmail" validate:"required,email"`
	DancerName    string `json:"dancerName"`
	EventName     string `json:"eventName" validate:"notblank"`
	Status        string `json:"status" validate:"oneof=approved rejected"`
	OrganizerName string `json:"organizerName"`
}

// Validate checks the payload fields.
func (p Payload) Validate() error {
	return domain.Validate(p)
}

// Sender delivers a notification. Callers treat failures as non-fatal.
type Sender interface {
	Send(ctx context.Context, p Payload) error
}

// FunctionClient calls the deployed notification function.
type FunctionClient struct {
	http    *httputil.Client
	metrics *metrics.Metrics
}

// NewFunctionClient creates a client for the function at url. apiKey is
// sent both as apikey and bearer token, as the Supabase functions gateway
// expects. m may be nil.
func NewFunctionClient(url, apiKey string, m *metrics.Metrics) *FunctionClient {
	headers := map[string]string{}
	if apiKey != "" {
		headers["apikey"] = apiKey
		headers["Authorization"] = "Bearer " + apiKey
	}
	return &FunctionClient{
		http: httputil.NewClient(httputil.ClientConfig{
			BaseURL: url,
			Timeout: 15 * time.Second,
			Headers: headers,
		}),
		metrics: m,
	}
}

func (c *FunctionClient) Send(ctx context.Context, p Payload) error {
	err := c.http.PostJSON(ctx, "", p, nil)
	if c.metrics != nil {
		c.metrics.RecordNotification(p.Status, err == nil)
	}
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// LogSender only logs. It stands in when no function URL is configured.
type LogSender struct {
	Logger *logging.Logger
}

func (s LogSender) Send(ctx context.Context, p Payload) error {
	if s.Logger != nil {
		s.Logger.WithContext(ctx).WithFields(map[string]interface{}{
			"status": p.Status,
			"event":  p.EventName,
		}).Info("notification delivery disabled; skipping email")
	}
	return nil
}
