package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dancelink/platform/internal/httputil"
)

// DefaultResendURL is the Resend API base URL.
const DefaultResendURL = "https://api.resend.com"

// Mailer delivers a rendered email and returns the provider's response.
type Mailer interface {
	SendEmail(ctx context.Context, e Email) (json.RawMessage, error)
}

// Resend delivers email through the Resend API.
type Resend struct {
	http *httputil.Client
	from string
}

// NewResend creates a Resend mailer. baseURL defaults to DefaultResendURL.
func NewResend(apiKey, from, baseURL string) *Resend {
	if baseURL == "" {
		baseURL = DefaultResendURL
	}
	return &Resend{
		http: httputil.NewClient(httputil.ClientConfig{
			BaseURL: baseURL,
			Timeout: 10 * time.Second,
			Headers: map[string]string{"Authorization": "Bearer " + apiKey},
		}),
		from: from,
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (r *Resend) SendEmail(ctx context.Context, e Email) (json.RawMessage, error) {
	var out json.RawMessage
	err := r.http.PostJSON(ctx, "/emails", resendRequest{
		From:    r.from,
		To:      []string{e.To},
		Subject: e.Subject,
		HTML:    e.HTML,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("resend: %w", err)
	}
	return out, nil
}
