package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Auth returns an auth client.
func (c *Client) Auth() *AuthClient {
	return &AuthClient{client: c}
}

// AuthClient handles GoTrue authentication operations.
type AuthClient struct {
	client *Client
}

// AuthResponse is the response from sign-in and sign-up.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// Expiry returns the absolute expiry of the access token.
func (r *AuthResponse) Expiry(now time.Time) time.Time {
	if r.ExpiresAt > 0 {
		return time.Unix(r.ExpiresAt, 0)
	}
	if r.ExpiresIn > 0 {
		return now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return time.Time{}
}

// User represents a Supabase user.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Role             string         `json:"role"`
	EmailConfirmedAt string         `json:"email_confirmed_at"`
	CreatedAt        string         `json:"created_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

// SignUp creates a new user. metadata is stored as user_metadata.
func (a *AuthClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*AuthResponse, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
	}
	if len(metadata) > 0 {
		payload["data"] = metadata
	}

	var raw json.RawMessage
	if err := a.post(ctx, "/auth/v1/signup", "", payload, &raw); err != nil {
		return nil, err
	}

	var out AuthResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	// With email confirmation enabled GoTrue answers with the bare user.
	if out.User == nil && out.AccessToken == "" {
		var user User
		if err := json.Unmarshal(raw, &user); err != nil {
			return nil, fmt.Errorf("unmarshal user: %w", err)
		}
		out.User = &user
	}
	return &out, nil
}

// SignIn signs in a user with email and password.
func (a *AuthClient) SignIn(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	err := a.post(ctx, "/auth/v1/token?grant_type=password", "", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SignOut revokes the session behind accessToken.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	return a.post(ctx, "/auth/v1/logout", accessToken, nil, nil)
}

func (a *AuthClient) post(ctx context.Context, path, accessToken string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.client.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := a.client.do(req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}
