// Package apiclient is the agent's client for the presence HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prudhvinik1/homepresence/internal/api"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/prudhvinik1/homepresence/internal/presence"
)

// Client calls the API as the device stored in its CredentialStore. A 401
// response clears the stored credentials and yields
// presence.ErrUnauthenticated.
type Client struct {
	baseURL string
	http    *http.Client
	creds   *CredentialStore
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func New(baseURL string, creds *CredentialStore, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		creds:   creds,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx response other than 401.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

// Login signs in and stores the credentials. An existing device id is
// reused so the device keeps its push target.
func (c *Client) Login(ctx context.Context, email, password, deviceName string) (*Credentials, error) {
	req := api.LoginRequest{Email: email, Password: password, DeviceName: deviceName, DeviceType: "agent"}
	if prev, err := c.creds.Load(ctx); err == nil {
		req.DeviceID = &prev.DeviceID
	}

	var creds Credentials
	if err := c.do(ctx, http.MethodPost, "/v1/auth/login", "", req, &creds); err != nil {
		return nil, err
	}
	if err := c.creds.Save(ctx, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

func (c *Client) Logout(ctx context.Context) error {
	if err := c.authed(ctx, http.MethodPost, "/v1/auth/logout", nil, nil); err != nil && !errors.Is(err, presence.ErrUnauthenticated) {
		return err
	}
	return c.creds.Clear(ctx)
}

func (c *Client) ListBindings(ctx context.Context) ([]*models.LocationBinding, error) {
	var bindings []*models.LocationBinding
	if err := c.authed(ctx, http.MethodGet, "/v1/locations", nil, &bindings); err != nil {
		return nil, err
	}
	return bindings, nil
}

func (c *Client) PutBinding(ctx context.Context, binding *models.LocationBinding) (*models.LocationBinding, error) {
	var saved models.LocationBinding
	if err := c.authed(ctx, http.MethodPut, "/v1/locations", binding, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

func (c *Client) WriteStatus(ctx context.Context, record *models.StatusRecord) error {
	var saved models.StatusRecord
	if err := c.authed(ctx, http.MethodPut, "/v1/status", record, &saved); err != nil {
		return err
	}
	record.Version = saved.Version
	record.UpdatedAt = saved.UpdatedAt
	return nil
}

func (c *Client) FriendStatuses(ctx context.Context) ([]*models.StatusRecord, error) {
	var records []*models.StatusRecord
	if err := c.authed(ctx, http.MethodGet, "/v1/friends/status", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// RegisterPushToken sets the push target of this device.
func (c *Client) RegisterPushToken(ctx context.Context, token string) error {
	creds, err := c.creds.Load(ctx)
	if err != nil {
		return err
	}
	path := "/v1/devices/" + creds.DeviceID.String() + "/push-token"
	return c.authed(ctx, http.MethodPut, path, api.PushTokenRequest{Token: token}, nil)
}

func (c *Client) authed(ctx context.Context, method, path string, body, out any) error {
	creds, err := c.creds.Load(ctx)
	if err != nil {
		return err
	}
	err = c.do(ctx, method, path, creds.Token, body, out)
	if errors.Is(err, presence.ErrUnauthenticated) {
		_ = c.creds.Clear(ctx)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", presence.ErrUnauthenticated, readError(resp))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Message: readError(resp)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readError(resp *http.Response) string {
	var body api.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}

var (
	_ presence.BindingSource = (*Client)(nil)
	_ presence.StatusWriter  = (*Client)(nil)
)
