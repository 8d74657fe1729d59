// Package client talks to the wall's HTTP API. birthdayctl uses it so
// maintenance goes through the same handlers as the app.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"birthday-wall/backend/internal/models"
	"birthday-wall/backend/internal/reconcile"
	"birthday-wall/backend/internal/service"
)

// APIError is a non-2xx answer from the server
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// Client is an API client. The zero value is not usable; call New.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithToken sends token as the bearer credential on admin calls
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client for the API at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// Messages returns the live collection
func (c *Client) Messages(ctx context.Context) ([]models.Message, error) {
	var msgs []models.Message
	if err := c.do(ctx, http.MethodGet, "/api/messages", nil, &msgs); err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

// CreateResponse is the answer to Create
type CreateResponse struct {
	Message models.Message `json:"message"`
	BlobURL string         `json:"blobUrl"`
}

// Create appends one message
func (c *Client) Create(ctx context.Context, m service.NewMessage) (CreateResponse, error) {
	var out CreateResponse
	err := c.do(ctx, http.MethodPost, "/api/messages", m, &out)
	return out, err
}

// RestoreResponse is the answer to the restore calls
type RestoreResponse struct {
	RestoredCount int    `json:"restoredCount"`
	BlobURL       string `json:"blobUrl"`
}

// DirectRestore replaces the collection with msgs as they are
func (c *Client) DirectRestore(ctx context.Context, msgs []models.Message) (RestoreResponse, error) {
	var out RestoreResponse
	err := c.do(ctx, http.MethodPost, "/api/direct-restore", payload{"messages": nonNil(msgs)}, &out)
	return out, err
}

// BatchRestore rebuilds the collection from an export
func (c *Client) BatchRestore(ctx context.Context, msgs []models.Message) (RestoreResponse, error) {
	var out RestoreResponse
	err := c.do(ctx, http.MethodPost, "/api/batch-restore", payload{"messages": nonNil(msgs)}, &out)
	return out, err
}

// Reset empties the collection
func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/reset-messages", nil, nil)
}

// UploadResponse is the answer to UploadImage
type UploadResponse struct {
	ImageURL string `json:"imageUrl"`
	FileName string `json:"fileName"`
}

// UploadImage stores a data URL picture
func (c *Client) UploadImage(ctx context.Context, dataURL, fileName string) (UploadResponse, error) {
	var out UploadResponse
	err := c.do(ctx, http.MethodPost, "/api/upload-image", payload{"imageData": dataURL, "fileName": fileName}, &out)
	return out, err
}

// ImageStats reports the pictures on the wall
func (c *Client) ImageStats(ctx context.Context) (service.ImageStats, error) {
	var out service.ImageStats
	err := c.do(ctx, http.MethodGet, "/api/images/stats", nil, &out)
	return out, err
}

// ReconcileRequest is sent to the server-side reconciler
type ReconcileRequest struct {
	Sources     []reconcile.Source `json:"sources"`
	IncludeLive bool               `json:"includeLive"`
	Rules       *reconcile.Rules   `json:"rules,omitempty"`
	Apply       bool               `json:"apply"`
}

// ReconcileResponse is the server's reconcile answer
type ReconcileResponse struct {
	Messages []models.Message `json:"messages"`
	Report   reconcile.Report `json:"report"`
	Applied  bool             `json:"applied"`
	BlobURL  string           `json:"blobUrl,omitempty"`
}

// Reconcile runs the reconciler on the server
func (c *Client) Reconcile(ctx context.Context, req ReconcileRequest) (ReconcileResponse, error) {
	var out ReconcileResponse
	err := c.do(ctx, http.MethodPost, "/api/reconcile", req, &out)
	return out, err
}

// LoginResponse carries an admin token
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

// Login exchanges operator credentials for an admin token
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/admin/login", payload{"username": username, "password": password}, &out)
	return out, err
}

type payload map[string]any

func nonNil(msgs []models.Message) []models.Message {
	if msgs == nil {
		return []models.Message{}
	}
	return msgs
}
