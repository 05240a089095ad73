// Package keystore is a Go client for the user key store HTTP API.
package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrFingerprintMismatch = errors.New("public key does not match its id")
)

// DefaultOrganization is the organization segment the service answers for by default.
const DefaultOrganization = "jenkins"

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode  int
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("keystore: %d %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("keystore: %d %s", e.StatusCode, e.Code)
}

// Is lets callers match on the sentinel errors above.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthenticated:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// PublicKey is a user's SSH public key as served by the key store.
type PublicKey struct {
	// ID is the SHA256 fingerprint.
	ID string
	// AuthorizedKey is the authorized_keys line.
	AuthorizedKey string
	Key           ssh.PublicKey
}

// Client talks to one key store deployment. It is safe for concurrent use.
type Client struct {
	baseURL      string
	organization string
	token        string
	httpClient   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithOrganization sets the organization path segment.
func WithOrganization(org string) Option {
	return func(c *Client) { c.organization = org }
}

// WithToken authenticates every request with a bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		organization: DefaultOrganization,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OwnPublicKey returns the caller's public key, which the service generates on first access.
func (c *Client) OwnPublicKey(ctx context.Context) (*PublicKey, error) {
	return c.getPublicKey(ctx, c.ownPath())
}

// PublicKey returns user's public key. The service only allows this for the user themselves.
func (c *Client) PublicKey(ctx context.Context, user string) (*PublicKey, error) {
	return c.getPublicKey(ctx, c.userPath(user))
}

// DeleteOwnKey removes the caller's keypair. Deleting a missing key succeeds.
func (c *Client) DeleteOwnKey(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, c.ownPath(), nil)
}

// DeleteKey removes user's keypair.
func (c *Client) DeleteKey(ctx context.Context, user string) error {
	return c.do(ctx, http.MethodDelete, c.userPath(user), nil)
}

func (c *Client) ownPath() string {
	return "/organizations/" + url.PathEscape(c.organization) + "/user/publickey"
}

func (c *Client) userPath(user string) string {
	return "/organizations/" + url.PathEscape(c.organization) + "/users/" + url.PathEscape(user) + "/publickey"
}

func (c *Client) getPublicKey(ctx context.Context, path string) (*PublicKey, error) {
	var body struct {
		ID        string `json:"id"`
		PublicKey string `json:"publicKey"`
	}
	if err := c.do(ctx, http.MethodGet, path, &body); err != nil {
		return nil, err
	}

	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(body.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("keystore: parse public key: %w", err)
	}
	// The id is the fingerprint, so a mismatch means a corrupted or substituted key.
	if fp := ssh.FingerprintSHA256(key); fp != body.ID {
		return nil, fmt.Errorf("%w: id %s, key %s", ErrFingerprintMismatch, body.ID, fp)
	}
	return &PublicKey{ID: body.ID, AuthorizedKey: body.PublicKey, Key: key}, nil
}

func (c *Client) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		// A non-JSON body still yields an APIError carrying the status.
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
		if apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("keystore: decode response: %w", err)
	}
	return nil
}
