// Package proxmox implements a thin client for the Proxmox VE HTTP API
// (/api2/json). It covers the operations the provisioning workflow needs:
// ticket login, node binding, VM lifecycle, task status, storage and volume
// queries.
package proxmox

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to one Proxmox VE host and is bound to one of its nodes after
// Connect.
type Client struct {
	host    string
	baseURL string
	http    *http.Client

	ticket string
	csrf   string
	node   string

	taskPollInterval time.Duration
	taskPollAttempts int
}

// Option configures a Client.
type Option func(*Client)

// WithInsecure disables TLS certificate validation.
func WithInsecure() Option {
	return func(c *Client) {
		c.http.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
}

// WithNode binds the client to a named node instead of the first one.
func WithNode(name string) Option {
	return func(c *Client) {
		c.node = name
	}
}

// WithBaseURL overrides the API endpoint, used by tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// NewClient creates a client for the given server name or address.
func NewClient(server string, opts ...Option) *Client {
	c := &Client{
		host:             server,
		baseURL:          fmt.Sprintf("https://%s:8006/api2/json", server),
		http:             &http.Client{Timeout: 30 * time.Second},
		taskPollInterval: time.Second,
		taskPollAttempts: 300,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Host returns the server the client was created for.
func (c *Client) Host() string {
	return c.host
}

// Node returns the node the client is bound to.
func (c *Client) Node() string {
	return c.node
}

// AuthError reports rejected login credentials.
type AuthError struct {
	Host string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s", e.Host)
}

// APIError reports a non-success response from the API.
type APIError struct {
	StatusCode int
	Status     string
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api request %s failed: %s", e.Path, e.Status)
}

// Connect logs in and binds the client to a node. Rejected credentials
// surface as an AuthError so the caller can invalidate its credential cache.
func (c *Client) Connect(ctx context.Context, username, password string) error {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	data, err := c.do(ctx, http.MethodPost, "/access/ticket", form)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return &AuthError{Host: c.host}
		}
		return err
	}

	var auth struct {
		Ticket string `json:"ticket"`
		CSRF   string `json:"CSRFPreventionToken"`
	}
	if err := json.Unmarshal(data, &auth); err != nil {
		return fmt.Errorf("decode ticket response: %w", err)
	}
	c.ticket = auth.Ticket
	c.csrf = auth.CSRF

	return c.bindNode(ctx)
}

// bindNode selects the configured node or the first one in the cluster.
func (c *Client) bindNode(ctx context.Context) error {
	nodes, err := c.Nodes(ctx)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("no nodes configured on host %s", c.host)
	}
	if c.node == "" {
		c.node = nodes[0]
		return nil
	}
	for _, node := range nodes {
		if node == c.node {
			return nil
		}
	}
	return fmt.Errorf("node %s not configured on host %s", c.node, c.host)
}

// Nodes lists the node names of the cluster.
func (c *Client) Nodes(ctx context.Context) ([]string, error) {
	data, err := c.do(ctx, http.MethodGet, "/nodes", nil)
	if err != nil {
		return nil, err
	}
	var entries []struct {
		Node string `json:"node"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode node list: %w", err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Node
	}
	return names, nil
}

// Version returns the Proxmox VE version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	data, err := c.do(ctx, http.MethodGet, "/version", nil)
	if err != nil {
		return "", err
	}
	var v struct {
		Version string `json:"version"`
		Release string `json:"release"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("decode version: %w", err)
	}
	return v.Version, nil
}

// do performs one API round-trip and returns the payload under "data".
func (c *Client) do(ctx context.Context, method, path string, form url.Values) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	var body io.Reader
	if form != nil {
		if method == http.MethodGet {
			endpoint += "?" + form.Encode()
		} else {
			body = strings.NewReader(form.Encode())
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.ticket != "" {
		req.AddCookie(&http.Cookie{Name: "PVEAuthCookie", Value: c.ticket})
	}
	if c.csrf != "" && method != http.MethodGet {
		req.Header.Set("CSRFPreventionToken", c.csrf)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Path: path}
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response %s: %w", path, err)
	}
	return envelope.Data, nil
}

// nodePath builds an API path below the bound node.
func (c *Client) nodePath(parts ...string) string {
	return "/nodes/" + c.node + "/" + strings.Join(parts, "/")
}
