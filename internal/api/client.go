package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/banshee-data/citysense/internal/db"
	"github.com/banshee-data/citysense/internal/envstate"
	"github.com/banshee-data/citysense/internal/events"
	"github.com/banshee-data/citysense/internal/httputil"
)

// Client reads the JSON views of a running node.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient targets the node at baseURL, e.g. "http://citysense.local:8080".
// A nil hc uses http.DefaultClient.
func NewClient(baseURL string, hc httputil.HTTPClient) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid node url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid node url %q: scheme must be http or https", baseURL)
	}
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}, nil
}

func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if err := httputil.DecodeJSON(resp, v); err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return nil
}

// State fetches /api/state.
func (c *Client) State(ctx context.Context) (envstate.Snapshot, error) {
	var snap envstate.Snapshot
	if err := c.get(ctx, "/api/state", &snap); err != nil {
		return envstate.Snapshot{}, err
	}
	env, err := events.ParseEnvironment(snap.Label)
	if err != nil {
		return envstate.Snapshot{}, err
	}
	snap.Environment = env
	return snap, nil
}

// Stats fetches /api/stats.
func (c *Client) Stats(ctx context.Context) (ShockStats, error) {
	var st ShockStats
	err := c.get(ctx, "/api/stats", &st)
	return st, err
}

// Events fetches up to limit of the newest events.
func (c *Client) Events(ctx context.Context, limit int) ([]db.StoredEvent, error) {
	var out []db.StoredEvent
	err := c.get(ctx, "/api/events?limit="+strconv.Itoa(limit), &out)
	return out, err
}
