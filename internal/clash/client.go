// Package clash is a client for the mihomo (Clash.Meta) external controller used by OpenClash.
package clash

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zinin/homeops-bot/internal/httpapi"
)

const (
	DelayTestURL     = "http://www.gstatic.com/generate_204"
	DelayTimeoutMS   = 3000
	delayConcurrency = 8
)

// Modes the kernel accepts for PATCH /configs.
var Modes = []string{"rule", "global", "direct"}

// hidden groups are built in and never offered for selection
var hidden = map[string]bool{"DIRECT": true, "REJECT": true, "GLOBAL": true}

type Config struct {
	Mode      string `json:"mode"`
	LogLevel  string `json:"log-level"`
	Port      int    `json:"port"`
	MixedPort int    `json:"mixed-port"`
}

type Version struct {
	Version string `json:"version"`
	Meta    bool   `json:"meta"`
	Premium bool   `json:"premium"`
}

type DelaySample struct {
	Delay int `json:"delay"`
}

// Proxy is one entry of GET /proxies: a node or a group.
type Proxy struct {
	Name    string        `json:"name"`
	Type    string        `json:"type"`
	Now     string        `json:"now"`
	All     []string      `json:"all"`
	History []DelaySample `json:"history"`
}

// LastDelay is the most recent recorded delay in ms, or 0.
func (p Proxy) LastDelay() int {
	if len(p.History) == 0 {
		return 0
	}
	return p.History[len(p.History)-1].Delay
}

// Proxies maps names to proxies.
type Proxies map[string]Proxy

// SelectorGroups returns the user-facing Selector groups sorted by name.
func (p Proxies) SelectorGroups() []Proxy {
	var groups []Proxy
	for name, px := range p {
		if px.Type == "Selector" && !hidden[name] {
			if px.Name == "" {
				px.Name = name
			}
			groups = append(groups, px)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups
}

// ConnectionStats summarises GET /connections.
type ConnectionStats struct {
	Count         int
	UploadTotal   int64
	DownloadTotal int64
}

type connectionsResponse struct {
	DownloadTotal int64 `json:"downloadTotal"`
	UploadTotal   int64 `json:"uploadTotal"`
	Connections   []struct {
		Upload   int64 `json:"upload"`
		Download int64 `json:"download"`
	} `json:"connections"`
}

// DelayResult is the outcome of one node test. Delay is 0 when the test failed.
type DelayResult struct {
	Node  string
	Delay int
	Err   error
}

// Client talks to the controller API
type Client struct {
	api *httpapi.Client
}

func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	return &Client{api: httpapi.New(baseURL, httpapi.Bearer(secret), timeout)}
}

func (c *Client) Config(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := c.api.Get(ctx, "/configs", &cfg); err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	return &cfg, nil
}

func (c *Client) SetMode(ctx context.Context, mode string) error {
	mode = strings.ToLower(mode)
	valid := false
	for _, m := range Modes {
		valid = valid || m == mode
	}
	if !valid {
		return fmt.Errorf("unknown mode %q", mode)
	}
	if err := c.api.Do(ctx, http.MethodPatch, "/configs", map[string]string{"mode": mode}, nil); err != nil {
		return fmt.Errorf("set mode: %w", err)
	}
	return nil
}

// ToggleDebug switches the kernel log level between debug and info and returns the new level.
func (c *Client) ToggleDebug(ctx context.Context) (string, error) {
	cfg, err := c.Config(ctx)
	if err != nil {
		return "", err
	}
	level := "debug"
	if cfg.LogLevel == "debug" {
		level = "info"
	}
	if err := c.api.Do(ctx, http.MethodPatch, "/configs", map[string]string{"log-level": level}, nil); err != nil {
		return "", fmt.Errorf("set log level: %w", err)
	}
	return level, nil
}

func (c *Client) Version(ctx context.Context) (*Version, error) {
	var v Version
	if err := c.api.Get(ctx, "/version", &v); err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	return &v, nil
}

func (c *Client) Proxies(ctx context.Context) (Proxies, error) {
	var resp struct {
		Proxies Proxies `json:"proxies"`
	}
	if err := c.api.Get(ctx, "/proxies", &resp); err != nil {
		return nil, fmt.Errorf("get proxies: %w", err)
	}
	return resp.Proxies, nil
}

// Select makes node the active member of group.
func (c *Client) Select(ctx context.Context, group, node string) error {
	endpoint := "/proxies/" + url.PathEscape(group)
	if err := c.api.Do(ctx, http.MethodPut, endpoint, map[string]string{"name": node}, nil); err != nil {
		return fmt.Errorf("select %s in %s: %w", node, group, err)
	}
	return nil
}

// Delay measures one node against DelayTestURL.
func (c *Client) Delay(ctx context.Context, node string) (int, error) {
	q := url.Values{}
	q.Set("timeout", fmt.Sprint(DelayTimeoutMS))
	q.Set("url", DelayTestURL)
	endpoint := "/proxies/" + url.PathEscape(node) + "/delay?" + q.Encode()

	var res DelaySample
	if err := c.api.Get(ctx, endpoint, &res); err != nil {
		return 0, err
	}
	return res.Delay, nil
}

// TestGroup measures every member of group concurrently.
// Individual failures are reported in the results, never as an error.
func (c *Client) TestGroup(ctx context.Context, group Proxy) []DelayResult {
	results := make([]DelayResult, len(group.All))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(delayConcurrency)
	for i, node := range group.All {
		i, node := i, node
		g.Go(func() error {
			d, err := c.Delay(gctx, node)
			results[i] = DelayResult{Node: node, Delay: d, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Client) Connections(ctx context.Context) (*ConnectionStats, error) {
	var resp connectionsResponse
	if err := c.api.Get(ctx, "/connections", &resp); err != nil {
		return nil, fmt.Errorf("get connections: %w", err)
	}
	stats := &ConnectionStats{
		Count:         len(resp.Connections),
		UploadTotal:   resp.UploadTotal,
		DownloadTotal: resp.DownloadTotal,
	}
	if stats.UploadTotal == 0 && stats.DownloadTotal == 0 {
		for _, conn := range resp.Connections {
			stats.UploadTotal += conn.Upload
			stats.DownloadTotal += conn.Download
		}
	}
	return stats, nil
}

func (c *Client) CloseConnections(ctx context.Context) error {
	if err := c.api.Do(ctx, http.MethodDelete, "/connections", nil, nil); err != nil {
		return fmt.Errorf("close connections: %w", err)
	}
	return nil
}

func (c *Client) FlushFakeIP(ctx context.Context) error {
	if err := c.api.Post(ctx, "/cache/fakeip/flush", nil, nil); err != nil {
		return fmt.Errorf("flush fake-ip: %w", err)
	}
	return nil
}

// Reload asks the kernel to re-read its configuration file.
func (c *Client) Reload(ctx context.Context) error {
	body := map[string]string{"path": "", "payload": ""}
	if err := c.api.Do(ctx, http.MethodPut, "/configs?force=true", body, nil); err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	return nil
}

// FormatBytes renders n with binary units, e.g. "1.50 MB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	size := float64(n)
	labels := []string{"KB", "MB", "GB", "TB"}
	i := -1
	for size >= unit && i < len(labels)-1 {
		size /= unit
		i++
	}
	return fmt.Sprintf("%.2f %s", size, labels[i])
}
