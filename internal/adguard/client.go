// Package adguard is a client for the AdGuard Home control API.
package adguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zinin/homeops-bot/internal/httpapi"
	"github.com/zinin/homeops-bot/internal/service"
)

// Retention intervals in milliseconds, cycled in this order; 0 means disabled.
var Intervals = []int64{86400000, 604800000, 2592000000, 7776000000, 0}

var BlockingModes = []string{"default", "null_ip", "custom_ip", "nxdomain"}

// Feature toggles under /control/<name>/{status,enable,disable}.
const (
	SafeSearch   = "safesearch"
	Parental     = "parental"
	SafeBrowsing = "safebrowsing"
)

// Retention configs under /control/<name>/config.
const (
	QueryLog = "querylog"
	Stats    = "stats"
)

// LeasesModeAPI disables the lease file fallback over SSH.
const LeasesModeAPI = "api"

var leaseFiles = []string{
	"/var/lib/AdGuardHome/dhcp.leases",
	"/var/lib/adguardhome/dhcp.leases",
	"/tmp/AdGuardHome/dhcp.leases",
}

const restartScript = "/etc/init.d/AdGuardHome restart || /etc/init.d/adguardhome restart"

type Status struct {
	ProtectionEnabled bool   `json:"protection_enabled"`
	Running           bool   `json:"running"`
	Version           string `json:"version"`
}

type StatsSummary struct {
	Queries        int     `json:"num_dns_queries"`
	Blocked        int     `json:"num_blocked_filtering"`
	AvgProcessingS float64 `json:"avg_processing_time"`
}

type DNSInfo struct {
	Upstream     []string `json:"upstream_dns"`
	Bootstrap    []string `json:"bootstrap_dns"`
	DNSSEC       bool     `json:"dnssec_enabled"`
	DisableIPv6  bool     `json:"disable_ipv6"`
	RateLimit    int      `json:"ratelimit"`
	CacheSize    int      `json:"cache_size"`
	BlockingMode string   `json:"blocking_mode"`
}

type Retention struct {
	Enabled  bool  `json:"enabled"`
	Interval int64 `json:"interval"`
}

type Filter struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Enabled    bool   `json:"enabled"`
	RulesCount int    `json:"rules_count"`
}

type Filtering struct {
	Enabled   bool     `json:"enabled"`
	Filters   []Filter `json:"filters"`
	UserRules []string `json:"user_rules"`
}

type Lease struct {
	MAC      string `json:"mac"`
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
	Expires  string `json:"expires,omitempty"`
}

type DHCPv4 struct {
	GatewayIP     string `json:"gateway_ip"`
	SubnetMask    string `json:"subnet_mask"`
	RangeStart    string `json:"range_start"`
	RangeEnd      string `json:"range_end"`
	LeaseDuration int    `json:"lease_duration"`
}

type DHCPStatus struct {
	Enabled       bool    `json:"enabled"`
	InterfaceName string  `json:"interface_name"`
	V4            *DHCPv4 `json:"v4,omitempty"`
	Leases        []Lease `json:"leases"`
	StaticLeases  []Lease `json:"static_leases"`
}

// Options configures a Client.
type Options struct {
	URL        string
	User       string
	Password   string
	Token      string
	Timeout    time.Duration
	LeasesMode string
	// Router runs the lease file fallback and restarts; may be nil.
	Router service.RemoteExecutor
}

// Client talks to AdGuard Home
type Client struct {
	api        *httpapi.Client
	router     service.RemoteExecutor
	leasesMode string
}

func NewClient(opts Options) *Client {
	auth := httpapi.Basic(opts.User, opts.Password)
	if opts.Token != "" {
		auth = httpapi.Bearer(opts.Token)
	}
	return &Client{
		api:        httpapi.New(opts.URL, auth, opts.Timeout),
		router:     opts.Router,
		leasesMode: opts.LeasesMode,
	}
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.api.Get(ctx, "/control/status", &st); err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	return &st, nil
}

func (c *Client) SetProtection(ctx context.Context, enabled bool) error {
	if err := c.api.Post(ctx, "/control/protection", map[string]bool{"enabled": enabled}, nil); err != nil {
		return fmt.Errorf("set protection: %w", err)
	}
	return nil
}

func (c *Client) Stats(ctx context.Context) (*StatsSummary, error) {
	var st StatsSummary
	if err := c.api.Get(ctx, "/control/stats", &st); err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return &st, nil
}

// Feature reports whether safesearch, parental or safebrowsing is on.
func (c *Client) Feature(ctx context.Context, name string) (bool, error) {
	var st struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.api.Get(ctx, "/control/"+name+"/status", &st); err != nil {
		return false, fmt.Errorf("get %s: %w", name, err)
	}
	return st.Enabled, nil
}

func (c *Client) SetFeature(ctx context.Context, name string, enabled bool) error {
	action := "disable"
	if enabled {
		action = "enable"
	}
	if err := c.api.Post(ctx, "/control/"+name+"/"+action, nil, nil); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

func (c *Client) Retention(ctx context.Context, name string) (*Retention, error) {
	var r Retention
	if err := c.api.Get(ctx, "/control/"+name+"/config", &r); err != nil {
		return nil, fmt.Errorf("get %s config: %w", name, err)
	}
	return &r, nil
}

// NextInterval returns the interval following r in Intervals. A disabled config counts as 0.
func NextInterval(r Retention) int64 {
	cur := r.Interval
	if !r.Enabled {
		cur = 0
	}
	for i, v := range Intervals {
		if v == cur {
			return Intervals[(i+1)%len(Intervals)]
		}
	}
	return Intervals[0]
}

// CycleRetention advances the retention of querylog or stats and returns the new setting.
func (c *Client) CycleRetention(ctx context.Context, name string) (*Retention, error) {
	cur, err := c.Retention(ctx, name)
	if err != nil {
		return nil, err
	}
	next := NextInterval(*cur)
	r := &Retention{Enabled: next > 0, Interval: next}
	if err := c.api.Post(ctx, "/control/"+name+"/config", r, nil); err != nil {
		return nil, fmt.Errorf("set %s config: %w", name, err)
	}
	return r, nil
}

// IntervalLabel renders an interval for display.
func IntervalLabel(ms int64) string {
	switch ms {
	case 0:
		return "off"
	case 86400000:
		return "1 day"
	case 604800000:
		return "7 days"
	case 2592000000:
		return "30 days"
	case 7776000000:
		return "90 days"
	}
	return fmt.Sprintf("%d h", ms/3600000)
}

func (c *Client) DNSInfo(ctx context.Context) (*DNSInfo, error) {
	var info DNSInfo
	if err := c.api.Get(ctx, "/control/dns_info", &info); err != nil {
		return nil, fmt.Errorf("get dns info: %w", err)
	}
	return &info, nil
}

// SetDNS applies a partial DNS configuration; only the given keys change.
func (c *Client) SetDNS(ctx context.Context, changes map[string]any) error {
	if err := c.api.Post(ctx, "/control/dns_config", changes, nil); err != nil {
		return fmt.Errorf("set dns config: %w", err)
	}
	return nil
}

// NextBlockingMode returns the mode following cur in BlockingModes.
func NextBlockingMode(cur string) string {
	for i, m := range BlockingModes {
		if m == cur {
			return BlockingModes[(i+1)%len(BlockingModes)]
		}
	}
	return BlockingModes[0]
}

func (c *Client) Filtering(ctx context.Context) (*Filtering, error) {
	var f Filtering
	if err := c.api.Get(ctx, "/control/filtering/status", &f); err != nil {
		return nil, fmt.Errorf("get filtering: %w", err)
	}
	return &f, nil
}

func (c *Client) AddFilter(ctx context.Context, name, url string) error {
	body := map[string]any{"name": name, "url": url, "whitelist": false}
	if err := c.api.Post(ctx, "/control/filtering/add_url", body, nil); err != nil {
		return fmt.Errorf("add filter: %w", err)
	}
	return nil
}

func (c *Client) RemoveFilter(ctx context.Context, url string) error {
	body := map[string]any{"url": url, "whitelist": false}
	if err := c.api.Post(ctx, "/control/filtering/remove_url", body, nil); err != nil {
		return fmt.Errorf("remove filter: %w", err)
	}
	return nil
}

// ToggleRule removes rule from the user rules when present, otherwise appends it.
// It reports whether the rule was added.
func (c *Client) ToggleRule(ctx context.Context, rule string) (bool, error) {
	f, err := c.Filtering(ctx)
	if err != nil {
		return false, err
	}
	rules, added := ToggleRule(f.UserRules, rule)
	if err := c.api.Post(ctx, "/control/filtering/set_rules", map[string][]string{"rules": rules}, nil); err != nil {
		return false, fmt.Errorf("set rules: %w", err)
	}
	return added, nil
}

// ToggleRule returns rules without rule, or with rule appended when it was absent.
func ToggleRule(rules []string, rule string) ([]string, bool) {
	out := make([]string, 0, len(rules)+1)
	removed := false
	for _, r := range rules {
		if r == rule {
			removed = true
			continue
		}
		out = append(out, r)
	}
	if removed {
		return out, false
	}
	return append(out, rule), true
}

func (c *Client) DHCP(ctx context.Context) (*DHCPStatus, error) {
	var st DHCPStatus
	if err := c.api.Get(ctx, "/control/dhcp/status", &st); err != nil {
		return nil, fmt.Errorf("get dhcp status: %w", err)
	}
	return &st, nil
}

// SetDHCPEnabled flips the DHCP server while keeping the rest of its configuration.
func (c *Client) SetDHCPEnabled(ctx context.Context, enabled bool) error {
	st, err := c.DHCP(ctx)
	if err != nil {
		return err
	}
	body := map[string]any{"enabled": enabled, "interface_name": st.InterfaceName}
	if st.V4 != nil {
		body["v4"] = st.V4
	}
	if err := c.api.Post(ctx, "/control/dhcp/set_config", body, nil); err != nil {
		return fmt.Errorf("set dhcp config: %w", err)
	}
	return nil
}

func (c *Client) AddStaticLease(ctx context.Context, l Lease) error {
	l.Expires = ""
	if err := c.api.Post(ctx, "/control/dhcp/add_static_lease", l, nil); err != nil {
		return fmt.Errorf("add static lease: %w", err)
	}
	return nil
}

// Leases returns dynamic and static leases from the API. When the API has none
// and the leases mode allows it, the lease file is read from the router instead.
func (c *Client) Leases(ctx context.Context) ([]Lease, error) {
	st, apiErr := c.DHCP(ctx)
	if apiErr == nil {
		leases := append(append([]Lease(nil), st.StaticLeases...), st.Leases...)
		if len(leases) > 0 {
			return leases, nil
		}
	}
	if c.leasesMode == LeasesModeAPI || c.router == nil {
		if apiErr != nil {
			return nil, apiErr
		}
		return nil, nil
	}

	for _, path := range leaseFiles {
		res, err := c.router.Run(ctx, "cat "+path+" 2>/dev/null")
		if err != nil {
			return nil, errors.Join(apiErr, err)
		}
		if leases := ParseLeaseFile(res.Output); len(leases) > 0 {
			return leases, nil
		}
	}
	return nil, apiErr
}

// ParseLeaseFile reads "expiry mac ip hostname" or "ip mac hostname" lines.
func ParseLeaseFile(out string) []Lease {
	var leases []Lease
	for _, line := range strings.Split(out, "\n") {
		f := strings.Fields(line)
		switch {
		case len(f) >= 4:
			leases = append(leases, Lease{Expires: f[0], MAC: f[1], IP: f[2], Hostname: f[3]})
		case len(f) == 3:
			leases = append(leases, Lease{IP: f[0], MAC: f[1], Hostname: f[2]})
		}
	}
	return leases
}

// Restart restarts the AdGuard Home service on the router.
func (c *Client) Restart(ctx context.Context) error {
	if c.router == nil {
		return errors.New("no router connection configured")
	}
	res, err := c.router.Run(ctx, restartScript)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &service.CommandError{ExitCode: res.ExitCode, Output: res.Output}
	}
	return nil
}
