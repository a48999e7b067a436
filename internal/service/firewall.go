package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/zinin/homeops-bot/internal/wizard"
)

// ManagedPrefix marks firewall sections created or adopted by the bot.
const ManagedPrefix = "homeops_"

const firewallApply = "uci commit firewall && /etc/init.d/firewall reload"

var (
	sectionNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	anonIndexRe   = regexp.MustCompile(`\[(\d+)\]`)
	nonIdentRe    = regexp.MustCompile(`[^a-z0-9_]`)
)

// Section is one firewall config section from `uci show firewall`.
type Section struct {
	ID      string // e.g. homeops_web or @redirect[0]
	Type    string // redirect, rule, zone, ...
	Options map[string]string
}

func (s Section) Managed() bool {
	return strings.HasPrefix(s.ID, ManagedPrefix)
}

// DisplayName is the section name without the managed prefix.
func (s Section) DisplayName() string {
	if s.Managed() {
		return strings.TrimPrefix(s.ID, ManagedPrefix)
	}
	if n := s.Options["name"]; n != "" {
		return n
	}
	return s.ID
}

// ParseUCI parses `uci show <config>` output into sections, sorted by ID.
func ParseUCI(out string) []Section {
	byID := make(map[string]*Section)
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, "'")

		parts := strings.SplitN(key, ".", 3)
		if len(parts) < 2 {
			continue
		}
		sec, ok := byID[parts[1]]
		if !ok {
			sec = &Section{ID: parts[1], Options: make(map[string]string)}
			byID[parts[1]] = sec
		}
		if len(parts) == 3 {
			sec.Options[parts[2]] = value
		} else {
			sec.Type = value
		}
	}

	sections := make([]Section, 0, len(byID))
	for _, s := range byID {
		sections = append(sections, *s)
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].ID < sections[j].ID })
	return sections
}

// FirewallService manages redirects and traffic rules through uci
type FirewallService struct {
	exec RemoteExecutor
}

func NewFirewallService(exec RemoteExecutor) *FirewallService {
	return &FirewallService{exec: exec}
}

// List returns redirect and rule sections. When managedOnly is set only bot-owned ones are returned.
func (f *FirewallService) List(ctx context.Context, kind string, managedOnly bool) ([]Section, error) {
	out, err := output(ctx, f.exec, "uci show firewall")
	if err != nil {
		return nil, err
	}
	var res []Section
	for _, s := range ParseUCI(out) {
		if kind != "" && s.Type != kind {
			continue
		}
		if kind == "" && s.Type != "redirect" && s.Type != "rule" {
			continue
		}
		if managedOnly && !s.Managed() {
			continue
		}
		res = append(res, s)
	}
	return res, nil
}

// RedirectScript builds the uci commands for a port forward record
// with fields name, ext_port, int_ip, int_port, proto.
func RedirectScript(r wizard.Record) (string, error) {
	name := r.Get("name")
	if !sectionNameRe.MatchString(name) {
		return "", fmt.Errorf("invalid rule name %q", name)
	}
	sec := "firewall." + ManagedPrefix + name
	cmds := []string{
		"uci set " + sec + "=redirect",
		"uci set " + sec + ".name=" + Quote(name),
		"uci set " + sec + ".src='wan'",
		"uci set " + sec + ".src_dport=" + Quote(r.Get("ext_port")),
		"uci set " + sec + ".dest='lan'",
		"uci set " + sec + ".dest_ip=" + Quote(r.Get("int_ip")),
		"uci set " + sec + ".dest_port=" + Quote(r.Get("int_port")),
		"uci set " + sec + ".proto=" + Quote(r.Get("proto")),
		"uci set " + sec + ".target='DNAT'",
		firewallApply,
	}
	return strings.Join(cmds, " && "), nil
}

// RuleScript builds the uci commands for a traffic rule record
// with fields name, src, dest, dest_port (may be empty), target.
func RuleScript(r wizard.Record) (string, error) {
	name := r.Get("name")
	if !sectionNameRe.MatchString(name) {
		return "", fmt.Errorf("invalid rule name %q", name)
	}
	sec := "firewall." + ManagedPrefix + name
	cmds := []string{
		"uci set " + sec + "=rule",
		"uci set " + sec + ".name=" + Quote(name),
		"uci set " + sec + ".src=" + Quote(r.Get("src")),
		"uci set " + sec + ".dest=" + Quote(r.Get("dest")),
	}
	if port := r.Get("dest_port"); port != "" {
		cmds = append(cmds, "uci set "+sec+".dest_port="+Quote(port))
	}
	cmds = append(cmds,
		"uci set "+sec+".target="+Quote(r.Get("target")),
		firewallApply,
	)
	return strings.Join(cmds, " && "), nil
}

func (f *FirewallService) AddRedirect(ctx context.Context, r wizard.Record) error {
	script, err := RedirectScript(r)
	if err != nil {
		return err
	}
	_, err = output(ctx, f.exec, script)
	return err
}

func (f *FirewallService) AddRule(ctx context.Context, r wizard.Record) error {
	script, err := RuleScript(r)
	if err != nil {
		return err
	}
	_, err = output(ctx, f.exec, script)
	return err
}

// Delete removes a bot-managed section.
func (f *FirewallService) Delete(ctx context.Context, id string) error {
	if !strings.HasPrefix(id, ManagedPrefix) || !sectionNameRe.MatchString(id) {
		return fmt.Errorf("section %q is not managed by the bot", id)
	}
	_, err := output(ctx, f.exec, fmt.Sprintf("uci delete firewall.%s && %s", id, firewallApply))
	return err
}

// Adopt renames an unmanaged section so the bot manages it, returning the new ID.
func (f *FirewallService) Adopt(ctx context.Context, id string) (string, error) {
	all, err := f.List(ctx, "", false)
	if err != nil {
		return "", err
	}

	var target *Section
	existing := make(map[string]bool)
	for i := range all {
		existing[all[i].ID] = true
		if all[i].ID == id {
			target = &all[i]
		}
	}
	if target == nil {
		return "", fmt.Errorf("section %q not found", id)
	}
	if target.Managed() {
		return target.ID, nil
	}

	newID := AdoptedID(*target, existing)
	_, err = output(ctx, f.exec, fmt.Sprintf("uci rename firewall.%s=%s && %s", Quote(id), newID, firewallApply))
	if err != nil {
		return "", err
	}
	return newID, nil
}

// AdoptedID derives the managed section ID for s, avoiding IDs in existing.
func AdoptedID(s Section, existing map[string]bool) string {
	base := strings.ToLower(s.Options["name"])
	if base == "" {
		base = strings.ToLower(s.ID)
	}
	base = strings.Trim(nonIdentRe.ReplaceAllString(base, "_"), "_")
	if base == "" {
		base = s.Type
	}

	id := ManagedPrefix + base
	if !existing[id] {
		return id
	}
	idx := "0"
	if m := anonIndexRe.FindStringSubmatch(s.ID); len(m) > 1 {
		idx = m[1]
	}
	id = ManagedPrefix + base + "_" + idx
	for n := 1; existing[id]; n++ {
		id = fmt.Sprintf("%s%s_%s_%d", ManagedPrefix, base, idx, n)
	}
	return id
}
