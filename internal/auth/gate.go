// Package auth decides who may talk to the bot and which features they may use.
//
// The administrator is fixed by configuration and implicitly holds every feature.
// Everyone else is admitted only while the permission store lists at least one
// feature for them. The store is read on every check so that a grant or revoke
// takes effect on the very next event.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Known feature tags.
const (
	FeatureAI    = "ai"
	FeatureWrt   = "wrt"
	FeatureClash = "clash"
	FeatureMail  = "mail"
)

// Features lists every feature tag that can be granted.
var Features = []string{FeatureAI, FeatureWrt, FeatureClash, FeatureMail}

// ErrNotAdmin is returned when a non-administrator attempts to change permissions.
var ErrNotAdmin = errors.New("caller is not the administrator")

// ErrUnknownFeature is returned for feature tags outside Features.
var ErrUnknownFeature = errors.New("unknown feature")

type Decision int

const (
	Deny Decision = iota
	Admit
)

func (d Decision) String() string {
	if d == Admit {
		return "admit"
	}
	return "deny"
}

// GrantResult reports whether Grant changed anything.
type GrantResult int

const (
	Granted GrantResult = iota
	AlreadyHeld
)

// RevokeResult reports whether Revoke changed anything.
type RevokeResult int

const (
	Revoked RevokeResult = iota
	NotHeld
)

// Gate is the authorization gate in front of every inbound event.
type Gate struct {
	adminID int64
	store   Store
}

func NewGate(adminID int64, store Store) *Gate {
	return &Gate{adminID: adminID, store: store}
}

// IsAdmin reports whether id is the configured administrator.
func (g *Gate) IsAdmin(id int64) bool {
	return g.adminID != 0 && id == g.adminID
}

// AdminID returns the configured administrator identity.
func (g *Gate) AdminID() int64 {
	return g.adminID
}

// Authorize admits the administrator and anyone holding at least one feature.
func (g *Gate) Authorize(id int64) Decision {
	if g.IsAdmin(id) {
		return Admit
	}
	if len(g.snapshot()[id]) > 0 {
		return Admit
	}
	return Deny
}

// HasFeature reports whether id may use feature.
func (g *Gate) HasFeature(id int64, feature string) bool {
	if g.IsAdmin(id) {
		return true
	}
	return g.snapshot().Has(id, feature)
}

// Grant adds feature to id. Only the administrator may call it.
func (g *Gate) Grant(caller, id int64, feature string) (GrantResult, error) {
	if !g.IsAdmin(caller) {
		return 0, ErrNotAdmin
	}
	feature, err := normalizeFeature(feature)
	if err != nil {
		return 0, err
	}

	set, err := g.store.Load()
	if err != nil {
		return 0, fmt.Errorf("load permissions: %w", err)
	}
	if set.Has(id, feature) {
		return AlreadyHeld, nil
	}
	set.add(id, feature)
	if err := g.store.Save(set); err != nil {
		return 0, fmt.Errorf("save permissions: %w", err)
	}
	slog.Info("Permission granted", "user_id", id, "feature", feature)
	return Granted, nil
}

// Revoke removes feature from id. The identity entry disappears with its last feature.
func (g *Gate) Revoke(caller, id int64, feature string) (RevokeResult, error) {
	if !g.IsAdmin(caller) {
		return 0, ErrNotAdmin
	}
	feature = strings.ToLower(strings.TrimSpace(feature))

	set, err := g.store.Load()
	if err != nil {
		return 0, fmt.Errorf("load permissions: %w", err)
	}
	if !set.Has(id, feature) {
		return NotHeld, nil
	}
	set.remove(id, feature)
	if err := g.store.Save(set); err != nil {
		return 0, fmt.Errorf("save permissions: %w", err)
	}
	slog.Info("Permission revoked", "user_id", id, "feature", feature)
	return Revoked, nil
}

// List returns the current permission set. Only the administrator may call it.
func (g *Gate) List(caller int64) (PermissionSet, error) {
	if !g.IsAdmin(caller) {
		return nil, ErrNotAdmin
	}
	return g.store.Load()
}

// snapshot reads the store, treating any failure as an empty set.
func (g *Gate) snapshot() PermissionSet {
	set, err := g.store.Load()
	if err != nil {
		slog.Warn("Permission store unreadable, denying non-admin access", "error", err)
		return PermissionSet{}
	}
	return set
}

func normalizeFeature(feature string) (string, error) {
	feature = strings.ToLower(strings.TrimSpace(feature))
	for _, f := range Features {
		if f == feature {
			return feature, nil
		}
	}
	return "", fmt.Errorf("%w %q (known: %s)", ErrUnknownFeature, feature, strings.Join(Features, ", "))
}

// PermissionSet maps an identity to its granted features.
type PermissionSet map[int64][]string

// Has reports whether id holds feature.
func (p PermissionSet) Has(id int64, feature string) bool {
	for _, f := range p[id] {
		if f == feature {
			return true
		}
	}
	return false
}

// IDs returns identities in ascending order.
func (p PermissionSet) IDs() []int64 {
	ids := make([]int64, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (p PermissionSet) add(id int64, feature string) {
	p[id] = append(p[id], feature)
}

func (p PermissionSet) remove(id int64, feature string) {
	kept := p[id][:0]
	for _, f := range p[id] {
		if f != feature {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		delete(p, id)
		return
	}
	p[id] = kept
}
