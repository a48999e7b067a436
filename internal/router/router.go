// Package router dispatches inbound events to handlers.
//
// Commands are matched by exact verb. Callback tokens are matched against
// registered prefixes, longest first; an exact token registration beats a
// prefix of the same length. Anything unmatched is logged and dropped.
package router

import (
	"context"
	"log/slog"
	"sort"
	"strings"
)

type Kind int

const (
	KindCommand Kind = iota
	KindText
	KindCallback
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindText:
		return "text"
	case KindCallback:
		return "callback"
	}
	return "unknown"
}

// Event is a transport-neutral inbound event.
type Event struct {
	Kind      Kind
	Identity  int64
	Username  string
	ChatID    int64
	MessageID int

	// KindCommand
	Verb string
	Args []string

	// KindText, and the raw argument string of a command
	Text string

	// KindCallback
	Token      string
	CallbackID string

	// Set by Dispatch for callbacks: the matched registration and the rest of the token.
	Prefix string
	Arg    string
}

// HandlerFunc handles one event.
type HandlerFunc func(ctx context.Context, ev Event)

// Access answers fine-grained feature checks.
type Access interface {
	HasFeature(id int64, feature string) bool
}

// DeniedFunc is called when Require rejects an event.
type DeniedFunc func(ctx context.Context, ev Event, feature string)

type Router struct {
	access   Access
	denied   DeniedFunc
	commands map[string]HandlerFunc
	exact    map[string]HandlerFunc
	prefixes map[string]HandlerFunc
	text     HandlerFunc
}

func New(access Access) *Router {
	return &Router{
		access:   access,
		commands: make(map[string]HandlerFunc),
		exact:    make(map[string]HandlerFunc),
		prefixes: make(map[string]HandlerFunc),
	}
}

// OnDenied sets the hook run when a Require-wrapped handler refuses an event.
func (r *Router) OnDenied(fn DeniedFunc) {
	r.denied = fn
}

// Command registers a handler for /verb.
func (r *Router) Command(verb string, h HandlerFunc) {
	r.commands[strings.ToLower(verb)] = h
}

// Callback registers a handler for every token starting with prefix.
func (r *Router) Callback(prefix string, h HandlerFunc) {
	r.prefixes[prefix] = h
}

// Exact registers a handler for exactly token.
func (r *Router) Exact(token string, h HandlerFunc) {
	r.exact[token] = h
}

// Text registers the handler for free-text messages.
func (r *Router) Text(h HandlerFunc) {
	r.text = h
}

// Require wraps h so it only runs for identities holding feature.
func (r *Router) Require(feature string, h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, ev Event) {
		if r.access != nil && !r.access.HasFeature(ev.Identity, feature) {
			slog.Warn("Feature denied", "user_id", ev.Identity, "feature", feature, "kind", ev.Kind)
			if r.denied != nil {
				r.denied(ctx, ev, feature)
			}
			return
		}
		h(ctx, ev)
	}
}

// Match finds the handler for a callback token.
func (r *Router) Match(token string) (string, HandlerFunc, bool) {
	if h, ok := r.exact[token]; ok {
		return token, h, true
	}

	best := ""
	var bestH HandlerFunc
	for prefix, h := range r.prefixes {
		if strings.HasPrefix(token, prefix) && (bestH == nil || len(prefix) > len(best)) {
			best, bestH = prefix, h
		}
	}
	return best, bestH, bestH != nil
}

// Dispatch runs the handler for ev. It reports false on a routing miss.
func (r *Router) Dispatch(ctx context.Context, ev Event) bool {
	switch ev.Kind {
	case KindCommand:
		h, ok := r.commands[strings.ToLower(ev.Verb)]
		if !ok {
			slog.Debug("Unknown command ignored", "verb", ev.Verb, "user_id", ev.Identity)
			return false
		}
		h(ctx, ev)
		return true

	case KindCallback:
		prefix, h, ok := r.Match(ev.Token)
		if !ok {
			slog.Debug("Unhandled callback ignored", "token", ev.Token, "user_id", ev.Identity)
			return false
		}
		ev.Prefix = prefix
		ev.Arg = strings.TrimPrefix(ev.Token, prefix)
		h(ctx, ev)
		return true

	case KindText:
		if r.text == nil {
			return false
		}
		r.text(ctx, ev)
		return true
	}
	return false
}

// Verbs returns registered command verbs, sorted.
func (r *Router) Verbs() []string {
	verbs := make([]string, 0, len(r.commands))
	for v := range r.commands {
		verbs = append(verbs, v)
	}
	sort.Strings(verbs)
	return verbs
}
