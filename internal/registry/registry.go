// Package registry routes feed messages to the weather parsers that can
// decode them.
//
// A message is offered to three tiers in turn: parsers bound to its label,
// then content parsers that accept any label. Fallback parsers run only when
// neither tier produced a result, and only for the labels they were
// registered with.
package registry

import (
	"slices"
	"strings"
	"sync"

	"metar_parser/internal/feed"
)

// Result is the common interface for all parse results.
type Result interface {
	Type() string     // e.g., "metar"
	MessageID() int64 // The original message ID
}

// Parser is implemented by each message parser.
type Parser interface {
	// Name returns the parser's unique identifier.
	Name() string

	// Labels returns the feed labels this parser is bound to (METAR, SPECI, RA...).
	// An empty slice makes it a content parser offered every message.
	Labels() []string

	// QuickCheck is a cheap string test run before Parse. False means skip.
	QuickCheck(text string) bool

	// Priority orders parsers within a tier. Lower runs first.
	Priority() int

	// Parse decodes the message, or returns nil if it holds nothing usable.
	Parse(msg *feed.Message) Result
}

// Registry holds parsers keyed by the route that reaches them.
type Registry struct {
	mu       sync.RWMutex
	byLabel  map[string][]Parser
	content  []Parser
	fallback map[string][]Parser
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byLabel:  make(map[string][]Parser),
		fallback: make(map[string][]Parser),
	}
}

var defaultRegistry = New()

// Default returns the registry parser packages register into from init().
func Default() *Registry {
	return defaultRegistry
}

// NormaliseLabel returns the routing key for a feed label. Labels are matched
// case-insensitively and surrounding space is ignored.
func NormaliseLabel(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}

// insertByPriority inserts p after every parser of equal or lower priority,
// so registration order breaks ties.
func insertByPriority(ps []Parser, p Parser) []Parser {
	i := slices.IndexFunc(ps, func(q Parser) bool { return q.Priority() > p.Priority() })
	if i < 0 {
		return append(ps, p)
	}
	return slices.Insert(ps, i, p)
}

// Register binds p to its labels, or to every message when it has none.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	labels := p.Labels()
	if len(labels) == 0 {
		r.content = insertByPriority(r.content, p)
		return
	}
	for _, label := range labels {
		key := NormaliseLabel(label)
		r.byLabel[key] = insertByPriority(r.byLabel[key], p)
	}
}

// RegisterFallback offers p messages with one of the given labels that no
// other parser decoded. Use "" for unlabelled messages.
func (r *Registry) RegisterFallback(p Parser, labels ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, label := range labels {
		key := NormaliseLabel(label)
		r.fallback[key] = insertByPriority(r.fallback[key], p)
	}
}

// Dispatch returns the results of every parser on the message's route.
// Fallback parsers only run when the label and content tiers returned nothing.
func (r *Registry) Dispatch(msg *feed.Message) []Result {
	key := NormaliseLabel(msg.Label)

	r.mu.RLock()
	defer r.mu.RUnlock()

	results := runTier(r.byLabel[key], msg, nil)
	results = runTier(r.content, msg, results)
	if len(results) == 0 {
		results = runTier(r.fallback[key], msg, nil)
	}
	return results
}

func runTier(parsers []Parser, msg *feed.Message, results []Result) []Result {
	for _, p := range parsers {
		if !p.QuickCheck(msg.Text) {
			continue
		}
		if res := p.Parse(msg); res != nil {
			results = append(results, res)
		}
	}
	return results
}

// Route returns the parsers Dispatch would consult for label, in the order it
// consults them. A parser reachable from several tiers is listed once.
func (r *Registry) Route(label string) []Parser {
	key := NormaliseLabel(label)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var route []Parser
	seen := make(map[string]bool)
	for _, tier := range [][]Parser{r.byLabel[key], r.content, r.fallback[key]} {
		for _, p := range tier {
			if !seen[p.Name()] {
				seen[p.Name()] = true
				route = append(route, p)
			}
		}
	}
	return route
}

// RegisteredLabels returns the labels with a bound parser, sorted.
func (r *Registry) RegisteredLabels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	labels := make([]string, 0, len(r.byLabel))
	for label := range r.byLabel {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	return labels
}

// ParserCount returns the number of distinct parsers across all tiers.
func (r *Registry) ParserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	mark := func(ps []Parser) {
		for _, p := range ps {
			seen[p.Name()] = true
		}
	}
	mark(r.content)
	for _, ps := range r.byLabel {
		mark(ps)
	}
	for _, ps := range r.fallback {
		mark(ps)
	}
	return len(seen)
}
