// Package mode implements the Mode Router (C10): a cheap regex/keyword pass
// that decides whether an incoming request should short-circuit to a
// conversational reply or be handed to the pipeline engine. It is
// deliberately not a full NLU classifier.
package mode

import (
	"regexp"
	"strings"
)

// Mode is the routing decision for one request.
type Mode string

const (
	ModeConversational Mode = "conversational"
	ModeTask            Mode = "task"
)

// DefaultMaxLength is the length cutoff (in runes) under which a message is
// eligible for conversational classification.
const DefaultMaxLength = 40

var greetingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(hi|hello|hey|yo|sup)\b`),
	regexp.MustCompile(`(?i)^\s*(good\s*(morning|afternoon|evening))\b`),
	regexp.MustCompile(`(?i)^\s*(thanks|thank you|thx)\b`),
	regexp.MustCompile(`(?i)^\s*(how are you|what'?s up)\b`),
	regexp.MustCompile(`(?i)^\s*(bye|goodbye|see you)\b`),
}

// Router classifies requests into conversational vs. task mode.
type Router struct {
	maxLength int
	patterns  []*regexp.Regexp
}

// Option configures a Router.
type Option func(*Router)

// WithMaxLength overrides DefaultMaxLength.
func WithMaxLength(n int) Option {
	return func(r *Router) { r.maxLength = n }
}

// WithPatterns overrides the built-in greeting pattern list.
func WithPatterns(patterns []*regexp.Regexp) Option {
	return func(r *Router) { r.patterns = patterns }
}

// New constructs a Router with the default greeting patterns and length cutoff.
func New(opts ...Option) *Router {
	r := &Router{maxLength: DefaultMaxLength, patterns: greetingPatterns}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Classify returns ModeConversational for empty input, for input matching a
// greeting pattern (at any length), and for short single-line input that
// opens with a small-talk cue; ModeTask otherwise.
func (r *Router) Classify(message string) Mode {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return ModeConversational
	}
	for _, p := range r.patterns {
		if p.MatchString(trimmed) {
			return ModeConversational
		}
	}
	if len([]rune(trimmed)) <= r.maxLength && !strings.Contains(trimmed, "\n") {
		// Short non-greeting input still needs a small-talk lead-in word (and
		// no quotes) to avoid misrouting short task descriptions ("write a report").
		if looksLikeSmallTalk(trimmed) {
			return ModeConversational
		}
	}
	return ModeTask
}

var smallTalkCue = regexp.MustCompile(`(?i)^(who|what time|how's it going|ok|okay|cool|nice)\b`)

func looksLikeSmallTalk(s string) bool {
	return smallTalkCue.MatchString(s) && !strings.ContainsAny(s, "\"'")
}
