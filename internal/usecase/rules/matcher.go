// Package rules implements the deterministic fast path of command
// resolution: ordered keyword groups that map common phrasings straight to
// actions without consulting the model. Absence of a match is a normal
// outcome, not an error.
package rules

import (
	"regexp"
	"strconv"
	"strings"

	"ledbutler/internal/domain"
	"ledbutler/internal/infra/config"
)

// exitWords terminate the session only when they are the entire command, so
// "quit blinking" still reaches the blink group.
var exitWords = map[string]bool{
	"quit":    true,
	"exit":    true,
	"bye":     true,
	"goodbye": true,
}

// Pattern groups, checked in order. Earlier groups win, which is what
// resolves overlapping phrasings: "stop blinking" must hit the stop group
// before the blink group, and "turn on blinking" is a blink, not an on.
var (
	statusRe    = regexp.MustCompile(`\b(?:status|state|how are you)\b`)
	timeRe      = regexp.MustCompile(`\b(?:time|clock|date)\b`)
	blinkStopRe = regexp.MustCompile(`\b(?:stop|halt|end|cancel)\b.*\bblink|\bblink\w*\b.*\b(?:stop|halt|end|cancel)\b|^stop$`)
	blinkRe     = regexp.MustCompile(`\bblink|\bflash\b|\bstrobe\b`)
	offRe       = regexp.MustCompile(`\b(?:turn|switch|shut|power|cut)\b.*\boff\b|\b(?:led|light|lights|lamp)\b.*\boff\b|\boff\b.*\b(?:led|light|lights|lamp)\b|^off$`)
	onRe        = regexp.MustCompile(`\b(?:turn|switch|power|put)\b.*\bon\b|\b(?:led|light|lights|lamp)\b.*\bon\b|\bon\b.*\b(?:led|light|lights|lamp)\b|^on$`)
	toggleRe    = regexp.MustCompile(`\b(?:toggle|flip|invert|switch)\b`)

	firstIntRe = regexp.MustCompile(`\d+`)
)

// Matcher maps free text to actions using the pattern groups above. Blink
// parameters missing from the phrase fall back to the configured defaults.
type Matcher struct {
	defaultIntervalMs      int
	defaultDurationSeconds int
}

// New creates a matcher with the given blink defaults.
func New(cfg config.BlinkConfig) *Matcher {
	return &Matcher{
		defaultIntervalMs:      cfg.DefaultIntervalMs,
		defaultDurationSeconds: cfg.DefaultDurationSeconds,
	}
}

// Normalize lowercases text and collapses runs of whitespace so matching,
// logging, and history all see one canonical form.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Match resolves text to an action. The boolean is false when no pattern
// group applies; callers then consult the model.
func (m *Matcher) Match(text string) (domain.Action, bool) {
	text = Normalize(text)
	if text == "" {
		return domain.Action{}, false
	}
	if exitWords[text] {
		return domain.Action{Kind: domain.ActionQuit}, true
	}

	switch {
	case statusRe.MatchString(text):
		return domain.Action{Kind: domain.ActionQueryStatus}, true
	case timeRe.MatchString(text):
		return domain.Action{Kind: domain.ActionQueryTime}, true
	case blinkStopRe.MatchString(text):
		return domain.Action{Kind: domain.ActionBlinkStop}, true
	case blinkRe.MatchString(text):
		return m.blinkAction(text), true
	case offRe.MatchString(text):
		return domain.Action{Kind: domain.ActionLedOff}, true
	case onRe.MatchString(text):
		return domain.Action{Kind: domain.ActionLedOn}, true
	case toggleRe.MatchString(text):
		return domain.Action{Kind: domain.ActionLedToggle}, true
	}
	return domain.Action{}, false
}

// blinkAction builds a blink with the first integer in the phrase as its
// duration in seconds, or the configured default when the phrase has none.
func (m *Matcher) blinkAction(text string) domain.Action {
	a := domain.Action{
		Kind:            domain.ActionBlinkStart,
		DurationSeconds: m.defaultDurationSeconds,
		IntervalMs:      m.defaultIntervalMs,
	}
	if raw := firstIntRe.FindString(text); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			a.DurationSeconds = n
		}
	}
	return a
}
