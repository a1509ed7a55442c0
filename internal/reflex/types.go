package reflex

import (
	"regexp"
	"strings"
)

// Intent is what a quick reply means for the pending question
type Intent string

const (
	IntentNone   Intent = ""
	IntentAffirm Intent = "affirm"
	IntentDeny   Intent = "deny"
)

// Reflex is a pattern rule defined in YAML
type Reflex struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Trigger     Trigger `yaml:"trigger"`
	Intent      Intent  `yaml:"intent"`
	Priority    int     `yaml:"priority"` // higher = wins when multiple match

	compiledPattern *regexp.Regexp
}

// Trigger defines when a reflex fires
type Trigger struct {
	Pattern string `yaml:"pattern"` // regex, matched against the whole trimmed message
	// MaxWords skips longer messages; a reply with content is a new request
	MaxWords int `yaml:"max_words"`
}

// MatchResult contains the result of matching a reflex
type MatchResult struct {
	Matched bool
	Intent  Intent
}

// compile prepares the pattern. Patterns are anchored and case-insensitive.
func (r *Reflex) compile() error {
	pattern := strings.TrimPrefix(r.Trigger.Pattern, "(?i)")
	compiled, err := regexp.Compile(`(?i)^(?:` + pattern + `)$`)
	if err != nil {
		return err
	}
	r.compiledPattern = compiled
	return nil
}

// Match checks if this reflex matches a message
func (r *Reflex) Match(content string) MatchResult {
	if r.compiledPattern == nil {
		if err := r.compile(); err != nil {
			return MatchResult{Matched: false}
		}
	}
	text := strings.TrimSpace(content)
	text = strings.TrimRight(text, ".!¡ ")
	text = strings.TrimLeft(text, "¡")
	if text == "" {
		return MatchResult{Matched: false}
	}
	if r.Trigger.MaxWords > 0 && len(strings.Fields(text)) > r.Trigger.MaxWords {
		return MatchResult{Matched: false}
	}
	if !r.compiledPattern.MatchString(text) {
		return MatchResult{Matched: false}
	}
	return MatchResult{Matched: true, Intent: r.Intent}
}
