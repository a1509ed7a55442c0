// Package resolve maps loose references (title fragments, date and time
// hints) to concrete tasks and calendar events.
package resolve

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Vocabulary holds the word lists used for matching and bulk-intent
// detection. It can be overridden from the YAML vocabulary file.
type Vocabulary struct {
	StopWords     []string `yaml:"stop_words"`
	BulkWords     []string `yaml:"bulk_words"`
	CalendarWords []string `yaml:"calendar_words"`
	TaskWords     []string `yaml:"task_words"`
	// FillerWords may appear in a bulk request without widening it
	FillerWords []string `yaml:"filler_words"`
}

// DefaultVocabulary returns the built-in English and Spanish lists
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		StopWords: []string{
			"a", "an", "the", "my", "our", "your", "to", "for", "of", "on", "in", "at", "with", "and", "or",
			"about", "this", "that", "please",
			"el", "la", "los", "las", "un", "una", "de", "del", "mi", "mis", "para", "con", "y", "en", "al",
		},
		BulkWords: []string{
			"all", "every", "everything", "clear", "wipe", "entire", "whole",
			"todo", "todos", "todas", "limpiar", "vaciar",
		},
		CalendarWords: []string{
			"calendar", "calendars", "event", "events", "meeting", "meetings", "appointment", "appointments",
			"schedule", "agenda",
			"calendario", "evento", "eventos", "reunion", "reuniones", "citas",
		},
		TaskWords: []string{
			"task", "tasks", "to-do", "to-dos", "reminder", "reminders", "list",
			"tarea", "tareas", "pendientes", "recordatorios",
		},
		FillerWords: []string{
			"delete", "remove", "cancel", "erase", "clear", "out",
			"my", "the", "of", "from", "in", "on", "please", "today", "today's", "s",
			"borrar", "borra", "eliminar", "elimina", "mi", "mis", "el", "la", "los", "las", "de", "del", "hoy",
		},
	}
}

type lexicon struct {
	stop     map[string]bool
	bulk     map[string]bool
	calendar map[string]bool
	tasks    map[string]bool
	allowed  map[string]bool
}

func (v Vocabulary) compile() *lexicon {
	l := &lexicon{
		stop:     toSet(v.StopWords),
		bulk:     toSet(v.BulkWords),
		calendar: toSet(v.CalendarWords),
		tasks:    toSet(v.TaskWords),
		allowed:  toSet(v.FillerWords),
	}
	for _, set := range []map[string]bool{l.bulk, l.calendar, l.tasks} {
		for w := range set {
			l.allowed[w] = true
		}
	}
	return l
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		for _, f := range strings.Fields(Normalize(w)) {
			set[f] = true
		}
	}
	return set
}

// Normalize strips diacritics, lowercases, and collapses every run of
// non-alphanumeric characters into a single space
func Normalize(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// tokens returns the normalized words of s without stop words
func (l *lexicon) tokens(s string) []string {
	var out []string
	for _, f := range strings.Fields(Normalize(s)) {
		if !l.stop[f] {
			out = append(out, f)
		}
	}
	return out
}

// tokenMatches reports whether two tokens match exactly or, for tokens of
// three or more characters, one is a prefix of the other
func tokenMatches(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) < 3 || len(b) < 3 {
		return false
	}
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// overlap counts how many query tokens match some candidate token
func overlap(query, candidate []string) int {
	matched := 0
	for _, q := range query {
		for _, c := range candidate {
			if tokenMatches(q, c) {
				matched++
				break
			}
		}
	}
	return matched
}

// contains reports title containment on normalized strings. The reverse
// direction (candidate inside query) needs a candidate of 3+ characters.
func contains(query, candidate string) bool {
	if query == "" || candidate == "" {
		return false
	}
	if strings.Contains(candidate, query) {
		return true
	}
	return len(candidate) >= 3 && strings.Contains(query, candidate)
}
