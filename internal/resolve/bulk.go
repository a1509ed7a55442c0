package resolve

import "strings"

// Domain selects which keyword list confirms a bulk request
type Domain int

const (
	DomainCalendar Domain = iota
	DomainTasks
)

// IsBulkDelete reports whether text asks to clear a whole domain. It needs
// an all/every/clear keyword plus a keyword for the domain (or the text is
// just "all" or "every"), and every word must come from the allow-list so
// that a qualified request like "delete all events with Bob" is not widened
// into "delete everything".
func (r *Resolver) IsBulkDelete(text string, domain Domain) bool {
	words := strings.Fields(Normalize(text))
	if len(words) == 0 {
		return false
	}
	if len(words) == 1 && (words[0] == "all" || words[0] == "every") {
		return true
	}

	domainWords := r.lex.calendar
	if domain == DomainTasks {
		domainWords = r.lex.tasks
	}

	hasBulk, hasDomain := false, false
	for _, w := range words {
		if !r.lex.allowed[w] {
			return false
		}
		if r.lex.bulk[w] {
			hasBulk = true
		}
		if domainWords[w] {
			hasDomain = true
		}
	}
	return hasBulk && hasDomain
}
