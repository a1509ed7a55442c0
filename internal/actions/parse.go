package actions

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/vthunder/steward/internal/logging"
)

var (
	// ErrNoArray means no JSON array could be located in the model output
	ErrNoArray = errors.New("no action array found")
	// ErrMalformed means an array was found but could not be decoded
	ErrMalformed = errors.New("malformed action array")
	// ErrNoActions means the array decoded but was empty
	ErrNoActions = errors.New("action array is empty")
	// ErrInvalidTag is wrapped by every *TagError
	ErrInvalidTag = errors.New("invalid action tag")
)

// TagError reports an element that does not carry exactly one recognized tag
type TagError struct {
	Index  int
	Keys   []string
	Reason string
}

func (e *TagError) Error() string {
	if len(e.Keys) == 0 {
		return fmt.Sprintf("action %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("action %d: %s (keys: %s)", e.Index, e.Reason, strings.Join(e.Keys, ", "))
}

func (e *TagError) Unwrap() error { return ErrInvalidTag }

// fencePattern matches ``` fenced blocks with an optional language tag
var fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \\t]*\\r?\\n?(.*?)```")

// Parse locates the action array in raw model output and decodes it.
// Order is preserved; any element without exactly one recognized tag fails the whole parse.
func Parse(raw string) ([]Action, error) {
	doc, err := ExtractArray(raw)
	if err != nil {
		return nil, err
	}

	elems, err := decodeArray(doc)
	if err != nil {
		return nil, err
	}
	if len(elems) == 0 {
		return nil, ErrNoActions
	}

	result := make([]Action, 0, len(elems))
	for i, elem := range elems {
		action, err := decodeAction(i, elem)
		if err != nil {
			return nil, err
		}
		result = append(result, action)
	}

	for i, a := range result {
		if a.Kind.Pauses() && len(result) > 1 {
			logging.Warn("actions", "%s at index %d is not alone in its array (%d actions); later actions will be ignored",
				a.Kind, i, len(result))
			break
		}
	}

	return result, nil
}

// ExtractArray returns the JSON array text embedded in raw.
// Preference: a fenced block that is itself an array, then an array inside any
// fenced block, then the first balanced [...] in the whole text.
func ExtractArray(raw string) (string, error) {
	blocks := fencePattern.FindAllStringSubmatch(raw, -1)
	for _, b := range blocks {
		content := strings.TrimSpace(b[1])
		if strings.HasPrefix(content, "[") && strings.HasSuffix(content, "]") {
			return content, nil
		}
	}
	for _, b := range blocks {
		if found, ok := scanArray(b[1]); ok {
			return found, nil
		}
	}
	if found, ok := scanArray(raw); ok {
		return found, nil
	}
	return "", ErrNoArray
}

// scanArray finds the first balanced [...] substring. Candidates that open
// with an object (or are empty) are preferred over other bracketed text such
// as "[v2]" in surrounding prose.
func scanArray(s string) (string, bool) {
	var fallback string
	for start := strings.IndexByte(s, '['); start >= 0; {
		if end, ok := matchBracket(s, start); ok {
			candidate := s[start : end+1]
			inner := strings.TrimSpace(candidate[1 : len(candidate)-1])
			if inner == "" || strings.HasPrefix(inner, "{") {
				return candidate, true
			}
			if fallback == "" {
				fallback = candidate
			}
		}
		next := strings.IndexByte(s[start+1:], '[')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return fallback, fallback != ""
}

// matchBracket returns the index of the ']' closing the '[' at start,
// ignoring brackets inside JSON string literals
func matchBracket(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func decodeArray(doc string) ([]json.RawMessage, error) {
	var elems []json.RawMessage
	err := json.Unmarshal([]byte(doc), &elems)
	if err == nil {
		return elems, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(doc)
	if repairErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	elems = nil
	if err := json.Unmarshal([]byte(repaired), &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	logging.Info("actions", "Repaired malformed action array (%s)", logging.Truncate(err.Error(), 80))
	return elems, nil
}

func decodeAction(index int, elem json.RawMessage) (Action, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(elem, &fields); err != nil {
		return Action{}, &TagError{Index: index, Reason: "element is not an object"}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	switch len(keys) {
	case 0:
		return Action{}, &TagError{Index: index, Reason: "no action tag"}
	case 1:
	default:
		return Action{}, &TagError{Index: index, Keys: keys, Reason: "more than one top-level key"}
	}

	kind := Kind(keys[0])
	newPayload, ok := registry[kind]
	if !ok {
		return Action{}, &TagError{Index: index, Keys: keys, Reason: "unrecognized action tag"}
	}

	payload := newPayload()
	if body := fields[keys[0]]; len(body) > 0 {
		if err := json.Unmarshal(body, payload); err != nil {
			return Action{}, fmt.Errorf("action %d (%s): %w: %v", index, kind, ErrMalformed, err)
		}
	}

	return Action{Kind: kind, Payload: payload}, nil
}
