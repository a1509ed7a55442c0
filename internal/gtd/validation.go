package gtd

import (
	"fmt"
	"regexp"
	"strings"
)

// validWhenValues contains the allowed static values for the When field
var validWhenValues = map[string]bool{
	"inbox":   true,
	"today":   true,
	"anytime": true,
	"someday": true,
}

var validRepeatValues = map[string]bool{
	"daily":     true,
	"weekly":    true,
	"biweekly":  true,
	"monthly":   true,
	"quarterly": true,
	"yearly":    true,
}

// datePattern matches YYYY-MM-DD format
var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// isValidWhen checks if a when value is valid (static value or date pattern)
func isValidWhen(when string) bool {
	if when == "" {
		return true // empty defaults to "inbox"
	}
	if validWhenValues[when] {
		return true
	}
	return datePattern.MatchString(when)
}

// ValidateTask checks a task before it is stored
func ValidateTask(task *Task) error {
	if strings.TrimSpace(task.Title) == "" {
		return fmt.Errorf("task title is required")
	}
	if !isValidWhen(task.When) {
		return fmt.Errorf("invalid when value '%s': must be inbox, today, anytime, someday, or a date (YYYY-MM-DD)", task.When)
	}
	if task.Repeat != "" && !validRepeatValues[task.Repeat] {
		return fmt.Errorf("invalid repeat value '%s'", task.Repeat)
	}
	switch task.Status {
	case "", StatusOpen, StatusCompleted, StatusCanceled:
	default:
		return fmt.Errorf("invalid status '%s'", task.Status)
	}
	return nil
}
