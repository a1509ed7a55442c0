// Package timewin turns loose "HH:MM" fields into five-minute-aligned,
// single-day time windows.
package timewin

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vthunder/steward/internal/logging"
)

const (
	// DayEnd is the last representable minute of a day (23:59)
	DayEnd = 23*60 + 59
	// Step is the rounding granularity in minutes
	Step = 5
	// DefaultDuration is used when neither an end time nor a duration is given
	DefaultDuration = 60
)

// ClockError describes an unparseable clock value
type ClockError struct {
	Input  string
	Reason string
}

func (e *ClockError) Error() string {
	return fmt.Sprintf("invalid time %q: %s", e.Input, e.Reason)
}

// Window is a canonical start/end pair within one day
type Window struct {
	StartMinutes int
	EndMinutes   int
	StartLabel   string
	EndLabel     string
	// Adjustments lists every rounding or clamping decision, in order
	Adjustments []string
}

// Duration returns the window length
func (w Window) Duration() time.Duration {
	return time.Duration(w.EndMinutes-w.StartMinutes) * time.Minute
}

// ParseClock parses "HH:MM" into minutes after midnight without rounding
func ParseClock(s string) (int, error) {
	trimmed := strings.TrimSpace(s)
	parts := strings.Split(trimmed, ":")
	if len(parts) != 2 {
		return 0, &ClockError{Input: s, Reason: "expected HH:MM"}
	}
	hour, ok := digits(parts[0])
	if !ok {
		return 0, &ClockError{Input: s, Reason: "hour is not a number"}
	}
	minute, ok := digits(parts[1])
	if !ok {
		return 0, &ClockError{Input: s, Reason: "minute is not a number"}
	}
	if hour > 23 {
		return 0, &ClockError{Input: s, Reason: "hour out of range 0-23"}
	}
	if minute > 59 {
		return 0, &ClockError{Input: s, Reason: "minute out of range 0-59"}
	}
	return hour*60 + minute, nil
}

func digits(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 2 {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// Round5 rounds minutes to the nearest multiple of 5 (ties up) and clamps to [0, DayEnd]
func Round5(minutes int) int {
	if minutes < 0 {
		return 0
	}
	return clamp((minutes + Step/2) / Step * Step)
}

func clamp(minutes int) int {
	if minutes < 0 {
		return 0
	}
	if minutes > DayEnd {
		return DayEnd
	}
	return minutes
}

// Label formats minutes after midnight as "HH:MM"
func Label(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Canonicalize parses and rounds a single clock value, returning its label
func Canonicalize(s string) (string, error) {
	m, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return Label(Round5(m)), nil
}

// Derive builds a window from a start time plus an optional end time or duration.
// Precedence: explicit end, then explicit duration, then DefaultDuration.
func Derive(start, end string, durationMinutes int) (Window, error) {
	var w Window

	rawStart, err := ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	w.StartMinutes = Round5(rawStart)
	if w.StartMinutes != rawStart {
		w.note("start %s rounded to %s", Label(rawStart), Label(w.StartMinutes))
	}

	switch {
	case strings.TrimSpace(end) != "":
		rawEnd, err := ParseClock(end)
		if err != nil {
			return Window{}, err
		}
		w.EndMinutes = Round5(rawEnd)
		if w.EndMinutes != rawEnd {
			w.note("end %s rounded to %s", Label(rawEnd), Label(w.EndMinutes))
		}
		if w.EndMinutes < w.StartMinutes+Step {
			bumped := clamp(w.StartMinutes + Step)
			w.note("end %s is not after start %s, moved to %s", Label(w.EndMinutes), Label(w.StartMinutes), Label(bumped))
			w.EndMinutes = bumped
		}

	case durationMinutes > 0:
		d := Round5(durationMinutes)
		if d < Step {
			d = Step
		}
		if d != durationMinutes {
			w.note("duration %d min rounded to %d min", durationMinutes, d)
		}
		w.EndMinutes = w.StartMinutes + d
		if w.EndMinutes > DayEnd {
			w.EndMinutes = DayEnd
			w.note("duration shortened to %d min to end by %s", w.EndMinutes-w.StartMinutes, Label(DayEnd))
		}

	default:
		if durationMinutes < 0 {
			w.note("negative duration %d ignored", durationMinutes)
		}
		w.EndMinutes = w.StartMinutes + DefaultDuration
		if w.EndMinutes > DayEnd {
			w.EndMinutes = DayEnd
			w.note("default %d min window clamped to end at %s", DefaultDuration, Label(DayEnd))
		} else {
			w.note("no end time given, assumed %d min", DefaultDuration)
		}
	}

	w.StartLabel = Label(w.StartMinutes)
	w.EndLabel = Label(w.EndMinutes)
	return w, nil
}

func (w *Window) note(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	w.Adjustments = append(w.Adjustments, msg)
	logging.Debug("timewin", "%s", msg)
}

// ParseDate accepts YYYY-MM-DD, "today" or "tomorrow" relative to now
func ParseDate(s string, now time.Time) (time.Time, error) {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return time.Time{}, fmt.Errorf("missing date")
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}
	d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}

// At returns the instant minutes after midnight on day's date in day's location
func At(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, day.Location())
}

// MinutesOf returns minutes after midnight of t in its own location
func MinutesOf(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
