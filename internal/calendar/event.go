package calendar

import (
	"strings"
	"time"
)

// Event is one calendar event instance, recreated fresh on every poll. The
// only cross-poll identity is ID, which the dedup set keys on. Time-relative
// fields are methods, never stored: "now" moves, so they are recomputed
// against the caller's clock on every access.
type Event struct {
	ID              string
	Subject         string
	Start           time.Time
	End             time.Time
	IsOnlineMeeting bool
	Organizer       string
	ResponseStatus  string // needsAction, declined, tentative, accepted
	Cancelled       bool   // provider's explicit flag; see IsCancelled
}

// MinutesToStart is the floor of (start - now) in minutes. Negative once the
// event has started.
func (e *Event) MinutesToStart(now time.Time) int {
	d := e.Start.Sub(now)
	mins := int(d / time.Minute)
	if d < 0 && d%time.Minute != 0 {
		mins--
	}
	return mins
}

// InProgressAt reports whether now is strictly between start and end.
func (e *Event) InProgressAt(now time.Time) bool {
	return now.After(e.Start) && now.Before(e.End)
}

// EndedAt reports whether the event is over at the given instant.
func (e *Event) EndedAt(now time.Time) bool {
	return !now.Before(e.End)
}

// IsCancelled combines the provider's explicit flag with the subject-prefix
// convention some organizers use instead of actually cancelling.
func (e *Event) IsCancelled() bool {
	if e.Cancelled {
		return true
	}
	subject := strings.ToLower(strings.TrimSpace(e.Subject))
	return strings.HasPrefix(subject, "cancelled:") || strings.HasPrefix(subject, "canceled:")
}

// ShortSubject truncates long subjects for notification surfaces.
func (e *Event) ShortSubject() string {
	if len(e.Subject) <= 30 {
		return e.Subject
	}
	return e.Subject[:27] + "..."
}

// TimeRange formats the event's span for display.
func (e *Event) TimeRange() string {
	if e.Start.YearDay() == e.End.YearDay() && e.Start.Year() == e.End.Year() {
		return e.Start.Format("15:04") + "-" + e.End.Format("15:04")
	}
	return e.Start.Format("Jan 2 15:04") + "-" + e.End.Format("Jan 2 15:04")
}

// Duration returns the event's scheduled length.
func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}
