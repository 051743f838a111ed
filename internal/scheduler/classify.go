package scheduler

import (
	"sort"
	"time"

	"github.com/bnema/meeting-alertd/internal/calendar"
)

// Classification is the scheduler's view of one fetched window, partitioned
// relative to the instant it was computed for.
type Classification struct {
	InProgress []calendar.Event
	Upcoming   []calendar.Event // sorted ascending by minutes to start
	Next       []calendar.Event // the "next meetings" subset of Upcoming
}

// Classify partitions events by proximity to now. "Next meetings" are those
// starting within the lookahead window, or within nearDelta of the earliest
// upcoming start: a busy near-term block is shown together, and a single
// far-off meeting is still surfaced even with nothing imminent.
func Classify(events []calendar.Event, now time.Time, lookahead, nearDelta time.Duration) Classification {
	var c Classification

	for i := range events {
		e := events[i]
		switch {
		case e.InProgressAt(now):
			c.InProgress = append(c.InProgress, e)
		case e.MinutesToStart(now) >= 0:
			c.Upcoming = append(c.Upcoming, e)
		}
	}

	sort.SliceStable(c.Upcoming, func(i, j int) bool {
		return c.Upcoming[i].MinutesToStart(now) < c.Upcoming[j].MinutesToStart(now)
	})

	if len(c.Upcoming) == 0 {
		return c
	}

	earliest := c.Upcoming[0].Start
	for i := range c.Upcoming {
		e := c.Upcoming[i]
		inLookahead := e.Start.Sub(now) <= lookahead
		nearEarliest := e.Start.Sub(earliest) <= nearDelta
		if inLookahead || nearEarliest {
			c.Next = append(c.Next, e)
		}
	}

	return c
}
