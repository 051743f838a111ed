package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/bnema/meeting-alertd/internal/logger"
	"github.com/bnema/meeting-alertd/internal/token"
)

// Source fetches the raw events for a window. Unauthorized failures satisfy
// errors.Is(err, token.ErrUnauthorized); transport failures are surfaced
// as-is and not retried here.
type Source interface {
	Fetch(ctx context.Context, windowStart, windowEnd time.Time) ([]Event, error)
}

// GoogleSource reads the primary Google calendar. The token lifecycle
// manager wraps every query, so a stale credential is recovered and the
// query retried exactly once before failing.
type GoogleSource struct {
	tokens     *token.Manager
	calendarID string
}

func NewGoogleSource(tokens *token.Manager) *GoogleSource {
	return &GoogleSource{
		tokens:     tokens,
		calendarID: "primary",
	}
}

func (s *GoogleSource) Fetch(ctx context.Context, windowStart, windowEnd time.Time) ([]Event, error) {
	var events []Event

	err := s.tokens.Do(ctx, func(ctx context.Context, accessToken string) error {
		fetched, err := s.fetchWithToken(ctx, accessToken, windowStart, windowEnd)
		if err != nil {
			return err
		}
		events = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}

func (s *GoogleSource) fetchWithToken(ctx context.Context, accessToken string, windowStart, windowEnd time.Time) ([]Event, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	svc, err := gcal.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	logger.Debug("fetching events",
		"calendar_id", s.calendarID,
		"window_start", windowStart,
		"window_end", windowEnd)

	resp, err := svc.Events.List(s.calendarID).
		TimeMin(windowStart.Format(time.RFC3339)).
		TimeMax(windowEnd.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapAPIError(err)
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		event, err := convertEvent(item)
		if err != nil {
			logger.Debug("skipping unparseable event", "event_id", item.Id, "error", err)
			continue
		}
		events = append(events, event)
	}

	logger.Info("fetched events", "calendar_id", s.calendarID, "event_count", len(events))
	return events, nil
}

// wrapAPIError maps 401/403 onto the sentinel the retry wrapper branches on.
func wrapAPIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
			return fmt.Errorf("calendar query rejected (%d): %w", apiErr.Code, token.ErrUnauthorized)
		}
	}
	return fmt.Errorf("calendar query failed: %w", err)
}

func convertEvent(item *gcal.Event) (Event, error) {
	event := Event{
		ID:              item.Id,
		Subject:         item.Summary,
		Cancelled:       item.Status == "cancelled",
		IsOnlineMeeting: item.HangoutLink != "" || item.ConferenceData != nil,
	}

	if item.Organizer != nil {
		event.Organizer = item.Organizer.Email
	}
	for _, attendee := range item.Attendees {
		if attendee.Self {
			event.ResponseStatus = attendee.ResponseStatus
			break
		}
	}

	var err error
	switch {
	case item.Start != nil && item.Start.DateTime != "":
		event.Start, err = time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return event, fmt.Errorf("failed to parse start time: %w", err)
		}
	case item.Start != nil && item.Start.Date != "":
		event.Start, err = time.Parse("2006-01-02", item.Start.Date)
		if err != nil {
			return event, fmt.Errorf("failed to parse start date: %w", err)
		}
	default:
		return event, fmt.Errorf("event has no start time or date")
	}

	switch {
	case item.End != nil && item.End.DateTime != "":
		event.End, err = time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			return event, fmt.Errorf("failed to parse end time: %w", err)
		}
	case item.End != nil && item.End.Date != "":
		event.End, err = time.Parse("2006-01-02", item.End.Date)
		if err != nil {
			return event, fmt.Errorf("failed to parse end date: %w", err)
		}
	default:
		// Default to 1 hour duration if no end time
		event.End = event.Start.Add(time.Hour)
	}

	return event, nil
}
