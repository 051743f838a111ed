package notify

import (
	"context"
	"time"

	"github.com/bnema/meeting-alertd/internal/calendar"
	"github.com/bnema/meeting-alertd/internal/logger"
)

// TrayUpdate is the message a UI-owning loop drains to redraw the tray.
// Background tasks publish and move on; they never wait on the UI context.
type TrayUpdate struct {
	Title      string
	Message    string
	EventCount int
	At         time.Time
}

// Tray publishes updates onto a buffered channel instead of calling into
// any UI toolkit directly. A full buffer drops the update with a warning
// rather than blocking the fan-out.
type Tray struct {
	updates chan TrayUpdate
}

func NewTray() *Tray {
	return &Tray{
		updates: make(chan TrayUpdate, 16),
	}
}

func (t *Tray) Name() string { return "tray" }

// Updates is drained by the UI-owning loop on its own schedule.
func (t *Tray) Updates() <-chan TrayUpdate {
	return t.updates
}

func (t *Tray) Notify(_ context.Context, batch []calendar.Event, meta Meta) error {
	update := TrayUpdate{
		Title:      meta.Title,
		Message:    meta.Message,
		EventCount: len(batch),
		At:         time.Now(),
	}

	select {
	case t.updates <- update:
	default:
		logger.Warn("tray update queue full, dropping update")
	}
	return nil
}
