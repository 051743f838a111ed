package notify

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/bnema/meeting-alertd/internal/calendar"
	"github.com/bnema/meeting-alertd/internal/logger"
)

// Banner shows a desktop notification via notify-send. It implements
// ReadySignaler so a dependent visual channel can render after the banner
// is up.
type Banner struct{}

func NewBanner() *Banner {
	return &Banner{}
}

func (b *Banner) Name() string { return "banner" }

func (b *Banner) Notify(ctx context.Context, batch []calendar.Event, meta Meta) error {
	return b.NotifyReady(ctx, batch, meta, func() {})
}

func (b *Banner) NotifyReady(ctx context.Context, batch []calendar.Event, meta Meta, ready func()) error {
	urgency := urgencyFor(batch, time.Now())

	if err := send(ctx, meta.Title, meta.Message, urgency); err != nil {
		return err
	}

	ready()
	return nil
}

// urgencyFor maps the closest event's proximity onto notify-send urgency.
func urgencyFor(batch []calendar.Event, now time.Time) string {
	closest := 1 << 30
	for i := range batch {
		if m := batch[i].MinutesToStart(now); m < closest {
			closest = m
		}
	}

	switch {
	case closest <= 0:
		return "critical"
	case closest <= 5:
		return "normal"
	default:
		return "low"
	}
}

func send(ctx context.Context, title, message, urgency string) error {
	args := []string{
		"--app-name=Meeting Alert",
		"--urgency=" + urgency,
		title,
		message,
	}

	cmd := exec.CommandContext(ctx, "notify-send", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("notify-send failed: %w, output: %s", err, string(output))
	}
	return nil
}

// SystemNotice raises a critical banner outside the normal event fan-out.
// Used when authentication is exhausted: an alerting system that goes silent
// about its own inability to fetch has defeated its purpose.
func SystemNotice(ctx context.Context, title, message string) {
	if err := send(ctx, title, message, "critical"); err != nil {
		logger.Error("failed to raise system notice", "title", title, "error", err)
	}
}
