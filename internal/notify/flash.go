package notify

import (
	"context"

	"github.com/bnema/meeting-alertd/internal/calendar"
)

// FlashFunc triggers the screen-flash effect. The effect itself is rendered
// by an external collaborator; this channel only decides when to fire it.
type FlashFunc func(ctx context.Context, meta Meta) error

// Flash is normally sequenced after the banner (Dispatcher.Sequence) so the
// flash renders on top of an already-visible banner.
type Flash struct {
	run FlashFunc
}

func NewFlash(run FlashFunc) *Flash {
	return &Flash{run: run}
}

func (f *Flash) Name() string { return "flash" }

func (f *Flash) Notify(ctx context.Context, _ []calendar.Event, meta Meta) error {
	if f.run == nil {
		return nil
	}
	return f.run(ctx, meta)
}
