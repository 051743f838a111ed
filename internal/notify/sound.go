package notify

import (
	"context"

	"github.com/bnema/meeting-alertd/internal/calendar"
)

// player is the platform audio capability. The implementation is selected
// per target platform at compile time (sound_*.go); there is no runtime
// capability probing.
type player interface {
	Play(ctx context.Context, soundFile string) error
}

// Sound plays a short audio cue. It runs on its own goroutine in the
// fan-out so a render-heavy visual channel can never delay it.
type Sound struct {
	player    player
	soundFile string
}

// NewSound uses the given sound file, or the platform default when empty.
func NewSound(soundFile string) *Sound {
	return &Sound{
		player:    newPlatformPlayer(),
		soundFile: soundFile,
	}
}

func (s *Sound) Name() string { return "sound" }

func (s *Sound) Notify(ctx context.Context, _ []calendar.Event, _ Meta) error {
	return s.player.Play(ctx, s.soundFile)
}
