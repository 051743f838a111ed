//go:build linux

package notify

import (
	"context"
	"fmt"
	"os/exec"
)

func newPlatformPlayer() player {
	return &pulsePlayer{}
}

// pulsePlayer shells out to paplay with the freedesktop sound theme as the
// default cue.
type pulsePlayer struct{}

const defaultAlertSound = "/usr/share/sounds/freedesktop/stereo/message-new-instant.oga"

func (p *pulsePlayer) Play(ctx context.Context, soundFile string) error {
	if soundFile == "" {
		soundFile = defaultAlertSound
	}

	cmd := exec.CommandContext(ctx, "paplay", soundFile)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("paplay failed: %w", err)
	}
	return nil
}
