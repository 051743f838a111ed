//go:build darwin

package notify

import (
	"context"
	"fmt"
	"os/exec"
)

func newPlatformPlayer() player {
	return &afplayPlayer{}
}

type afplayPlayer struct{}

const defaultAlertSound = "/System/Library/Sounds/Glass.aiff"

func (p *afplayPlayer) Play(ctx context.Context, soundFile string) error {
	if soundFile == "" {
		soundFile = defaultAlertSound
	}

	cmd := exec.CommandContext(ctx, "afplay", soundFile)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("afplay failed: %w", err)
	}
	return nil
}
