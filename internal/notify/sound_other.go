//go:build !linux && !darwin

package notify

import (
	"context"

	"github.com/bnema/meeting-alertd/internal/logger"
)

func newPlatformPlayer() player {
	return &noopPlayer{}
}

type noopPlayer struct{}

func (p *noopPlayer) Play(_ context.Context, _ string) error {
	logger.Debug("no audio player for this platform, skipping sound cue")
	return nil
}
