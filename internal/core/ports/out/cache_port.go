package out

import (
	"context"

	"github.com/suchimauz/speaker-session-booking/internal/core/domain"
)

type CachePort interface {
	// Кэширование спикеров
	GetSpeaker(ctx context.Context, speakerID string) (*domain.Speaker, bool)
	StoreSpeaker(ctx context.Context, speaker domain.Speaker)

	// Кэширование окна занятости, ключ: спикер + первая дата окна
	GetAvailabilityWindow(ctx context.Context, speakerID string, from domain.SessionDate) (domain.AvailabilityWindow, bool)
	StoreAvailabilityWindow(ctx context.Context, speakerID string, from domain.SessionDate, window domain.AvailabilityWindow)

	InvalidateSpeaker(ctx context.Context, speakerID string)
}
