package cache

import (
	"context"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/suchimauz/speaker-session-booking/internal/config"
	"github.com/suchimauz/speaker-session-booking/internal/core/domain"
	"github.com/suchimauz/speaker-session-booking/internal/core/ports/out"
)

// WindowEntry окно занятости, закэшированное от конкретной первой даты
type WindowEntry struct {
	From   domain.SessionDate
	Window domain.AvailabilityWindow
}

type LRUCacheAdapter struct {
	speakers *expirable.LRU[string, domain.Speaker]
	windows  *expirable.LRU[string, WindowEntry]
	logger   out.LoggerPort
}

func NewLRUCacheAdapter(cfg *config.Config, logger out.LoggerPort) *LRUCacheAdapter {
	return &LRUCacheAdapter{
		speakers: expirable.NewLRU[string, domain.Speaker](cfg.Cache.Size, nil, cfg.Cache.TTL),
		windows:  expirable.NewLRU[string, WindowEntry](cfg.Cache.Size, nil, cfg.Cache.TTL),
		logger:   logger.WithModule("LRUCacheAdapter"),
	}
}

func (c *LRUCacheAdapter) GetSpeaker(ctx context.Context, speakerID string) (*domain.Speaker, bool) {
	speaker, exists := c.speakers.Get(speakerID)
	if !exists {
		c.logger.Debug("cache.speaker.miss", out.LogFields{
			"speakerId": speakerID,
		})
		return nil, false
	}

	c.logger.Debug("cache.speaker.hit", out.LogFields{
		"speakerId": speakerID,
	})
	return &speaker, true
}

func (c *LRUCacheAdapter) StoreSpeaker(ctx context.Context, speaker domain.Speaker) {
	c.speakers.Add(speaker.ID, speaker)
}

func (c *LRUCacheAdapter) GetAvailabilityWindow(ctx context.Context, speakerID string, from domain.SessionDate) (domain.AvailabilityWindow, bool) {
	entry, exists := c.windows.Get(speakerID)
	if !exists {
		c.logger.Debug("cache.window.miss", out.LogFields{
			"speakerId": speakerID,
		})
		return nil, false
	}

	// Окно строилось от другой даты, например вчера
	if !entry.From.Equal(from) {
		c.logger.Debug("cache.window.date_mismatch", out.LogFields{
			"speakerId":     speakerID,
			"requestedFrom": from.String(),
			"cachedFrom":    entry.From.String(),
		})
		return nil, false
	}

	c.logger.Debug("cache.window.hit", out.LogFields{
		"speakerId": speakerID,
		"days":      len(entry.Window),
	})
	return copyWindow(entry.Window), true
}

func (c *LRUCacheAdapter) StoreAvailabilityWindow(ctx context.Context, speakerID string, from domain.SessionDate, window domain.AvailabilityWindow) {
	c.windows.Add(speakerID, WindowEntry{
		From:   from,
		Window: copyWindow(window),
	})
}

func (c *LRUCacheAdapter) InvalidateSpeaker(ctx context.Context, speakerID string) {
	c.speakers.Remove(speakerID)
	c.windows.Remove(speakerID)

	c.logger.Debug("cache.invalidate", out.LogFields{
		"speakerId": speakerID,
	})
}

func copyWindow(window domain.AvailabilityWindow) domain.AvailabilityWindow {
	cp := make(domain.AvailabilityWindow, len(window))
	for date, available := range window {
		cp[date] = available
	}
	return cp
}
