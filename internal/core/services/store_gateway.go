package services

import (
	"context"
	"sync"

	"github.com/suchimauz/speaker-session-booking/internal/core/domain"
	"github.com/suchimauz/speaker-session-booking/internal/core/ports/out"
)

// StoreGateway кэширует спикеров и окна занятости поверх хранилища.
// Проверка доступности всегда идет в хранилище: вердикт нельзя брать из кэша.
type StoreGateway struct {
	store     out.SpeakerStorePort
	cachePort out.CachePort
	logger    out.LoggerPort

	// Поколение спикера растет при каждой инвалидации. Ответ хранилища,
	// полученный в старом поколении, в кэш не кладется.
	mu          sync.Mutex
	generations map[string]uint64
}

// NewStoreGateway cachePort может быть nil, тогда все вызовы уходят в хранилище
func NewStoreGateway(store out.SpeakerStorePort, cachePort out.CachePort, logger out.LoggerPort) *StoreGateway {
	return &StoreGateway{
		store:       store,
		cachePort:   cachePort,
		logger:      logger.WithModule("StoreGateway"),
		generations: make(map[string]uint64),
	}
}

func (g *StoreGateway) generation(speakerID string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generations[speakerID]
}

// storeIfCurrent выполняет put, только если поколение спикера не сменилось
func (g *StoreGateway) storeIfCurrent(speakerID string, seen uint64, put func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.generations[speakerID] != seen {
		g.logger.Debug("gateway.cache.stale_skipped", out.LogFields{
			"speakerId": speakerID,
		})
		return
	}
	put()
}

func (g *StoreGateway) invalidate(ctx context.Context, speakerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.generations[speakerID]++
	g.cachePort.InvalidateSpeaker(ctx, speakerID)
	g.logger.Debug("gateway.cache.invalidated", out.LogFields{
		"speakerId": speakerID,
	})
}

func (g *StoreGateway) GetSpeaker(ctx context.Context, speakerID string) (*domain.Speaker, error) {
	if g.cachePort != nil {
		if speaker, exists := g.cachePort.GetSpeaker(ctx, speakerID); exists {
			return speaker, nil
		}
	}

	seen := g.generation(speakerID)
	speaker, err := g.store.GetSpeaker(ctx, speakerID)
	if err != nil {
		return nil, err
	}

	if g.cachePort != nil {
		g.storeIfCurrent(speakerID, seen, func() {
			g.cachePort.StoreSpeaker(ctx, *speaker)
		})
	}
	return speaker, nil
}

func (g *StoreGateway) SearchSpeakers(ctx context.Context, filter domain.SpeakerFilter) ([]domain.Speaker, error) {
	g.mu.Lock()
	seen := make(map[string]uint64, len(g.generations))
	for id, gen := range g.generations {
		seen[id] = gen
	}
	g.mu.Unlock()

	speakers, err := g.store.SearchSpeakers(ctx, filter)
	if err != nil {
		return nil, err
	}

	// Прогреваем кэш: после поиска обычно выбирают одного из найденных
	if g.cachePort != nil {
		for _, speaker := range speakers {
			g.storeIfCurrent(speaker.ID, seen[speaker.ID], func() {
				g.cachePort.StoreSpeaker(ctx, speaker)
			})
		}
	}
	return speakers, nil
}

func (g *StoreGateway) CheckAvailability(ctx context.Context, speakerID string, date domain.SessionDate) (bool, error) {
	return g.store.CheckAvailability(ctx, speakerID, date)
}

func (g *StoreGateway) CreateAssignment(ctx context.Context, speakerID string, date domain.SessionDate, specialty domain.Specialty) (domain.Assignment, error) {
	assignment, err := g.store.CreateAssignment(ctx, speakerID, date, specialty)

	// Конфликт тоже означает, что закэшированное окно устарело
	if g.cachePort != nil && (err == nil || isConflict(err)) {
		g.invalidate(ctx, speakerID)
	}

	return assignment, err
}

// ListAssignments идет в хранилище мимо кэша
func (g *StoreGateway) ListAssignments(ctx context.Context, speakerID string) ([]domain.Assignment, error) {
	return g.store.ListAssignments(ctx, speakerID)
}

func (g *StoreGateway) GetAvailabilityWindow(ctx context.Context, speakerID string, from domain.SessionDate, daysAhead int) (domain.AvailabilityWindow, error) {
	if g.cachePort != nil {
		if window, exists := g.cachePort.GetAvailabilityWindow(ctx, speakerID, from); exists {
			return window, nil
		}
	}

	seen := g.generation(speakerID)
	window, err := g.store.GetAvailabilityWindow(ctx, speakerID, from, daysAhead)
	if err != nil {
		return nil, err
	}

	if g.cachePort != nil {
		g.storeIfCurrent(speakerID, seen, func() {
			g.cachePort.StoreAvailabilityWindow(ctx, speakerID, from, window)
		})
	}
	return window, nil
}
