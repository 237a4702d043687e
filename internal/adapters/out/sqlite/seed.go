package sqlite

import (
	"context"

	"github.com/suchimauz/speaker-session-booking/internal/core/domain"
)

// DemoSpeakers набор спикеров для локального окружения.
var DemoSpeakers = []domain.Speaker{
	{ID: "a0S5g00000AbCdE1", Name: "Priya Raman", Specialty: domain.SpecialtyApex, Bio: "Governor limits and async Apex patterns.", Level: "Expert"},
	{ID: "a0S5g00000AbCdE2", Name: "Marcus Bell", Specialty: domain.SpecialtyLWC, Bio: "Component composition and wire adapters.", Level: "Intermediate"},
	{ID: "a0S5g00000AbCdE3", Name: "Elena Sokolova", Specialty: domain.SpecialtyIntegrations, Bio: "Platform events, CDC and middleware.", Level: "Expert"},
	{ID: "a0S5g00000AbCdE4", Name: "Tom Okafor", Specialty: domain.SpecialtyArchitecture, Bio: "Multi-org strategy and data modelling.", Level: "Beginner"},
}

func (s *SqliteStore) Seed(ctx context.Context, speakers []domain.Speaker) error {
	for _, speaker := range speakers {
		if err := s.UpsertSpeaker(ctx, speaker); err != nil {
			return err
		}
	}
	return nil
}
