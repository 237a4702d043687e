package out

import (
	"context"

	"github.com/suchimauz/speaker-session-booking/internal/core/domain"
)

// SpeakerStorePort внешнее хранилище спикеров и записей на сессии.
// CreateAssignment должен быть атомарным: из двух одновременных вызовов
// для одной пары (спикер, дата) успешен только один, второй получает domain.ErrConflictOnCommit.
type SpeakerStorePort interface {
	GetSpeaker(ctx context.Context, speakerID string) (*domain.Speaker, error)
	SearchSpeakers(ctx context.Context, filter domain.SpeakerFilter) ([]domain.Speaker, error)

	CheckAvailability(ctx context.Context, speakerID string, date domain.SessionDate) (bool, error)
	CreateAssignment(ctx context.Context, speakerID string, date domain.SessionDate, specialty domain.Specialty) (domain.Assignment, error)

	// Окно занятости на daysAhead дней начиная с from, может быть разреженным
	GetAvailabilityWindow(ctx context.Context, speakerID string, from domain.SessionDate, daysAhead int) (domain.AvailabilityWindow, error)

	// Записи спикера по возрастанию даты сессии
	ListAssignments(ctx context.Context, speakerID string) ([]domain.Assignment, error)
}
