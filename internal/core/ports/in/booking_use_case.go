package in

import (
	"context"

	"github.com/google/uuid"
	"github.com/suchimauz/speaker-session-booking/internal/core/domain"
)

type BookingUseCase interface {
	// Сессии бронирования: одна сессия на одного организатора
	OpenSession(ctx context.Context) (uuid.UUID, error)
	CloseSession(ctx context.Context, sessionID uuid.UUID) error

	// Сигнал выбора спикера из списка
	PublishSpeakerSelection(ctx context.Context, sessionID uuid.UUID, selection domain.SpeakerSelection) error

	SelectDate(ctx context.Context, sessionID uuid.UUID, date domain.SessionDate) (domain.Outcome, domain.BookingWorkflowState, error)
	Commit(ctx context.Context, sessionID uuid.UUID) (domain.Assignment, error)
	RefreshCalendar(ctx context.Context, sessionID uuid.UUID) (domain.CalendarProjection, error)

	Snapshot(ctx context.Context, sessionID uuid.UUID) (domain.BookingWorkflowState, error)
	Calendar(ctx context.Context, sessionID uuid.UUID) (domain.CalendarProjection, error)
	DrainNotifications(ctx context.Context, sessionID uuid.UUID) ([]domain.Notification, error)

	// Поиск спикеров по имени и специализации
	SearchSpeakers(ctx context.Context, filter domain.SpeakerFilter) ([]domain.Speaker, error)
	ListAssignments(ctx context.Context, speakerID string) ([]domain.Assignment, error)
}
