package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/speaker-session-booking/internal/config"
	"github.com/suchimauz/speaker-session-booking/internal/core/domain"
	"github.com/suchimauz/speaker-session-booking/internal/core/ports/in"
	"github.com/suchimauz/speaker-session-booking/internal/core/ports/out"
	"github.com/suchimauz/speaker-session-booking/internal/core/services/booking_coordinator"
	"github.com/suchimauz/speaker-session-booking/internal/core/services/pubsub"
)

var _ in.BookingUseCase = (*BookingService)(nil)

type bookingSession struct {
	id            uuid.UUID
	coordinator   *booking_coordinator.Coordinator
	selections    *pubsub.Topic[domain.SpeakerSelection]
	notifications *pubsub.Subscription[domain.Notification]
	cancel        context.CancelFunc
	done          chan struct{}
	openedAt      time.Time

	inboxMu sync.Mutex
}

type BookingService struct {
	store  out.SpeakerStorePort
	logger out.LoggerPort
	clock  booking_coordinator.Clock
	loc    *time.Location

	selectionBuffer    int
	notificationBuffer int
	maxSessions        int

	mu       sync.RWMutex
	sessions map[uuid.UUID]*bookingSession
}

type ServiceOption func(*BookingService)

func WithClock(clock booking_coordinator.Clock) ServiceOption {
	return func(s *BookingService) {
		s.clock = clock
	}
}

// WithLocation задает часовой пояс, в котором определяется "сегодня" для проверки прошедших дат
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *BookingService) {
		s.loc = loc
	}
}

func NewBookingService(
	store out.SpeakerStorePort,
	cachePort out.CachePort,
	cfg *config.Config,
	logger out.LoggerPort,
	opts ...ServiceOption,
) *BookingService {
	s := &BookingService{
		store:              NewStoreGateway(store, cachePort, logger),
		logger:             logger.WithModule("BookingService"),
		clock:              time.Now,
		selectionBuffer:    cfg.Booking.SelectionBuffer,
		notificationBuffer: cfg.Booking.NotificationBuffer,
		maxSessions:        cfg.Booking.MaxSessions,
		sessions:           make(map[uuid.UUID]*bookingSession),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.loc != nil {
		base, loc := s.clock, s.loc
		s.clock = func() time.Time {
			return base().In(loc)
		}
	}

	return s
}

func (s *BookingService) OpenSession(ctx context.Context) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		s.logger.Warn("booking.session.limit_reached", out.LogFields{
			"sessions": len(s.sessions),
		})
		return uuid.Nil, fmt.Errorf("booking.session.open: %w", domain.ErrSessionLimit)
	}

	id := uuid.New()
	coordinator := booking_coordinator.NewCoordinator(
		s.store,
		s.logger.WithFields(out.LogFields{"sessionId": id}),
		booking_coordinator.WithClock(s.clock),
	)

	// Сессия живет дольше запроса, который ее открыл
	runCtx, cancel := context.WithCancel(context.Background())
	session := &bookingSession{
		id:            id,
		coordinator:   coordinator,
		selections:    pubsub.NewTopic[domain.SpeakerSelection](),
		notifications: coordinator.SubscribeNotifications(s.notificationBuffer),
		cancel:        cancel,
		done:          make(chan struct{}),
		openedAt:      s.clock(),
	}

	// Подписка оформляется до возврата id, чтобы первый выбор спикера не потерялся
	sub := session.selections.Subscribe(s.selectionBuffer)
	go func() {
		defer close(session.done)
		if err := coordinator.Consume(runCtx, sub); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("booking.session.run_failed", out.LogFields{
				"sessionId": id,
				"error":     err.Error(),
			})
		}
	}()

	s.sessions[id] = session

	s.logger.Info("booking.session.opened", out.LogFields{
		"sessionId": id,
		"sessions":  len(s.sessions),
	})

	return id, nil
}

func (s *BookingService) CloseSession(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	session, exists := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("booking.session.close %s: %w", sessionID, domain.ErrSessionNotFound)
	}

	s.shutdownSession(session)

	s.logger.Info("booking.session.closed", out.LogFields{
		"sessionId": sessionID,
		"lifetime":  s.clock().Sub(session.openedAt).String(),
	})
	return nil
}

// Shutdown закрывает все сессии, используется при остановке сервиса
func (s *BookingService) Shutdown() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[uuid.UUID]*bookingSession)
	s.mu.Unlock()

	for _, session := range sessions {
		s.shutdownSession(session)
	}

	s.logger.Info("booking.service.shutdown", out.LogFields{
		"sessions": len(sessions),
	})
}

func (s *BookingService) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *BookingService) shutdownSession(session *bookingSession) {
	session.cancel()
	session.selections.Close()
	<-session.done
	session.notifications.Unsubscribe()
	session.coordinator.Close()
}

func (s *BookingService) PublishSpeakerSelection(ctx context.Context, sessionID uuid.UUID, selection domain.SpeakerSelection) error {
	if selection.SpeakerID == "" {
		return fmt.Errorf("booking.selection.publish: %w: empty speaker id", domain.ErrInvalidInput)
	}

	session, err := s.session(sessionID)
	if err != nil {
		return err
	}

	delivered := session.selections.Publish(selection)
	if delivered == 0 {
		s.logger.Warn("booking.selection.dropped", out.LogFields{
			"sessionId": sessionID,
			"speakerId": selection.SpeakerID,
		})
	}

	return nil
}

func (s *BookingService) SelectDate(ctx context.Context, sessionID uuid.UUID, date domain.SessionDate) (domain.Outcome, domain.BookingWorkflowState, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.Outcome{}, domain.BookingWorkflowState{}, err
	}

	outcome, err := session.coordinator.SelectDate(ctx, date)
	return outcome, session.coordinator.Snapshot(), err
}

func (s *BookingService) Commit(ctx context.Context, sessionID uuid.UUID) (domain.Assignment, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.Assignment{}, err
	}
	return session.coordinator.Commit(ctx)
}

func (s *BookingService) RefreshCalendar(ctx context.Context, sessionID uuid.UUID) (domain.CalendarProjection, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return session.coordinator.RefreshCalendar(ctx)
}

func (s *BookingService) Snapshot(ctx context.Context, sessionID uuid.UUID) (domain.BookingWorkflowState, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.BookingWorkflowState{}, err
	}
	return session.coordinator.Snapshot(), nil
}

func (s *BookingService) Calendar(ctx context.Context, sessionID uuid.UUID) (domain.CalendarProjection, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return session.coordinator.Calendar(), nil
}

// DrainNotifications забирает накопленные уведомления сессии в порядке появления.
// Буфер подписки ограничен, при переполнении старые уведомления не вытесняются, а новые теряются.
func (s *BookingService) DrainNotifications(ctx context.Context, sessionID uuid.UUID) ([]domain.Notification, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	session.inboxMu.Lock()
	defer session.inboxMu.Unlock()

	notifications := make([]domain.Notification, 0, len(session.notifications.C()))
	for {
		select {
		case n, ok := <-session.notifications.C():
			if !ok {
				return notifications, nil
			}
			notifications = append(notifications, n)
		default:
			return notifications, nil
		}
	}
}

func (s *BookingService) SearchSpeakers(ctx context.Context, filter domain.SpeakerFilter) ([]domain.Speaker, error) {
	speakers, err := s.store.SearchSpeakers(ctx, filter)
	if err != nil {
		s.logger.Error("booking.speakers.search_failed", out.LogFields{
			"name":      filter.Name,
			"specialty": filter.Specialty,
			"error":     err.Error(),
		})
		if errors.Is(err, domain.ErrStoreUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("booking.speakers.search_failed: %w: %w", domain.ErrStoreUnavailable, err)
	}

	s.logger.Debug("booking.speakers.search", out.LogFields{
		"name":      filter.Name,
		"specialty": filter.Specialty,
		"count":     len(speakers),
	})

	return speakers, nil
}

func (s *BookingService) ListAssignments(ctx context.Context, speakerID string) ([]domain.Assignment, error) {
	if speakerID == "" {
		return nil, fmt.Errorf("booking.assignments.list: empty speaker id: %w", domain.ErrInvalidInput)
	}

	if _, err := s.store.GetSpeaker(ctx, speakerID); err != nil {
		return nil, fmt.Errorf("booking.assignments.list: %w", err)
	}

	assignments, err := s.store.ListAssignments(ctx, speakerID)
	if err != nil {
		s.logger.Error("booking.assignments.list_failed", out.LogFields{
			"speakerId": speakerID,
			"error":     err.Error(),
		})
		if errors.Is(err, domain.ErrStoreUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("booking.assignments.list_failed: %w: %w", domain.ErrStoreUnavailable, err)
	}

	return assignments, nil
}

func (s *BookingService) session(sessionID uuid.UUID) (*bookingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("booking.session %s: %w", sessionID, domain.ErrSessionNotFound)
	}
	return session, nil
}

func isConflict(err error) bool {
	return errors.Is(err, domain.ErrConflictOnCommit)
}
