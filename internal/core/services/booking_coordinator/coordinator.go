package booking_coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/suchimauz/speaker-session-booking/internal/core/domain"
	"github.com/suchimauz/speaker-session-booking/internal/core/ports/out"
	"github.com/suchimauz/speaker-session-booking/internal/core/services/availability_validator"
	"github.com/suchimauz/speaker-session-booking/internal/core/services/calendar_projector"
	"github.com/suchimauz/speaker-session-booking/internal/core/services/pubsub"
)

type Clock func() time.Time

// Coordinator ведет одну сессию бронирования: выбор спикера, выбор даты, проверка, создание записи.
// Мьютекс никогда не удерживается во время вызова хранилища. Каждая проверка помечается
// порядковым номером, ответы для устаревшего выбора отбрасываются.
type Coordinator struct {
	store     out.SpeakerStorePort
	validator *availability_validator.Validator
	clock     Clock
	logger    out.LoggerPort

	mu             sync.Mutex
	state          domain.BookingWorkflowState
	calendar       domain.CalendarProjection
	speakerSeq     uint64
	checkSeq       uint64
	refreshSeq     uint64
	cancelCheck    context.CancelFunc
	commitInFlight bool

	snapshots     *pubsub.Topic[domain.BookingWorkflowState]
	notifications *pubsub.Topic[domain.Notification]
}

type Option func(*Coordinator)

func WithClock(clock Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

func NewCoordinator(store out.SpeakerStorePort, logger out.LoggerPort, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:         store,
		clock:         time.Now,
		logger:        logger.WithModule("BookingCoordinator"),
		state:         domain.NewBookingWorkflowState(),
		calendar:      domain.CalendarProjection{},
		snapshots:     pubsub.NewTopic[domain.BookingWorkflowState](),
		notifications: pubsub.NewTopic[domain.Notification](),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.validator = availability_validator.NewValidator(store, c.logger)

	return c
}

// Run подписывается на канал выбора спикера на время жизни ctx и отписывается при выходе.
func (c *Coordinator) Run(ctx context.Context, selections *pubsub.Topic[domain.SpeakerSelection], buffer int) error {
	return c.Consume(ctx, selections.Subscribe(buffer))
}

// Consume обрабатывает уже оформленную подписку, владение подпиской переходит координатору.
func (c *Coordinator) Consume(ctx context.Context, sub *pubsub.Subscription[domain.SpeakerSelection]) error {
	defer sub.Unsubscribe()

	c.logger.Debug("booking.selection.subscribed", out.LogFields{})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case selection, ok := <-sub.C():
			if !ok {
				return nil
			}
			if selection.SpeakerID == "" {
				c.logger.Warn("booking.selection.empty_speaker", out.LogFields{
					"speakerName": selection.SpeakerName,
				})
				continue
			}

			c.logger.Info("booking.selection.received", out.LogFields{
				"speakerId":   selection.SpeakerID,
				"speakerName": selection.SpeakerName,
			})

			if err := c.selectSpeaker(ctx, selection); err != nil && !errors.Is(err, domain.ErrStaleResult) {
				c.logger.Warn("booking.selection.failed", out.LogFields{
					"speakerId": selection.SpeakerID,
					"error":     err.Error(),
				})
			}
		}
	}
}

func (c *Coordinator) SelectSpeaker(ctx context.Context, speakerID string) error {
	return c.selectSpeaker(ctx, domain.SpeakerSelection{SpeakerID: speakerID})
}

func (c *Coordinator) selectSpeaker(ctx context.Context, selection domain.SpeakerSelection) error {
	if selection.SpeakerID == "" {
		c.logger.Error("booking.speaker.invalid_input", out.LogFields{})
		return fmt.Errorf("booking.speaker.select: empty speaker id: %w", domain.ErrInvalidInput)
	}

	c.mu.Lock()
	c.speakerSeq++
	seq := c.speakerSeq
	c.resetLocked()
	c.publishLocked()
	c.mu.Unlock()

	speaker, err := c.store.GetSpeaker(ctx, selection.SpeakerID)

	c.mu.Lock()
	if seq != c.speakerSeq {
		c.mu.Unlock()
		c.logger.Debug("booking.speaker.stale", out.LogFields{
			"speakerId": selection.SpeakerID,
		})
		return fmt.Errorf("booking.speaker.select: %w", domain.ErrStaleResult)
	}

	if err != nil {
		c.resetLocked()
		c.publishLocked()
		c.notifyLocked(domain.Notification{
			Title:    "Error",
			Message:  "Failed to load speaker details",
			Severity: domain.SeverityError,
		})
		c.mu.Unlock()

		c.logger.Error("booking.speaker.fetch_failed", out.LogFields{
			"speakerId": selection.SpeakerID,
			"error":     err.Error(),
		})
		return storeError("booking.speaker.fetch_failed", err)
	}

	selected := *speaker
	c.state.Speaker = &selected
	c.state.SpeakerName = selected.Name
	if selection.SpeakerName != "" {
		c.state.SpeakerName = selection.SpeakerName
	}
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info("booking.speaker.selected", out.LogFields{
		"speakerId": speaker.ID,
		"specialty": speaker.Specialty,
	})

	// Ошибка календаря не отменяет выбор спикера, календарь просто очищается
	if _, err := c.RefreshCalendar(ctx); err != nil && !errors.Is(err, domain.ErrStaleResult) {
		c.logger.Warn("booking.speaker.calendar_failed", out.LogFields{
			"speakerId": speaker.ID,
			"error":     err.Error(),
		})
	}

	return nil
}

func (c *Coordinator) SelectDate(ctx context.Context, date domain.SessionDate) (domain.Outcome, error) {
	c.mu.Lock()

	if c.commitInFlight {
		c.mu.Unlock()
		return domain.Outcome{}, fmt.Errorf("booking.date.select: commit in progress: %w", domain.ErrOperationInFlight)
	}

	// Любая смена даты сразу делает прежний вердикт недействительным
	c.invalidateCheckLocked()
	c.state.Date = date
	c.state.Verdict = domain.VerdictUnknown
	c.state.PastDate = false

	if c.state.Speaker == nil || date.IsZero() {
		hasSpeaker := c.state.Speaker != nil
		c.publishLocked()
		c.mu.Unlock()

		c.logger.Error("booking.date.invalid_input", out.LogFields{
			"date":       date.String(),
			"hasSpeaker": hasSpeaker,
		})
		outcome := domain.Outcome{
			Kind:  domain.OutcomeInvalidInput,
			Cause: fmt.Errorf("booking.date.select: speaker and date are required: %w", domain.ErrInvalidInput),
		}
		return outcome, outcome.Err()
	}

	now := c.clock()
	speakerID := c.state.Speaker.ID

	if !c.validator.Eligible(date, now) {
		c.state.PastDate = true
		c.publishLocked()
		c.notifyLocked(domain.Notification{
			Title:    "You Chose a Past Date!",
			Message:  fmt.Sprintf("Cannot book for %s. Please select a future date.", date),
			Severity: domain.SeverityError,
		})
		c.mu.Unlock()

		return domain.Outcome{Kind: domain.OutcomeRejectedPastDate}, fmt.Errorf("booking.date.select %s: %w", date, domain.ErrPastDate)
	}

	c.checkSeq++
	seq := c.checkSeq
	checkCtx, cancel := context.WithCancel(ctx)
	c.cancelCheck = cancel
	c.state.Checking = true
	c.publishLocked()
	c.mu.Unlock()

	outcome := c.validator.Validate(checkCtx, speakerID, date, now)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.checkSeq {
		c.logger.Debug("booking.date.stale", out.LogFields{
			"speakerId": speakerID,
			"date":      date.String(),
			"outcome":   outcome.Kind,
		})
		return outcome, fmt.Errorf("booking.date.select %s: %w", date, domain.ErrStaleResult)
	}

	c.cancelCheck = nil
	c.state.Checking = false

	switch outcome.Kind {
	case domain.OutcomeAvailable:
		c.state.Verdict = domain.VerdictAvailable
		c.notifyLocked(domain.Notification{
			Title:    "Date is Available",
			Message:  "Slot is Free to book!",
			Severity: domain.SeveritySuccess,
		})
	case domain.OutcomeUnavailable:
		c.state.Verdict = domain.VerdictUnavailable
		c.notifyLocked(domain.Notification{
			Title:    "Slot is Booked",
			Message:  "Please Try Another Date",
			Severity: domain.SeverityWarning,
		})
	default:
		c.state.Verdict = domain.VerdictUnknown
		c.notifyLocked(domain.Notification{
			Title:    "Error!",
			Message:  "Availability check failed",
			Severity: domain.SeverityError,
		})
	}
	c.publishLocked()

	return outcome, outcome.Err()
}

// Commit создает запись только при вердикте Available для текущей пары и без операций в полете.
// Нарушение условия не доходит до хранилища.
func (c *Coordinator) Commit(ctx context.Context) (domain.Assignment, error) {
	c.mu.Lock()

	if !c.state.CanCommit() || c.commitInFlight {
		fields := out.LogFields{
			"verdict":    c.state.Verdict,
			"checking":   c.state.Checking,
			"committing": c.commitInFlight,
			"date":       c.state.Date.String(),
			"hasSpeaker": c.state.Speaker != nil,
		}
		c.mu.Unlock()

		c.logger.Error("booking.commit.rejected", fields)
		return domain.Assignment{}, fmt.Errorf("booking.commit: %w", domain.ErrCommitNotPermitted)
	}

	speaker := *c.state.Speaker
	date := c.state.Date
	seq := c.speakerSeq

	c.commitInFlight = true
	c.state.Committing = true
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info("booking.commit.started", out.LogFields{
		"speakerId": speaker.ID,
		"date":      date.String(),
		"specialty": speaker.Specialty,
	})

	assignment, err := c.store.CreateAssignment(ctx, speaker.ID, date, speaker.Specialty)

	c.mu.Lock()
	c.commitInFlight = false
	c.state.Committing = false
	stale := seq != c.speakerSeq

	if err != nil {
		if !stale {
			// Дата остается, но вердикт надо получить заново
			c.state.Verdict = domain.VerdictUnknown
			c.notifyLocked(commitFailedNotification(err))
		}
		c.publishLocked()
		c.mu.Unlock()

		c.logger.Error("booking.commit.failed", out.LogFields{
			"speakerId": speaker.ID,
			"date":      date.String(),
			"error":     err.Error(),
		})
		return domain.Assignment{}, storeError("booking.commit.failed", err)
	}

	if stale {
		c.publishLocked()
		c.mu.Unlock()

		c.logger.Warn("booking.commit.speaker_changed", out.LogFields{
			"speakerId":    speaker.ID,
			"assignmentId": assignment.ID,
		})
		return assignment, nil
	}

	c.state.LastAssignmentID = assignment.ID
	c.state.Date = domain.SessionDate{}
	c.state.Verdict = domain.VerdictUnknown
	c.state.PastDate = false
	c.publishLocked()
	c.notifyLocked(domain.Notification{
		Title:    "Success!",
		Message:  "Assignment created successfully! Record ID: " + assignment.ID,
		Severity: domain.SeveritySuccess,
	})
	c.mu.Unlock()

	c.logger.Info("booking.commit.succeeded", out.LogFields{
		"speakerId":    speaker.ID,
		"date":         date.String(),
		"assignmentId": assignment.ID,
	})

	if _, err := c.RefreshCalendar(ctx); err != nil && !errors.Is(err, domain.ErrStaleResult) {
		c.logger.Warn("booking.commit.calendar_failed", out.LogFields{
			"speakerId": speaker.ID,
			"error":     err.Error(),
		})
	}

	return assignment, nil
}

// RefreshCalendar перестраивает календарь на 7 дней; при ошибке хранилища календарь очищается.
func (c *Coordinator) RefreshCalendar(ctx context.Context) (domain.CalendarProjection, error) {
	c.mu.Lock()

	if c.state.Speaker == nil {
		c.calendar = domain.CalendarProjection{}
		c.mu.Unlock()
		return domain.CalendarProjection{}, nil
	}

	speakerID := c.state.Speaker.ID
	seq := c.speakerSeq
	c.refreshSeq++
	refreshSeq := c.refreshSeq
	now := c.clock()

	c.state.CalendarLoading = true
	c.publishLocked()
	c.mu.Unlock()

	window, err := c.store.GetAvailabilityWindow(ctx, speakerID, domain.MinBookableDate(now), domain.CalendarDaysAhead)

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.speakerSeq || refreshSeq != c.refreshSeq {
		return c.calendar.Clone(), fmt.Errorf("booking.calendar.refresh: %w", domain.ErrStaleResult)
	}

	c.state.CalendarLoading = false

	if err != nil {
		c.calendar = domain.CalendarProjection{}
		c.publishLocked()
		c.notifyLocked(domain.Notification{
			Title:    "Error",
			Message:  "Failed to load calendar availability",
			Severity: domain.SeverityWarning,
		})

		c.logger.Error("booking.calendar.fetch_failed", out.LogFields{
			"speakerId": speakerID,
			"error":     err.Error(),
		})
		return domain.CalendarProjection{}, storeError("booking.calendar.fetch_failed", err)
	}

	c.calendar = calendar_projector.Project(window, now)
	c.publishLocked()

	c.logger.Debug("booking.calendar.refreshed", out.LogFields{
		"speakerId": speakerID,
		"entries":   len(window),
	})

	return c.calendar.Clone(), nil
}

func (c *Coordinator) Snapshot() domain.BookingWorkflowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

func (c *Coordinator) Calendar() domain.CalendarProjection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calendar.Clone()
}

func (c *Coordinator) SubscribeSnapshots(buffer int) *pubsub.Subscription[domain.BookingWorkflowState] {
	return c.snapshots.Subscribe(buffer)
}

func (c *Coordinator) SubscribeNotifications(buffer int) *pubsub.Subscription[domain.Notification] {
	return c.notifications.Subscribe(buffer)
}

// Close отменяет проверку в полете и закрывает каналы наблюдателей.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.invalidateCheckLocked()
	c.mu.Unlock()

	c.snapshots.Close()
	c.notifications.Close()
}

// resetLocked сбрасывает выбор целиком. Флаг коммита в полете сохраняется,
// чтобы не допустить второй коммит до завершения первого.
func (c *Coordinator) resetLocked() {
	c.invalidateCheckLocked()
	c.refreshSeq++
	c.state = domain.NewBookingWorkflowState()
	c.state.Committing = c.commitInFlight
	c.calendar = domain.CalendarProjection{}
}

func (c *Coordinator) invalidateCheckLocked() {
	c.checkSeq++
	if c.cancelCheck != nil {
		c.cancelCheck()
		c.cancelCheck = nil
	}
	c.state.Checking = false
}

func (c *Coordinator) publishLocked() {
	c.snapshots.Publish(c.state.Clone())
}

func (c *Coordinator) notifyLocked(n domain.Notification) {
	c.notifications.Publish(n)
}

func commitFailedNotification(err error) domain.Notification {
	if errors.Is(err, domain.ErrConflictOnCommit) {
		return domain.Notification{
			Title:    "Error",
			Message:  "Failed to create assignment as the selected Speaker is already assigned to selected date",
			Severity: domain.SeverityError,
		}
	}
	return domain.Notification{
		Title:    "Error",
		Message:  "Failed to create assignment",
		Severity: domain.SeverityError,
	}
}

// storeError оставляет известные ошибки хранилища как есть, остальные считает временной недоступностью.
func storeError(event string, err error) error {
	if errors.Is(err, domain.ErrConflictOnCommit) ||
		errors.Is(err, domain.ErrSpeakerNotFound) ||
		errors.Is(err, domain.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", event, err)
	}
	return fmt.Errorf("%s: %w: %w", event, domain.ErrStoreUnavailable, err)
}
