package availability_validator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suchimauz/speaker-session-booking/internal/core/domain"
	"github.com/suchimauz/speaker-session-booking/internal/core/ports/out"
)

// Validator проверяет дату сессии: сначала локально на прошлое, затем запросом в хранилище.
// Не хранит состояние и безопасен для параллельного использования.
type Validator struct {
	store  out.SpeakerStorePort
	logger out.LoggerPort
}

func NewValidator(store out.SpeakerStorePort, logger out.LoggerPort) *Validator {
	return &Validator{
		store:  store,
		logger: logger.WithModule("AvailabilityValidator"),
	}
}

// Eligible true только для дат строго после сегодняшней.
func (v *Validator) Eligible(date domain.SessionDate, now time.Time) bool {
	return date.After(domain.Today(now))
}

func (v *Validator) MinDate(now time.Time) domain.SessionDate {
	return domain.MinBookableDate(now)
}

func (v *Validator) Validate(ctx context.Context, speakerID string, date domain.SessionDate, now time.Time) domain.Outcome {
	if speakerID == "" || date.IsZero() {
		v.logger.Error("availability.validate.invalid_input", out.LogFields{
			"speakerId": speakerID,
			"date":      date.String(),
		})
		return domain.Outcome{
			Kind:  domain.OutcomeInvalidInput,
			Cause: fmt.Errorf("availability.validate: speaker and date are required: %w", domain.ErrInvalidInput),
		}
	}

	// Прошлые даты отсекаются до любого сетевого вызова
	if !v.Eligible(date, now) {
		v.logger.Debug("availability.validate.past_date", out.LogFields{
			"speakerId": speakerID,
			"date":      date.String(),
			"today":     domain.Today(now).String(),
		})
		return domain.Outcome{Kind: domain.OutcomeRejectedPastDate}
	}

	available, err := v.store.CheckAvailability(ctx, speakerID, date)
	if err != nil {
		fields := out.LogFields{
			"speakerId": speakerID,
			"date":      date.String(),
			"error":     err.Error(),
		}
		// Отмена приходит, когда проверку вытеснил выбор другой даты
		if errors.Is(err, context.Canceled) {
			v.logger.Debug("availability.validate.canceled", fields)
		} else {
			v.logger.Error("availability.validate.check_failed", fields)
		}
		return domain.Outcome{
			Kind:  domain.OutcomeCheckFailed,
			Cause: fmt.Errorf("availability.validate.check_failed: %w", wrapStoreError(err)),
		}
	}

	v.logger.Debug("availability.validate.checked", out.LogFields{
		"speakerId": speakerID,
		"date":      date.String(),
		"available": available,
	})

	if available {
		return domain.Outcome{Kind: domain.OutcomeAvailable}
	}
	return domain.Outcome{Kind: domain.OutcomeUnavailable}
}

func wrapStoreError(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
