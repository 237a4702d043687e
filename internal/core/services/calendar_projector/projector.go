package calendar_projector

import (
	"time"

	"github.com/suchimauz/speaker-session-booking/internal/core/domain"
)

var dayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Project строит календарь на domain.CalendarDaysAhead дней начиная с завтрашнего.
// Дата, которой нет в window, считается свободной: это осознанная политика fail-open.
// Порядок дней хронологический, пересортировка потребителю не нужна.
func Project(window domain.AvailabilityWindow, now time.Time) domain.CalendarProjection {
	start := domain.MinBookableDate(now)
	days := make(domain.CalendarProjection, 0, domain.CalendarDaysAhead)

	for i := 0; i < domain.CalendarDaysAhead; i++ {
		date := start.AddDays(i)

		available, known := window[date]
		if !known {
			available = true
		}

		status := domain.DayStatusAvailable
		if !available {
			status = domain.DayStatusBooked
		}

		days = append(days, domain.DayCell{
			Date:       date,
			DayLabel:   dayNames[date.Weekday()],
			DateNumber: date.Day(),
			Available:  available,
			Status:     status,
		})
	}

	return days
}
