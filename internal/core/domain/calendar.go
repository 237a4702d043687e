package domain

// Календарь всегда строится на 7 дней начиная с завтрашнего
const CalendarDaysAhead = 7

type DayStatus string

const (
	DayStatusAvailable DayStatus = "Available"
	DayStatusBooked    DayStatus = "Booked"
)

// AvailabilityWindow разреженная карта занятости спикера: дата -> свободен ли день.
type AvailabilityWindow map[SessionDate]bool

type DayCell struct {
	Date       SessionDate `json:"date"`
	DayLabel   string      `json:"dayLabel"`
	DateNumber int         `json:"dateNumber"`
	Available  bool        `json:"isAvailable"`
	Status     DayStatus   `json:"status"`
}

type CalendarProjection []DayCell

func (p CalendarProjection) Clone() CalendarProjection {
	if p == nil {
		return CalendarProjection{}
	}
	out := make(CalendarProjection, len(p))
	copy(out, p)
	return out
}
