package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/suchimauz/speaker-session-booking/internal/utils"
)

// SessionDate календарная дата сессии без времени, каноническая форма YYYY-MM-DD.
// Значение сравнимо и может быть ключом map.
type SessionDate struct {
	year  int
	month time.Month
	day   int
}

func NewSessionDate(year int, month time.Month, day int) SessionDate {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf берет год, месяц и день из now в его собственной таймзоне,
// поэтому время суток никогда не влияет на сравнение.
func DateOf(now time.Time) SessionDate {
	y, m, d := now.Date()
	return SessionDate{year: y, month: m, day: d}
}

func ParseSessionDate(str string) (SessionDate, error) {
	if str == "" {
		return SessionDate{}, fmt.Errorf("empty session date: %w", ErrInvalidInput)
	}

	parsed, err := utils.ParseDate(str, time.UTC)
	if err != nil {
		return SessionDate{}, fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}

	return DateOf(parsed), nil
}

func (d SessionDate) IsZero() bool {
	return d == SessionDate{}
}

func (d SessionDate) Time() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

func (d SessionDate) AddDays(days int) SessionDate {
	return DateOf(d.Time().AddDate(0, 0, days))
}

func (d SessionDate) Before(other SessionDate) bool {
	return d.Time().Before(other.Time())
}

func (d SessionDate) After(other SessionDate) bool {
	return d.Time().After(other.Time())
}

func (d SessionDate) Equal(other SessionDate) bool {
	return d == other
}

func (d SessionDate) Weekday() time.Weekday {
	return d.Time().Weekday()
}

func (d SessionDate) Day() int {
	return d.day
}

func (d SessionDate) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format(utils.DateLayout)
}

func (d SessionDate) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return json.Marshal(nil)
	}
	return json.Marshal(d.String())
}

func (d *SessionDate) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = SessionDate{}
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("failed to decode session date: %w", err)
	}

	parsed, err := ParseSessionDate(str)
	if err != nil {
		return err
	}

	*d = parsed
	return nil
}

// Today текущая дата относительно now.
func Today(now time.Time) SessionDate {
	return DateOf(now)
}

// MinBookableDate минимальная дата, доступная для записи: завтра.
func MinBookableDate(now time.Time) SessionDate {
	return DateOf(utils.StartNextDay(now))
}
