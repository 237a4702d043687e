package utils

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// StartCurrentDay возвращает начало дня (00:00) в таймзоне исходного времени.
func StartCurrentDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartNextDay возвращает новую дату, где день увеличен на 1, время установлено на 00:00, а таймзона остается прежней.
func StartNextDay(t time.Time) time.Time {
	return StartCurrentDay(t.AddDate(0, 0, 1))
}

// ParseDate парсит дату из строки в формате RFC3339, если не удается, то пробует дату со временем без таймзоны,
// а затем дату без времени. Для строк без таймзоны используется location.
func ParseDate(str string, location *time.Location) (time.Time, error) {
	if location == nil {
		location = time.UTC
	}

	parsedDate, err := time.Parse(time.RFC3339, str)
	if err == nil {
		return parsedDate, nil
	}

	parsedDate, err = time.ParseInLocation("2006-01-02T15:04:05", str, location)
	if err == nil {
		return parsedDate, nil
	}

	parsedDate, err = time.ParseInLocation(DateLayout, str, location)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", str, err)
	}

	return parsedDate, nil
}
