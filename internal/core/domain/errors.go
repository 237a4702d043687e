package domain

import "errors"

var (
	// Нарушение контракта вызова: пустой спикер или дата
	ErrInvalidInput = errors.New("invalid input")
	// Дата в прошлом или сегодня, запрос в хранилище не делается
	ErrPastDate = errors.New("session date is not in the future")
	// Временная ошибка хранилища на любой из операций
	ErrStoreUnavailable = errors.New("store unavailable")
	// Слот занят между проверкой и созданием записи
	ErrConflictOnCommit = errors.New("speaker already assigned to session date")

	ErrSpeakerNotFound    = errors.New("speaker not found")
	ErrCommitNotPermitted = errors.New("commit not permitted in current state")
	ErrOperationInFlight  = errors.New("operation already in flight")
	ErrStaleResult        = errors.New("result discarded: selection changed")
	ErrSessionNotFound    = errors.New("booking session not found")
	ErrSessionLimit       = errors.New("booking session limit reached")
)
