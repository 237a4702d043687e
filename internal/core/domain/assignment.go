package domain

import "time"

type Assignment struct {
	ID          string      `json:"id"`
	SpeakerID   string      `json:"speakerId"`
	SessionDate SessionDate `json:"sessionDate"`
	Specialty   Specialty   `json:"specialty"`
	CreatedAt   time.Time   `json:"createdAt"`
}
