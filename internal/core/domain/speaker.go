package domain

import "strings"

type Specialty string

const (
	SpecialtyApex         Specialty = "Apex"
	SpecialtyLWC          Specialty = "LWC"
	SpecialtyIntegrations Specialty = "Integrations"
	SpecialtyArchitecture Specialty = "Architecture"
)

var SpecialtyOptions = []Specialty{
	SpecialtyApex,
	SpecialtyLWC,
	SpecialtyIntegrations,
	SpecialtyArchitecture,
}

type Speaker struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Specialty Specialty `json:"specialty"`
	Bio       string    `json:"bio"`
	Level     string    `json:"level"`
}

type SpeakerFilter struct {
	Name      string    `json:"name"`
	Specialty Specialty `json:"specialty"`
}

// Matches повторяет правила поиска хранилища: подстрока имени без учета регистра
// и точное совпадение специализации, пустые поля фильтра не ограничивают выборку.
func (f SpeakerFilter) Matches(s Speaker) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(f.Name)) {
		return false
	}
	if f.Specialty != "" && s.Specialty != f.Specialty {
		return false
	}
	return true
}

// SpeakerSelection сообщение канала выбора спикера.
type SpeakerSelection struct {
	SpeakerID   string `json:"speakerId"`
	SpeakerName string `json:"speakerName"`
}
