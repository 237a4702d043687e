package domain

type WorkflowPhase string

const (
	PhaseNoSpeaker       WorkflowPhase = "no_speaker"
	PhaseSpeakerSelected WorkflowPhase = "speaker_selected"
	PhaseDateSelected    WorkflowPhase = "date_selected"
	PhaseDateValidated   WorkflowPhase = "date_validated"
	PhaseCommitting      WorkflowPhase = "committing"
)

// BookingWorkflowState состояние записи одной сессии бронирования.
// Committing может стать true только при Verdict == Available и Checking == false
// для той же пары (спикер, дата), что дала вердикт.
type BookingWorkflowState struct {
	Speaker          *Speaker            `json:"speaker"`
	SpeakerName      string              `json:"speakerName,omitempty"`
	Date             SessionDate         `json:"selectedDate"`
	Verdict          AvailabilityVerdict `json:"verdict"`
	PastDate         bool                `json:"isOldDate"`
	Checking         bool                `json:"checkingAvailability"`
	Committing       bool                `json:"creatingAssignment"`
	CalendarLoading  bool                `json:"calendarLoading"`
	LastAssignmentID string              `json:"lastAssignmentId,omitempty"`
}

func NewBookingWorkflowState() BookingWorkflowState {
	return BookingWorkflowState{Verdict: VerdictUnknown}
}

func (s BookingWorkflowState) HasSpeaker() bool {
	return s.Speaker != nil
}

func (s BookingWorkflowState) Phase() WorkflowPhase {
	switch {
	case s.Speaker == nil:
		return PhaseNoSpeaker
	case s.Committing:
		return PhaseCommitting
	case s.Date.IsZero():
		return PhaseSpeakerSelected
	case s.Verdict == VerdictUnknown:
		return PhaseDateSelected
	default:
		return PhaseDateValidated
	}
}

// CanCommit повторяет условие кнопки создания записи.
func (s BookingWorkflowState) CanCommit() bool {
	return s.Speaker != nil &&
		!s.Date.IsZero() &&
		s.Verdict == VerdictAvailable &&
		!s.Checking &&
		!s.Committing
}

// Clone возвращает копию, не разделяющую память со спикером исходного состояния.
func (s BookingWorkflowState) Clone() BookingWorkflowState {
	out := s
	if s.Speaker != nil {
		speaker := *s.Speaker
		out.Speaker = &speaker
	}
	return out
}
