package domain

type AvailabilityVerdict string

const (
	VerdictUnknown     AvailabilityVerdict = "unknown"
	VerdictAvailable   AvailabilityVerdict = "available"
	VerdictUnavailable AvailabilityVerdict = "unavailable"
)

type OutcomeKind string

const (
	OutcomeAvailable        OutcomeKind = "available"
	OutcomeUnavailable      OutcomeKind = "unavailable"
	OutcomeRejectedPastDate OutcomeKind = "rejected_past_date"
	OutcomeCheckFailed      OutcomeKind = "check_failed"
	OutcomeInvalidInput     OutcomeKind = "invalid_input"
)

// Outcome результат проверки даты для пары (спикер, дата).
type Outcome struct {
	Kind  OutcomeKind `json:"kind"`
	Cause error       `json:"-"`
}

func (o Outcome) Verdict() AvailabilityVerdict {
	switch o.Kind {
	case OutcomeAvailable:
		return VerdictAvailable
	case OutcomeUnavailable:
		return VerdictUnavailable
	default:
		return VerdictUnknown
	}
}

func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeRejectedPastDate:
		return ErrPastDate
	case OutcomeInvalidInput:
		if o.Cause != nil {
			return o.Cause
		}
		return ErrInvalidInput
	case OutcomeCheckFailed:
		return o.Cause
	default:
		return nil
	}
}
