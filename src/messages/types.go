package messages

import (
	"errors"

	"swiftlingo/src/translate"
)

// Message is the base interface for every pipeline event handed to a sink.
type Message interface {
	Type() string
}

// MessageType constants for type identification
const (
	TypeDelivered    = "Delivered"
	TypeFailed       = "Failed"
	TypeAborted      = "Aborted"
	TypePhaseChanged = "PhaseChanged"
)

// Phase is the lifecycle state of one pipeline run.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseCapturing   Phase = "capturing"
	PhaseTranslating Phase = "translating"
	PhaseDelivered   Phase = "delivered"
	PhaseFailed      Phase = "failed"
	PhaseAborted     Phase = "aborted"
	PhaseCancelled   Phase = "cancelled"
)

// Terminal reports whether no further transition can follow p.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseDelivered, PhaseFailed, PhaseAborted, PhaseCancelled:
		return true
	}
	return false
}

// PhaseChanged - posted by a worker when its run enters a new phase
type PhaseChanged struct {
	Seq    uint64
	Action string
	Phase  Phase
}

func (m PhaseChanged) Type() string { return TypePhaseChanged }

// Delivered - the run produced a translation
type Delivered struct {
	Seq    uint64
	Action string
	Span   translate.TextSpan
	Target string
	Result translate.Result
}

func (m Delivered) Type() string { return TypeDelivered }

// Failed - every provider in the chain failed or was skipped
type Failed struct {
	Seq     uint64
	Action  string
	Span    translate.TextSpan
	Target  string
	Failure *translate.Failure
}

func (m Failed) Type() string { return TypeFailed }

// AbortReason says why a run stopped before translating.
type AbortReason string

const (
	AbortNoSelection   AbortReason = "NoSelection"
	AbortBusy          AbortReason = "Busy"
	AbortTimeout       AbortReason = "Timeout"
	AbortDenied        AbortReason = "PlatformDenied"
	AbortCaptureFailed AbortReason = "CaptureFailed"
	AbortSuperseded    AbortReason = "Superseded"
)

// ErrBusy is carried by Aborted(Busy).
var ErrBusy = errors.New("busy, please retry")

// ErrSuperseded is carried by Aborted(Superseded).
var ErrSuperseded = errors.New("cancelled by a newer request")

// Aborted - the run ended without reaching the providers
type Aborted struct {
	Seq    uint64
	Action string
	Reason AbortReason
	Err    error
}

func (m Aborted) Type() string { return TypeAborted }

// Silent reports whether the abort must not be shown to the user.
func (m Aborted) Silent() bool {
	return m.Reason == AbortNoSelection || m.Reason == AbortSuperseded
}

func (m Aborted) Error() string {
	if m.Err != nil {
		return string(m.Reason) + ": " + m.Err.Error()
	}
	return string(m.Reason)
}
