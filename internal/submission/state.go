package submission

import "fmt"

// Status is the sequence lifecycle state.
//
// The state machine:
//
//	Draft -> Assembling -> ValidatedPass | ValidatedFail
//	ValidatedPass -> Submitted -> Acked1 -> Acked2Success | Acked2Error -> Acked3
//
// ValidatedFail is terminal for this attempt; the caller corrects documents
// and starts over as a NEW sequence (numbers are never reused).
// Submitted and later states are advanced exclusively by the acknowledgment
// poller, never by a user-facing call.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusAssembling    Status = "assembling"
	StatusValidatedPass Status = "validated_pass"
	StatusValidatedFail Status = "validated_fail"
	StatusSubmitted     Status = "submitted"
	StatusAcked1        Status = "acked1"
	StatusAcked2Success Status = "acked2_success"
	StatusAcked2Error   Status = "acked2_error"
	StatusAcked3        Status = "acked3"
)

// statusRank orders states for monotonicity checks. No transition may move
// a sequence to a state with a lower rank than its current one.
var statusRank = map[Status]int{
	StatusDraft:         0,
	StatusAssembling:    1,
	StatusValidatedPass: 2,
	StatusValidatedFail: 2,
	StatusSubmitted:     3,
	StatusAcked1:        4,
	StatusAcked2Success: 5,
	StatusAcked2Error:   5,
	StatusAcked3:        6,
}

// Rank returns the monotonicity rank of a status, or -1 for an unknown one.
func (s Status) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// Terminal reports whether no further transitions are possible.
// ValidatedFail ends this attempt; Acked3 is the centre receipt.
// Acked2Error is NOT terminal: the centre can still issue its receipt
// after a processing error, and the poller must pick it up.
func (s Status) Terminal() bool {
	return s == StatusValidatedFail || s == StatusAcked3
}

// Pollable reports whether the acknowledgment poller should still watch
// this sequence's receipt folder.
func (s Status) Pollable() bool {
	switch s {
	case StatusSubmitted, StatusAcked1, StatusAcked2Success, StatusAcked2Error:
		return true
	}
	return false
}

// validTransitions enumerates every legal edge in the state machine.
var validTransitions = map[Status][]Status{
	StatusDraft:         {StatusAssembling},
	StatusAssembling:    {StatusValidatedPass, StatusValidatedFail},
	StatusValidatedPass: {StatusSubmitted},
	StatusSubmitted:     {StatusAcked1, StatusAcked2Success, StatusAcked2Error, StatusAcked3},
	StatusAcked1:        {StatusAcked2Success, StatusAcked2Error, StatusAcked3},
	StatusAcked2Success: {StatusAcked3},
	StatusAcked2Error:   {StatusAcked3},
}

// CanTransition reports whether from -> to is a legal edge.
//
// The Submitted/Acked edges deliberately allow stage skips: an out-of-order
// acknowledgment is still recorded (the poller flags it as an anomaly), but
// a backward move is never legal.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a StateError if from -> to is not a legal edge.
func CheckTransition(seqID int64, from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return &StateError{
		SequenceID: seqID,
		From:       from,
		To:         to,
	}
}

// StateError reports an illegal state transition attempt.
type StateError struct {
	SequenceID int64
	From       Status
	To         Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("sequence %d: illegal transition %s -> %s", e.SequenceID, e.From, e.To)
}

// AckTarget maps an acknowledgment stage (and its parsed status) to the
// sequence state it drives.
func AckTarget(stage AckStage, status string) (Status, error) {
	switch stage {
	case StageReceipt:
		return StatusAcked1, nil
	case StageProcessing:
		if status == "error" {
			return StatusAcked2Error, nil
		}
		return StatusAcked2Success, nil
	case StageCentre:
		return StatusAcked3, nil
	}
	return "", fmt.Errorf("unknown acknowledgment stage %q", stage)
}

// FormatNumber renders a sequence number in its canonical zero-padded form.
func FormatNumber(n int) string {
	return fmt.Sprintf("%04d", n)
}
