package submission

import (
	"errors"
	"testing"
)

func TestCanTransition_HappyPath(t *testing.T) {
	path := []Status{
		StatusDraft,
		StatusAssembling,
		StatusValidatedPass,
		StatusSubmitted,
		StatusAcked1,
		StatusAcked2Success,
		StatusAcked3,
	}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Errorf("expected %s -> %s to be legal", path[i], path[i+1])
		}
	}
}

func TestCanTransition_RejectsBackward(t *testing.T) {
	cases := []struct{ from, to Status }{
		{StatusSubmitted, StatusDraft},
		{StatusAcked1, StatusSubmitted},
		{StatusAcked3, StatusAcked1},
		{StatusValidatedPass, StatusAssembling},
		{StatusValidatedFail, StatusValidatedPass},
	}
	for _, c := range cases {
		if CanTransition(c.from, c.to) {
			t.Errorf("expected %s -> %s to be illegal", c.from, c.to)
		}
	}
}

// Monotonicity: every legal edge moves to an equal-or-higher rank.
// No transition, given any input, may move a sequence to an earlier state.
func TestTransitions_Monotonic(t *testing.T) {
	for from, tos := range validTransitions {
		for _, to := range tos {
			if to.Rank() < from.Rank() {
				t.Errorf("edge %s -> %s decreases rank (%d -> %d)",
					from, to, from.Rank(), to.Rank())
			}
		}
	}
}

func TestCheckTransition_ReturnsStateError(t *testing.T) {
	err := CheckTransition(7, StatusAcked3, StatusDraft)
	if err == nil {
		t.Fatal("expected error for backward transition")
	}
	var se *StateError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StateError, got %T", err)
	}
	if se.SequenceID != 7 {
		t.Errorf("SequenceID = %d, want 7", se.SequenceID)
	}
}

func TestAckTarget(t *testing.T) {
	cases := []struct {
		stage  AckStage
		status string
		want   Status
	}{
		{StageReceipt, "success", StatusAcked1},
		{StageProcessing, "success", StatusAcked2Success},
		{StageProcessing, "error", StatusAcked2Error},
		{StageCentre, "success", StatusAcked3},
	}
	for _, c := range cases {
		got, err := AckTarget(c.stage, c.status)
		if err != nil {
			t.Fatalf("AckTarget(%s, %s) error: %v", c.stage, c.status, err)
		}
		if got != c.want {
			t.Errorf("AckTarget(%s, %s) = %s, want %s", c.stage, c.status, got, c.want)
		}
	}

	if _, err := AckTarget("bogus", ""); err == nil {
		t.Error("expected error for unknown stage")
	}
}

func TestPollable(t *testing.T) {
	pollable := []Status{StatusSubmitted, StatusAcked1, StatusAcked2Success, StatusAcked2Error}
	for _, s := range pollable {
		if !s.Pollable() {
			t.Errorf("%s should be pollable", s)
		}
	}
	notPollable := []Status{StatusDraft, StatusValidatedPass, StatusValidatedFail, StatusAcked3}
	for _, s := range notPollable {
		if s.Pollable() {
			t.Errorf("%s should not be pollable", s)
		}
	}
}

func TestPostSubmitEdgesRemainPollable(t *testing.T) {
	// Past Submitted a sequence only advances through the acknowledgment
	// poller, so any state with a legal outgoing edge must still be
	// pollable and must not be terminal.
	for from, targets := range validTransitions {
		if from.Rank() < StatusSubmitted.Rank() || len(targets) == 0 {
			continue
		}
		if from.Terminal() {
			t.Errorf("%s has outgoing edges but reports terminal", from)
		}
		if !from.Pollable() {
			t.Errorf("%s has outgoing edges but is not pollable", from)
		}
	}
}

func TestErrorCode_Is(t *testing.T) {
	err := NewError(ErrCodeQCFailure, "doc %d failed size check", 42)
	if !errors.Is(err, &Error{Code: ErrCodeQCFailure}) {
		t.Error("errors.Is should match by code")
	}
	if errors.Is(err, &Error{Code: ErrCodeTransportAuth}) {
		t.Error("errors.Is should not match a different code")
	}
	if CodeOf(err) != ErrCodeQCFailure {
		t.Errorf("CodeOf = %s, want %s", CodeOf(err), ErrCodeQCFailure)
	}
}

func TestFormatNumber(t *testing.T) {
	if got := FormatNumber(7); got != "0007" {
		t.Errorf("FormatNumber(7) = %q, want %q", got, "0007")
	}
	if got := FormatNumber(1234); got != "1234" {
		t.Errorf("FormatNumber(1234) = %q, want %q", got, "1234")
	}
}

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"m1\\us\\cover.pdf":  "m1/us/cover.pdf",
		"./m1/us/cover.pdf":  "m1/us/cover.pdf",
		"m1//us/./cover.pdf": "m1/us/cover.pdf",
	}
	for in, want := range cases {
		if got := CanonicalPath(in); got != want {
			t.Errorf("CanonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}
