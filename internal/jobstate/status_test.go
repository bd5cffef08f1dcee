package jobstate

import "testing"

func TestNext(t *testing.T) {
	tests := []struct {
		name     string
		from     Status
		event    Event
		expected Status
		ok       bool
	}{
		{"queued starts planning", StatusQueued, EventStartPlanning, StatusPlanning, true},
		{"queued cancels", StatusQueued, EventCancel, StatusCancelled, true},
		{"queued fails", StatusQueued, EventFail, StatusFailed, true},
		{"planning succeeds to coding", StatusPlanning, EventPlanSucceeded, StatusCoding, true},
		{"planning fails", StatusPlanning, EventPlanFailed, StatusFailed, true},
		{"coding succeeds to reviewing", StatusCoding, EventCodeSucceeded, StatusReviewing, true},
		{"coding fails", StatusCoding, EventCodeFailed, StatusFailed, true},
		{"review approved to pr-open", StatusReviewing, EventReviewApproved, StatusPROpen, true},
		{"review rejected back to coding", StatusReviewing, EventReviewRejected, StatusCoding, true},
		{"review failed", StatusReviewing, EventReviewFailed, StatusFailed, true},
		{"review exhausted fails, not a loop", StatusReviewing, EventReviewExhausted, StatusFailed, true},
		{"pr opened completes", StatusPROpen, EventPROpened, StatusCompleted, true},
		{"pr open fails", StatusPROpen, EventPRFailed, StatusFailed, true},
		{"completed has no outgoing transitions", StatusCompleted, EventCancel, "", false},
		{"failed has no outgoing transitions", StatusFailed, EventFail, "", false},
		{"cancelled has no outgoing transitions", StatusCancelled, EventCancel, "", false},
		{"unrecognized status", Status("bogus"), EventStartPlanning, "", false},
		{"recognized status, wrong event", StatusQueued, EventPlanSucceeded, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Next(tt.from, tt.event)
			if ok != tt.ok {
				t.Fatalf("Next() ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.expected {
				t.Errorf("Next() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%v) = false, want true", s)
		}
	}
	for _, s := range []Status{StatusQueued, StatusPlanning, StatusCoding, StatusReviewing, StatusPROpen} {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%v) = true, want false", s)
		}
	}
}

func TestApplyReturnsTypedError(t *testing.T) {
	_, err := Apply(StatusCompleted, EventCancel)
	if err == nil {
		t.Fatal("Apply() expected error from terminal status, got nil")
	}
	var invalid *ErrInvalidTransition
	if !asInvalidTransition(err, &invalid) {
		t.Fatalf("Apply() error is not *ErrInvalidTransition: %v", err)
	}
	if invalid.From != StatusCompleted || invalid.Event != EventCancel {
		t.Errorf("ErrInvalidTransition = %+v, want From=%v Event=%v", invalid, StatusCompleted, EventCancel)
	}
}

func asInvalidTransition(err error, target **ErrInvalidTransition) bool {
	e, ok := err.(*ErrInvalidTransition)
	if !ok {
		return false
	}
	*target = e
	return true
}

func TestNoTerminalStatusHasOutgoingTransitions(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		if _, ok := transitions[s]; ok {
			t.Errorf("terminal status %v unexpectedly has transition table entries", s)
		}
	}
}

func TestEntryStatusCoversEveryStage(t *testing.T) {
	want := map[Stage]Status{
		StagePlanning:  StatusQueued,
		StageCoding:    StatusCoding,
		StageReviewing: StatusReviewing,
		StagePROpen:    StatusPROpen,
	}
	for stage, status := range want {
		if got := EntryStatus(stage); got != status {
			t.Errorf("EntryStatus(%v) = %v, want %v", stage, got, status)
		}
	}
}
