package domain

import (
	"sort"
	"testing"
)

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusClicked, StatusFailed, StatusCancelled} {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Status{StatusScheduled, StatusSent, StatusDelivered, StatusOpened} {
		if s.Terminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}

func TestCanAdvanceToIsMonotonic(t *testing.T) {
	if !CanAdvanceTo(StatusSent, StatusDelivered) {
		t.Fatal("sent -> delivered must advance")
	}
	if !CanAdvanceTo(StatusSent, StatusOpened) {
		t.Fatal("an early opened callback must still advance past delivered")
	}
	if CanAdvanceTo(StatusClicked, StatusDelivered) {
		t.Fatal("a late delivered callback must not regress a clicked execution")
	}
	if CanAdvanceTo(StatusDelivered, StatusDelivered) {
		t.Fatal("duplicate callbacks must be no-ops")
	}
}

func TestCanAdvanceToRejectsUnsentExecutions(t *testing.T) {
	if CanAdvanceTo(StatusScheduled, StatusDelivered) {
		t.Fatal("engagement callbacks must not apply before send")
	}
}

func TestCanAdvanceToNeverLeavesFailureStates(t *testing.T) {
	if CanAdvanceTo(StatusFailed, StatusDelivered) {
		t.Fatal("failed is terminal")
	}
	if CanAdvanceTo(StatusCancelled, StatusClicked) {
		t.Fatal("cancelled is terminal")
	}
}

func TestPrecedingStatuses(t *testing.T) {
	got := PrecedingStatuses(StatusOpened)
	sort.Slice(got, func(i, j int) bool { return got[i].Rank() < got[j].Rank() })

	if len(got) != 2 || got[0] != StatusSent || got[1] != StatusDelivered {
		t.Fatalf("unexpected preceding statuses for opened: %v", got)
	}
}

func TestCallbackStatusMapping(t *testing.T) {
	cases := map[string]Status{
		"delivered": StatusDelivered,
		"opened":    StatusOpened,
		"clicked":   StatusClicked,
		"bounced":   StatusFailed,
	}
	for event, want := range cases {
		got, ok := CallbackStatus(event)
		if !ok || got != want {
			t.Fatalf("event %q mapped to %q ok=%v", event, got, ok)
		}
	}
	if _, ok := CallbackStatus("unsubscribed"); ok {
		t.Fatal("unknown events must not map")
	}
}
