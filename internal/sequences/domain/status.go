// Package domain defines the enrollment execution state machine.
package domain

// Status is the lifecycle state of one enrollment execution.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusOpened    Status = "opened"
	StatusClicked   Status = "clicked"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Happy-path progression order. Terminal failure states sit outside the rank.
var statusRank = map[Status]int{
	StatusScheduled: 0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusOpened:    3,
	StatusClicked:   4,
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusClicked || s == StatusFailed || s == StatusCancelled
}

// Rank returns the happy-path position of a status, or -1 for failure states.
func (s Status) Rank() int {
	if rank, ok := statusRank[s]; ok {
		return rank
	}
	return -1
}

// CanAdvanceTo reports whether a callback may move an execution from current
// to target. Advancement is monotonic: a target at or behind the current
// state is an idempotent no-op, and failure states never regress.
func CanAdvanceTo(current, target Status) bool {
	if current == StatusFailed || current == StatusCancelled {
		return false
	}
	currentRank, targetRank := current.Rank(), target.Rank()
	if currentRank < 0 || targetRank < 0 {
		return false
	}
	// Engagement callbacks only make sense for executions that were sent.
	if current == StatusScheduled {
		return false
	}
	return targetRank > currentRank
}

// PrecedingStatuses returns the statuses an execution may hold for a callback
// targeting the given status to apply. Used to build guarded UPDATEs so
// concurrent callbacks never regress an execution.
func PrecedingStatuses(target Status) []Status {
	targetRank := target.Rank()
	if targetRank < 2 {
		return nil
	}
	var out []Status
	for status, rank := range statusRank {
		if rank >= 1 && rank < targetRank {
			out = append(out, status)
		}
	}
	return out
}

// CallbackStatus maps an inbound transport event to a target status.
// Returns ok=false for unknown events.
func CallbackStatus(event string) (Status, bool) {
	switch event {
	case "delivered":
		return StatusDelivered, true
	case "opened":
		return StatusOpened, true
	case "clicked":
		return StatusClicked, true
	case "bounced":
		return StatusFailed, true
	default:
		return "", false
	}
}
