package domain

import (
	"time"

	"github.com/smallbiznis/boxoffice/internal/config"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusFailed, StatusExpired, StatusCancelled},
	StatusPaid:    {StatusRefunded},
}

// CanTransition reports whether from -> to is an edge of the order state machine.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusFailed, StatusExpired, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// SweepAction is what the reminder sweep should do with a pending order.
type SweepAction int

const (
	SweepNone SweepAction = iota
	SweepFirstReminder
	SweepSecondReminder
	SweepExpire
)

func (a SweepAction) String() string {
	switch a {
	case SweepFirstReminder:
		return "first_reminder"
	case SweepSecondReminder:
		return "second_reminder"
	case SweepExpire:
		return "expire"
	default:
		return "none"
	}
}

const MaxReminders = 2

// NextSweepAction decides the reminder or expiry step due for o at now.
// Only pending orders ever get an action. An order flagged for operator
// attention was already charged by the gateway and is left to the operator.
func NextSweepAction(o Order, policy config.ReminderPolicy, now time.Time) SweepAction {
	if o.Status != StatusPending || o.IsInvitation || o.AttentionReason != nil {
		return SweepNone
	}
	switch {
	case o.ReminderCount == 0:
		if !now.Before(o.CreatedAt.Add(policy.FirstReminderAfter)) {
			return SweepFirstReminder
		}
	case o.ReminderCount == 1 && o.ReminderSentAt != nil:
		if !now.Before(o.ReminderSentAt.Add(policy.SecondReminderAfter)) {
			return SweepSecondReminder
		}
	case o.ReminderCount >= MaxReminders && o.ReminderSentAt != nil:
		if !now.Before(o.ReminderSentAt.Add(policy.ExpireAfter)) {
			return SweepExpire
		}
	}
	return SweepNone
}
