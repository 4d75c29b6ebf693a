// Package deadline classifies homework deadlines relative to a point in time,
// renders human-relative labels and orders collections for display.
//
// Every function takes the reference instant explicitly. Classifier binds a
// clock for callers that want "as of now" behaviour.
package deadline

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// DueSoonDays is the inclusive forward window, in ceiling days, flagged as due soon.
const DueSoonDays = 3

const msPerDay = 24 * 60 * 60 * 1000

// AbsoluteLayout formats deadlines that cannot be expressed relatively.
const AbsoluteLayout = "Jan 2, 2006"

// Status is the time-relative urgency of a deadline.
type Status string

const (
	StatusNoDeadline Status = "no_deadline"
	StatusOverdue    Status = "overdue"
	StatusDueSoon    Status = "due_soon"
	StatusNormal     Status = "normal"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusOverdue, StatusDueSoon, StatusNormal, StatusNoDeadline}

// ParseStatus resolves a status from its wire name.
func ParseStatus(value string) (Status, bool) {
	for _, status := range Statuses {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// Variant is the badge style a client renders for a status.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantSecondary   Variant = "secondary"
	VariantDestructive Variant = "destructive"
	VariantSuccess     Variant = "success"
	VariantWarning     Variant = "warning"
)

// Dated is implemented by anything carrying an optional deadline.
type Dated interface {
	DeadlineAt() *time.Time
}

// HasDeadline reports whether the pointer holds a usable instant. Zero times count as absent.
func HasDeadline(deadline *time.Time) bool {
	return deadline != nil && !deadline.IsZero()
}

// DaysUntil returns the ceiling of the millisecond difference in whole days.
// A deadline 49 hours away is 3 days away; one an hour ago is 0.
func DaysUntil(deadline, now time.Time) int {
	diff := deadline.Sub(now).Milliseconds()
	return int(math.Ceil(float64(diff) / msPerDay))
}

// Classify maps a deadline to its urgency as of now.
func Classify(deadline *time.Time, now time.Time) Status {
	if !HasDeadline(deadline) {
		return StatusNoDeadline
	}
	if deadline.Before(now) {
		return StatusOverdue
	}

	days := DaysUntil(*deadline, now)
	if days >= 0 && days <= DueSoonDays {
		return StatusDueSoon
	}
	return StatusNormal
}

// RelativeLabel renders the deadline relative to now, e.g. "Tomorrow" or "3 days ago".
func RelativeLabel(deadline, now time.Time) string {
	if deadline.IsZero() || now.IsZero() {
		return AbsoluteLabel(deadline)
	}

	days := DaysUntil(deadline, now)
	switch {
	case days == 0:
		return "Today"
	case days == 1:
		return "Tomorrow"
	case days == -1:
		return "Yesterday"
	case days > 1:
		return fmt.Sprintf("In %d days", days)
	case days < -1:
		return fmt.Sprintf("%d days ago", -days)
	default:
		return AbsoluteLabel(deadline)
	}
}

// AbsoluteLabel renders the calendar date with a short month name.
func AbsoluteLabel(deadline time.Time) string {
	return deadline.Format(AbsoluteLayout)
}

// VariantFor returns the badge variant for a status.
func VariantFor(status Status) Variant {
	switch status {
	case StatusOverdue:
		return VariantDestructive
	case StatusDueSoon:
		return VariantWarning
	case StatusNoDeadline:
		return VariantSecondary
	case StatusNormal:
		return VariantDefault
	default:
		return VariantDefault
	}
}

// SortByDeadline returns a copy of items with undated items first, then by
// ascending deadline. Items comparing equal keep their input order.
func SortByDeadline[T Dated](items []T) []T {
	sorted := make([]T, len(items))
	copy(sorted, items)

	sort.SliceStable(sorted, func(i, j int) bool {
		return compareDeadlines(sorted[i].DeadlineAt(), sorted[j].DeadlineAt()) < 0
	})

	return sorted
}

func compareDeadlines(a, b *time.Time) int {
	hasA, hasB := HasDeadline(a), HasDeadline(b)
	switch {
	case !hasA && !hasB:
		return 0
	case !hasA:
		return -1
	case !hasB:
		return 1
	}
	return a.Compare(*b)
}
