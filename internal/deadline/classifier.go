package deadline

import "time"

// Clock supplies the reference instant.
type Clock func() time.Time

// Annotation is the derived view of one deadline at one instant.
type Annotation struct {
	Status   Status
	Variant  Variant
	Label    string
	DaysLeft *int
}

// Classifier binds the package functions to a clock.
type Classifier struct {
	clock Clock
}

// NewClassifier returns a classifier reading the given clock, or the wall clock when nil.
func NewClassifier(clock Clock) *Classifier {
	if clock == nil {
		clock = time.Now
	}
	return &Classifier{clock: clock}
}

// Now samples the clock.
func (c *Classifier) Now() time.Time {
	return c.clock()
}

// Classify returns the status of deadline as of the current clock reading.
func (c *Classifier) Classify(deadline *time.Time) Status {
	return Classify(deadline, c.clock())
}

// RelativeLabel returns the relative label as of the current clock reading.
func (c *Classifier) RelativeLabel(deadline time.Time) string {
	return RelativeLabel(deadline, c.clock())
}

// Annotate samples the clock once and derives every display attribute from that reading.
func (c *Classifier) Annotate(deadline *time.Time) Annotation {
	return AnnotateAt(deadline, c.clock())
}

// AnnotateAt derives the annotation for a fixed instant.
func AnnotateAt(deadline *time.Time, now time.Time) Annotation {
	status := Classify(deadline, now)
	annotation := Annotation{
		Status:  status,
		Variant: VariantFor(status),
	}
	if HasDeadline(deadline) {
		days := DaysUntil(*deadline, now)
		annotation.DaysLeft = &days
		annotation.Label = RelativeLabel(*deadline, now)
	}
	return annotation
}
