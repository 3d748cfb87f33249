package priority

import (
	"strings"
	"time"

	"taskpulse/internal/domain"
)

// Classify derives a task's priority from how much time remains before its
// deadline, then applies keyword overrides from the description. Pure
// function of its inputs; callers pass now explicitly so create/edit and
// tests agree on the clock.
func Classify(description string, deadline, now time.Time) string {
	remaining := deadline.Sub(now)

	level := domain.PriorityLow
	switch {
	case remaining < 3*24*time.Hour:
		level = domain.PriorityHigh
	case remaining < 7*24*time.Hour:
		level = domain.PriorityMedium
	}

	desc := strings.ToLower(description)
	if strings.Contains(desc, "urgent") || strings.Contains(desc, "emergency") {
		level = domain.PriorityHigh
	} else if strings.Contains(desc, "important") {
		if level == domain.PriorityLow {
			level = domain.PriorityMedium
		}
	}

	return level
}
