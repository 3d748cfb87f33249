package priority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"taskpulse/internal/domain"
)

func TestClassifyDeadlineThresholds(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		deadline time.Time
		want     string
	}{
		{"two hours out", now.Add(2 * time.Hour), domain.PriorityHigh},
		{"just under three days", now.Add(3*24*time.Hour - time.Minute), domain.PriorityHigh},
		{"exactly three days", now.Add(3 * 24 * time.Hour), domain.PriorityMedium},
		{"five days out", now.Add(5 * 24 * time.Hour), domain.PriorityMedium},
		{"just under seven days", now.Add(7*24*time.Hour - time.Minute), domain.PriorityMedium},
		{"exactly seven days", now.Add(7 * 24 * time.Hour), domain.PriorityLow},
		{"a month out", now.Add(30 * 24 * time.Hour), domain.PriorityLow},
		{"already past", now.Add(-2 * time.Hour), domain.PriorityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify("write report", tt.deadline, now))
		})
	}
}

func TestClassifyKeywordOverrides(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	farOut := now.Add(10 * 24 * time.Hour)

	tests := []struct {
		name        string
		description string
		deadline    time.Time
		want        string
	}{
		{"urgent forces high", "Fix urgent bug", farOut, domain.PriorityHigh},
		{"emergency forces high", "EMERGENCY server down", farOut, domain.PriorityHigh},
		{"urgent case-insensitive", "This is URGENT", farOut, domain.PriorityHigh},
		{"important upgrades low", "important cleanup", farOut, domain.PriorityMedium},
		{"important keeps medium", "important review", now.Add(5 * 24 * time.Hour), domain.PriorityMedium},
		{"important keeps high", "important fix", now.Add(time.Hour), domain.PriorityHigh},
		{"no keywords", "routine cleanup", farOut, domain.PriorityLow},
		{"urgent beats important", "urgent and important", farOut, domain.PriorityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.description, tt.deadline, now))
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(4 * 24 * time.Hour)

	first := Classify("important deploy", deadline, now)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify("important deploy", deadline, now))
	}
}
