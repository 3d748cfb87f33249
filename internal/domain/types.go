package domain

import "time"

// Priority levels, derived from deadline proximity and description keywords.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Task statuses. "Past due" is spelled the way it renders; it is set only by
// the deadline sweep. Trash is a soft delete.
const (
	StatusPending   = "pending"
	StatusDoing     = "doing"
	StatusCompleted = "completed"
	StatusPastDue   = "Past due"
	StatusTrash     = "trash"
)

type Task struct {
	ID              string
	WorkspaceID     string
	Title           string
	Description     string
	Deadline        time.Time
	Priority        string
	Status          string
	AssignedTo      *string
	CreatedBy       string
	ReminderSent    bool
	OverdueNotified bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Workspace struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type User struct {
	ID       string
	Username string
	Email    string
	IsActive bool
}
