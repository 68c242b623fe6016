package domain

import (
	"slices"
	"time"
)

// Priority ranks a task; the empty value means no priority was set.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is empty or one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case "", PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a unit of work placed in a column through its status key.
type Task struct {
	ID          string     `json:"id"`
	BoardID     string     `json:"boardId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    Priority   `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	AssignedTo  []string   `json:"assignedTo,omitempty"`
	Comments    int        `json:"comments,omitempty"`
	Attachments int        `json:"attachments,omitempty"`
	Subtasks    []Subtask  `json:"subtasks,omitempty"`
	CreatedAt   time.Time  `json:"createdAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt,omitempty"`
}

// Clone returns a deep copy so snapshots never alias cache state.
func (t Task) Clone() Task {
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	t.AssignedTo = slices.Clone(t.AssignedTo)
	t.Subtasks = slices.Clone(t.Subtasks)
	return t
}

func (t *Task) Validate() error {
	if isBlank(t.Title) {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	if isBlank(t.Status) {
		return &ValidationError{Field: "status", Reason: "is required"}
	}
	if !t.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: "must be low, medium or high"}
	}
	if t.Comments < 0 || t.Attachments < 0 {
		return &ValidationError{Field: "counters", Reason: "must not be negative"}
	}
	return nil
}

// TaskPatch carries partial updates for a task. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	AssignedTo  *[]string  `json:"assignedTo,omitempty"`
}

func (p TaskPatch) Validate() error {
	if p.Title != nil && isBlank(*p.Title) {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if p.Status != nil && isBlank(*p.Status) {
		return &ValidationError{Field: "status", Reason: "must not be empty"}
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: "must be low, medium or high"}
	}
	return nil
}

func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.DueDate == nil && p.AssignedTo == nil
}

// Merge folds next on top of p; fields set in next win.
func (p TaskPatch) Merge(next TaskPatch) TaskPatch {
	if next.Title != nil {
		p.Title = next.Title
	}
	if next.Description != nil {
		p.Description = next.Description
	}
	if next.Status != nil {
		p.Status = next.Status
	}
	if next.Priority != nil {
		p.Priority = next.Priority
	}
	if next.DueDate != nil {
		p.DueDate = next.DueDate
	}
	if next.AssignedTo != nil {
		p.AssignedTo = next.AssignedTo
	}
	return p
}

func (p TaskPatch) Apply(t Task) Task {
	t = t.Clone()
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		d := *p.DueDate
		t.DueDate = &d
	}
	if p.AssignedTo != nil {
		t.AssignedTo = slices.Clone(*p.AssignedTo)
	}
	return t
}

// Subtask is a checklist item of a task.
type Subtask struct {
	ID        string `json:"id"`
	TaskID    string `json:"taskId"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// SubtaskPatch carries partial updates for a subtask.
type SubtaskPatch struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

func (s *Subtask) Validate() error {
	if isBlank(s.Title) {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	return nil
}

func (p SubtaskPatch) Validate() error {
	if p.Title != nil && isBlank(*p.Title) {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	return nil
}

func (p SubtaskPatch) Empty() bool {
	return p.Title == nil && p.Completed == nil
}

func (p SubtaskPatch) Merge(next SubtaskPatch) SubtaskPatch {
	if next.Title != nil {
		p.Title = next.Title
	}
	if next.Completed != nil {
		p.Completed = next.Completed
	}
	return p
}

func (p SubtaskPatch) Apply(s Subtask) Subtask {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Completed != nil {
		s.Completed = *p.Completed
	}
	return s
}
