package domain

import "github.com/bytedance/sonic"

const (
	EntityTask    = "task"
	EntityColumn  = "column"
	EntitySubtask = "subtask"
)

const (
	TaskCreated    = "task-created"
	TaskUpdated    = "task-updated"
	TaskDeleted    = "task-deleted"
	TaskMoved      = "task-moved"
	ColumnCreated  = "column-created"
	ColumnUpdated  = "column-updated"
	ColumnDeleted  = "column-deleted"
	ColumnMoved    = "column-moved"
	SubtaskCreated = "subtask-created"
	SubtaskUpdated = "subtask-updated"
	SubtaskDeleted = "subtask-deleted"
)

// Command is a client write request against one board.
type Command struct {
	IdempotencyKey string                 `json:"idempotencyKey"`
	EntityType     string                 `json:"entityType"`
	Type           string                 `json:"type"`
	EntityID       string                 `json:"entityId,omitempty"`
	Data           sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp      int64                  `json:"timestamp"`
}

// DropLocation is one end of a drag: the droppable column status and the index in it.
type DropLocation struct {
	Status string `json:"status"`
	Index  int    `json:"index"`
}

// TaskMovedData is the payload of a task-moved command.
type TaskMovedData struct {
	Source      DropLocation  `json:"source"`
	Destination *DropLocation `json:"destination,omitempty"`
}

// ColumnDeletedData is the payload of a column-deleted command.
type ColumnDeletedData struct {
	FallbackColumnID string `json:"fallbackColumnId,omitempty"`
}

// ColumnMovedData is the payload of a column-moved command.
type ColumnMovedData struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// SubtaskCreatedData is the payload of a subtask-created command.
type SubtaskCreatedData struct {
	TaskID string `json:"taskId"`
	Title  string `json:"title"`
}
