package board

import (
	"context"

	"github.com/Adarsh9315/task-palette-organize/domain"
)

// Remote is the persistent store behind a board. Implementations map their
// native failures onto the domain error types.
type Remote interface {
	ListBoards(ctx context.Context, ownerID string) ([]domain.Board, error)
	GetBoard(ctx context.Context, id string) (domain.Board, error)
	CreateBoard(ctx context.Context, b domain.Board) (domain.Board, error)
	UpdateBoard(ctx context.Context, id string, patch domain.BoardPatch) (domain.Board, error)
	// DeleteBoard removes the board with its columns, tasks and subtasks.
	DeleteBoard(ctx context.Context, id string) error

	// ListColumns returns the columns of a board ordered by order index.
	ListColumns(ctx context.Context, boardID string) ([]domain.Column, error)
	CreateColumn(ctx context.Context, col domain.Column, boardID string) (domain.Column, error)
	UpdateColumn(ctx context.Context, id string, patch domain.ColumnPatch) (domain.Column, error)
	DeleteColumn(ctx context.Context, id string) error

	ListTasks(ctx context.Context, boardID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	// DeleteTask removes the task and its subtasks.
	DeleteTask(ctx context.Context, id string) error

	ListSubtasks(ctx context.Context, taskID string) ([]domain.Subtask, error)
	CreateSubtask(ctx context.Context, s domain.Subtask, taskID string) (domain.Subtask, error)
	UpdateSubtask(ctx context.Context, id string, patch domain.SubtaskPatch) (domain.Subtask, error)
	DeleteSubtask(ctx context.Context, id string) error
}
