package board

import (
	"slices"
	"sort"

	"github.com/Adarsh9315/task-palette-organize/domain"
)

// Drop is the outcome of dragging a task card. A nil Destination means the
// card was released outside any column.
type Drop struct {
	TaskID      string               `json:"taskId"`
	Source      domain.DropLocation  `json:"source"`
	Destination *domain.DropLocation `json:"destination,omitempty"`
}

// TaskMigration moves one task out of a column that is being deleted.
type TaskMigration struct {
	TaskID string
	Patch  domain.TaskPatch
}

// ColumnReorder assigns a new order index to a column.
type ColumnReorder struct {
	ColumnID string
	Order    int
}

// ColumnDeletePlan lists the writes that delete a column without orphaning
// tasks: migrations first, then the delete, then reindexing of the columns
// that followed it.
type ColumnDeletePlan struct {
	Column     domain.Column
	Fallback   domain.Column
	Migrations []TaskMigration
	Reindex    []ColumnReorder
}

// Resolver turns drag-and-drop gestures and column removals into mutations.
// It is pure: it reads snapshots and never touches the cache.
type Resolver struct{}

// ResolveDrop returns the status patch a drop implies, or nil when the drop
// changes nothing that is persisted. Reordering inside a column is not
// persisted, so only cross-column drops produce a patch.
func (Resolver) ResolveDrop(boardID string, columns []domain.Column, tasks []domain.Task, d Drop) (*domain.TaskPatch, error) {
	if d.Destination == nil {
		return nil, nil
	}
	dst := *d.Destination
	if dst == d.Source {
		return nil, nil
	}
	i := slices.IndexFunc(tasks, func(t domain.Task) bool { return t.ID == d.TaskID })
	if i < 0 {
		return nil, &domain.NotFoundError{Kind: domain.EntityTask, ID: d.TaskID}
	}
	if dst.Status == d.Source.Status {
		return nil, nil
	}
	if !slices.ContainsFunc(columns, func(c domain.Column) bool { return c.Status == dst.Status }) {
		return nil, &domain.ConflictError{BoardID: boardID, Status: dst.Status}
	}
	if tasks[i].Status == dst.Status {
		return nil, nil
	}
	status := dst.Status
	return &domain.TaskPatch{Status: &status}, nil
}

// PlanColumnDelete plans the removal of columnID. Tasks move to fallbackID, or
// to the first remaining column by order index when fallbackID is empty.
func (Resolver) PlanColumnDelete(boardID string, columns []domain.Column, tasks []domain.Task, columnID, fallbackID string) (ColumnDeletePlan, error) {
	cols := sortedColumns(columns)
	i := slices.IndexFunc(cols, func(c domain.Column) bool { return c.ID == columnID })
	if i < 0 {
		return ColumnDeletePlan{}, &domain.NotFoundError{Kind: domain.EntityColumn, ID: columnID}
	}
	if len(cols) == 1 {
		return ColumnDeletePlan{}, &domain.LastColumnError{BoardID: boardID, ColumnID: columnID}
	}
	plan := ColumnDeletePlan{Column: cols[i]}
	remaining := slices.Delete(slices.Clone(cols), i, i+1)

	if fallbackID == "" {
		plan.Fallback = remaining[0]
	} else {
		if fallbackID == columnID {
			return ColumnDeletePlan{}, &domain.ValidationError{Field: "fallbackColumnId", Reason: "must differ from the deleted column"}
		}
		j := slices.IndexFunc(remaining, func(c domain.Column) bool { return c.ID == fallbackID })
		if j < 0 {
			return ColumnDeletePlan{}, &domain.NotFoundError{Kind: domain.EntityColumn, ID: fallbackID}
		}
		plan.Fallback = remaining[j]
	}

	for _, t := range tasks {
		if t.Status != plan.Column.Status {
			continue
		}
		status := plan.Fallback.Status
		plan.Migrations = append(plan.Migrations, TaskMigration{TaskID: t.ID, Patch: domain.TaskPatch{Status: &status}})
	}
	plan.Reindex = reindex(remaining)
	return plan, nil
}

// PlanColumnMove returns the order updates for dragging the column at index
// from to index to, keeping indices contiguous.
func (Resolver) PlanColumnMove(columns []domain.Column, from, to int) ([]ColumnReorder, error) {
	cols := sortedColumns(columns)
	if from < 0 || from >= len(cols) {
		return nil, &domain.ValidationError{Field: "from", Reason: "out of range"}
	}
	if to < 0 || to >= len(cols) {
		return nil, &domain.ValidationError{Field: "to", Reason: "out of range"}
	}
	if from == to {
		return nil, nil
	}
	moved := cols[from]
	cols = slices.Delete(cols, from, from+1)
	cols = slices.Insert(cols, to, moved)
	return reindex(cols), nil
}

func reindex(cols []domain.Column) []ColumnReorder {
	var out []ColumnReorder
	for i, c := range cols {
		if c.Order != i {
			out = append(out, ColumnReorder{ColumnID: c.ID, Order: i})
		}
	}
	return out
}

func sortedColumns(columns []domain.Column) []domain.Column {
	cols := slices.Clone(columns)
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Order < cols[j].Order })
	return cols
}
