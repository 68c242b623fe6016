package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adarsh9315/task-palette-organize/board"
	"github.com/Adarsh9315/task-palette-organize/domain"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func openTestSQL(t *testing.T) *SQL {
	t.Helper()
	s, err := OpenSQL(context.Background(), filepath.Join(t.TempDir(), "nested", "boards.db"))
	if err != nil {
		t.Fatalf("open sql: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func seedSQLBoard(t *testing.T, s *SQL) (domain.Board, []domain.Column) {
	t.Helper()
	ctx := context.Background()
	b, err := s.CreateBoard(ctx, domain.Board{OwnerID: "u1", Title: "Roadmap"})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	var cols []domain.Column
	for _, c := range domain.DefaultColumns() {
		col, err := s.CreateColumn(ctx, c, b.ID)
		if err != nil {
			t.Fatalf("create column: %v", err)
		}
		cols = append(cols, col)
	}
	return b, cols
}

func expectNotFound(t *testing.T, err error) {
	t.Helper()
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestSQLMigrateIsIdempotent(t *testing.T) {
	s := openTestSQL(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestSQLBoardLifecycle(t *testing.T) {
	s := openTestSQL(t)
	ctx := context.Background()

	b, err := s.CreateBoard(ctx, domain.Board{OwnerID: "u1", Title: "Roadmap"})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	if b.ID == "" || b.Theme != domain.DefaultTheme || b.CreatedAt.IsZero() {
		t.Fatalf("unexpected board: %#v", b)
	}
	if _, err := s.CreateBoard(ctx, domain.Board{OwnerID: "u2", Title: "Other"}); err != nil {
		t.Fatalf("create board: %v", err)
	}

	boards, err := s.ListBoards(ctx, "u1")
	if err != nil {
		t.Fatalf("list boards: %v", err)
	}
	if len(boards) != 1 || boards[0].ID != b.ID {
		t.Fatalf("unexpected boards: %#v", boards)
	}

	updated, err := s.UpdateBoard(ctx, b.ID, domain.BoardPatch{Title: ptr("Renamed"), Theme: ptr("dark")})
	if err != nil {
		t.Fatalf("update board: %v", err)
	}
	if updated.Title != "Renamed" || updated.Theme != "dark" || updated.Description != "" {
		t.Fatalf("unexpected update: %#v", updated)
	}
	if _, err := s.UpdateBoard(ctx, "missing", domain.BoardPatch{Title: ptr("x")}); err == nil {
		t.Fatalf("expected error updating missing board")
	} else {
		expectNotFound(t, err)
	}

	var ve *domain.ValidationError
	if _, err := s.CreateBoard(ctx, domain.Board{OwnerID: "u1"}); !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := s.DeleteBoard(ctx, b.ID); err != nil {
		t.Fatalf("delete board: %v", err)
	}
	_, err = s.GetBoard(ctx, b.ID)
	expectNotFound(t, err)
	expectNotFound(t, s.DeleteBoard(ctx, b.ID))
}

func TestSQLColumnsOrderedAndUnique(t *testing.T) {
	s := openTestSQL(t)
	ctx := context.Background()
	b, cols := seedSQLBoard(t, s)

	if _, err := s.UpdateColumn(ctx, cols[0].ID, domain.ColumnPatch{Order: ptr(5)}); err != nil {
		t.Fatalf("update column: %v", err)
	}
	listed, err := s.ListColumns(ctx, b.ID)
	if err != nil {
		t.Fatalf("list columns: %v", err)
	}
	if len(listed) != 3 || listed[2].ID != cols[0].ID || listed[0].Status != "in-progress" {
		t.Fatalf("unexpected order: %#v", listed)
	}

	_, err = s.CreateColumn(ctx, domain.Column{Title: "Again", Status: "todo", Order: 3}, b.ID)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected duplicate status to be rejected, got %v", err)
	}

	_, err = s.CreateColumn(ctx, domain.Column{Title: "Orphan", Status: "x"}, "missing")
	expectNotFound(t, err)

	plain, err := s.CreateColumn(ctx, domain.Column{Title: "Review", Status: "review", Order: 3}, b.ID)
	if err != nil {
		t.Fatalf("create column: %v", err)
	}
	if plain.Color != domain.DefaultColumnColor || plain.BoardID != b.ID {
		t.Fatalf("unexpected column: %#v", plain)
	}
}

func TestSQLTaskFieldsRoundTrip(t *testing.T) {
	s := openTestSQL(t)
	ctx := context.Background()
	b, _ := seedSQLBoard(t, s)

	due := time.Date(2026, 11, 2, 9, 30, 0, 0, time.UTC)
	created, err := s.CreateTask(ctx, domain.Task{
		BoardID:     b.ID,
		Title:       "Write docs",
		Status:      "todo",
		Priority:    domain.Priority("high"),
		DueDate:     &due,
		AssignedTo:  []string{"u1", "u2"},
		Comments:    2,
		Attachments: 1,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	tasks, err := s.ListTasks(ctx, b.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	got := tasks[0]
	if got.ID != created.ID || got.Priority != "high" || got.Comments != 2 || got.Attachments != 1 {
		t.Fatalf("unexpected task: %#v", got)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Fatalf("unexpected due date: %v", got.DueDate)
	}
	if len(got.AssignedTo) != 2 || got.AssignedTo[1] != "u2" {
		t.Fatalf("unexpected assignees: %v", got.AssignedTo)
	}

	updated, err := s.UpdateTask(ctx, created.ID, domain.TaskPatch{Status: ptr("done"), AssignedTo: &[]string{}})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if updated.Status != "done" || len(updated.AssignedTo) != 0 || updated.Title != "Write docs" {
		t.Fatalf("unexpected update: %#v", updated)
	}

	_, err = s.UpdateTask(ctx, "missing", domain.TaskPatch{Title: ptr("x")})
	expectNotFound(t, err)
	_, err = s.CreateTask(ctx, domain.Task{BoardID: "missing", Title: "x", Status: "todo"})
	expectNotFound(t, err)
}

func TestSQLDeleteCascades(t *testing.T) {
	s := openTestSQL(t)
	ctx := context.Background()
	b, _ := seedSQLBoard(t, s)

	task, err := s.CreateTask(ctx, domain.Task{BoardID: b.ID, Title: "a", Status: "todo"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	sub, err := s.CreateSubtask(ctx, domain.Subtask{Title: "outline"}, task.ID)
	if err != nil {
		t.Fatalf("create subtask: %v", err)
	}
	toggled, err := s.UpdateSubtask(ctx, sub.ID, domain.SubtaskPatch{Completed: ptr(true)})
	if err != nil {
		t.Fatalf("update subtask: %v", err)
	}
	if !toggled.Completed || toggled.Title != "outline" || toggled.TaskID != task.ID {
		t.Fatalf("unexpected subtask: %#v", toggled)
	}

	if err := s.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	subs, err := s.ListSubtasks(ctx, task.ID)
	if err != nil {
		t.Fatalf("list subtasks: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected subtasks to cascade, got %#v", subs)
	}
	_, err = s.CreateSubtask(ctx, domain.Subtask{Title: "late"}, task.ID)
	expectNotFound(t, err)

	if _, err := s.CreateTask(ctx, domain.Task{BoardID: b.ID, Title: "b", Status: "todo"}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := s.DeleteBoard(ctx, b.ID); err != nil {
		t.Fatalf("delete board: %v", err)
	}
	cols, _ := s.ListColumns(ctx, b.ID)
	tasks, _ := s.ListTasks(ctx, b.ID)
	if len(cols) != 0 || len(tasks) != 0 {
		t.Fatalf("expected board delete to cascade, got %d columns and %d tasks", len(cols), len(tasks))
	}
}

func TestSQLProfileUpsert(t *testing.T) {
	s := openTestSQL(t)
	ctx := context.Background()

	_, err := s.Profile(ctx, "u1")
	expectNotFound(t, err)

	if _, err := s.UpsertProfile(ctx, domain.Profile{ID: "u1", FullName: "Ada"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.UpsertProfile(ctx, domain.Profile{ID: "u1", FullName: "Ada L.", AvatarURL: "a.png"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	p, err := s.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.FullName != "Ada L." || p.AvatarURL != "a.png" || p.UpdatedAt.IsZero() {
		t.Fatalf("unexpected profile: %#v", p)
	}
	var ve *domain.ValidationError
	if _, err := s.UpsertProfile(ctx, domain.Profile{ID: " "}); !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSQLBacksEngine(t *testing.T) {
	s := openTestSQL(t)
	b, cols := seedSQLBoard(t, s)

	logger, _ := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	eng := board.NewEngine(s, board.Options{Logger: logger, Timeout: 5 * time.Second})
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := eng.Load(ctx, b.ID); err != nil {
		t.Fatalf("load: %v", err)
	}

	task, err := eng.CreateTask(domain.Task{Title: "a", Status: "in-progress"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	sub, err := eng.CreateSubtask(task.EntityID, "step")
	if err != nil {
		t.Fatalf("create subtask: %v", err)
	}
	del, err := eng.DeleteColumn(cols[1].ID, cols[2].ID)
	if err != nil {
		t.Fatalf("delete column: %v", err)
	}
	if err := board.WaitAll(ctx, append(del, task, sub)...); err != nil {
		t.Fatalf("wait: %v", err)
	}

	tasks, err := s.ListTasks(ctx, b.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Status != "done" || tasks[0].ID != task.ServerID() {
		t.Fatalf("unexpected tasks: %#v", tasks)
	}
	subs, err := s.ListSubtasks(ctx, task.ServerID())
	if err != nil {
		t.Fatalf("list subtasks: %v", err)
	}
	if len(subs) != 1 || subs[0].Title != "step" {
		t.Fatalf("unexpected subtasks: %#v", subs)
	}
	stored, err := s.ListColumns(ctx, b.ID)
	if err != nil {
		t.Fatalf("list columns: %v", err)
	}
	if len(stored) != 2 || stored[0].Order != 0 || stored[1].Order != 1 || stored[1].Status != "done" {
		t.Fatalf("unexpected columns: %#v", stored)
	}
}
