package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/Adarsh9315/task-palette-organize/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id         TEXT PRIMARY KEY,
	full_name  TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS boards (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	theme       TEXT NOT NULL DEFAULT 'default',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_boards_owner ON boards(owner_id, created_at);
CREATE TABLE IF NOT EXISTS "columns" (
	id           TEXT PRIMARY KEY,
	board_id     TEXT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
	title        TEXT NOT NULL,
	status       TEXT NOT NULL,
	color        TEXT NOT NULL DEFAULT 'bg-gray-500',
	column_order INTEGER NOT NULL,
	created_at   TEXT NOT NULL,
	UNIQUE (board_id, status)
);
CREATE INDEX IF NOT EXISTS idx_columns_board ON "columns"(board_id, column_order);
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	board_id    TEXT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	priority    TEXT,
	due_date    TEXT,
	assigned_to TEXT NOT NULL DEFAULT '[]',
	comments    INTEGER NOT NULL DEFAULT 0,
	attachments INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_board ON tasks(board_id, created_at);
CREATE TABLE IF NOT EXISTS subtasks (
	id         TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	title      TEXT NOT NULL,
	completed  INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subtasks_task ON subtasks(task_id, created_at);
`

// SQL is the relational remote store backed by an embedded SQLite database.
type SQL struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQL opens (creating if needed) the database at path and applies the
// schema.
func OpenSQL(ctx context.Context, path string) (*SQL, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &SQL{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables when missing. It is idempotent.
func (s *SQL) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

type scanner interface {
	Scan(dest ...any) error
}

const boardCols = `id, owner_id, title, description, theme, created_at, updated_at`

func scanBoard(r scanner) (domain.Board, error) {
	var b domain.Board
	var created, updated string
	if err := r.Scan(&b.ID, &b.OwnerID, &b.Title, &b.Description, &b.Theme, &created, &updated); err != nil {
		return domain.Board{}, err
	}
	b.CreatedAt = parseTime(created)
	b.UpdatedAt = parseTime(updated)
	return b, nil
}

func (s *SQL) ListBoards(ctx context.Context, ownerID string) ([]domain.Board, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+boardCols+` FROM boards WHERE owner_id = ? ORDER BY created_at, rowid`, ownerID)
	if err != nil {
		return nil, sqlError("list boards", "board", ownerID, err)
	}
	defer rows.Close()
	boards := []domain.Board{}
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, sqlError("list boards", "board", ownerID, err)
		}
		boards = append(boards, b)
	}
	return boards, sqlError("list boards", "board", ownerID, rows.Err())
}

func (s *SQL) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	b, err := scanBoard(s.db.QueryRowContext(ctx, `SELECT `+boardCols+` FROM boards WHERE id = ?`, id))
	if err != nil {
		return domain.Board{}, sqlError("get board", "board", id, err)
	}
	return b, nil
}

func (s *SQL) CreateBoard(ctx context.Context, b domain.Board) (domain.Board, error) {
	if err := b.Validate(); err != nil {
		return domain.Board{}, err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Theme == "" {
		b.Theme = domain.DefaultTheme
	}
	now := s.now()
	b.CreatedAt, b.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `INSERT INTO boards (`+boardCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OwnerID, b.Title, b.Description, b.Theme, formatTime(now), formatTime(now))
	if err != nil {
		return domain.Board{}, sqlError("create board", "board", b.ID, err)
	}
	return b, nil
}

func (s *SQL) UpdateBoard(ctx context.Context, id string, patch domain.BoardPatch) (domain.Board, error) {
	if err := patch.Validate(); err != nil {
		return domain.Board{}, err
	}
	set := newAssignments()
	set.add("title", patch.Title)
	set.add("description", patch.Description)
	set.add("theme", patch.Theme)
	set.addValue("updated_at", formatTime(s.now()))
	if err := s.update(ctx, "boards", id, set); err != nil {
		return domain.Board{}, sqlError("update board", "board", id, err)
	}
	return s.GetBoard(ctx, id)
}

func (s *SQL) DeleteBoard(ctx context.Context, id string) error {
	return s.delete(ctx, "boards", "board", id)
}

const columnCols = `id, board_id, title, status, color, column_order, created_at`

func scanColumn(r scanner) (domain.Column, error) {
	var c domain.Column
	var created string
	if err := r.Scan(&c.ID, &c.BoardID, &c.Title, &c.Status, &c.Color, &c.Order, &created); err != nil {
		return domain.Column{}, err
	}
	c.CreatedAt = parseTime(created)
	return c, nil
}

func (s *SQL) ListColumns(ctx context.Context, boardID string) ([]domain.Column, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columnCols+` FROM "columns" WHERE board_id = ? ORDER BY column_order, created_at`, boardID)
	if err != nil {
		return nil, sqlError("list columns", domain.EntityColumn, boardID, err)
	}
	defer rows.Close()
	cols := []domain.Column{}
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, sqlError("list columns", domain.EntityColumn, boardID, err)
		}
		cols = append(cols, c)
	}
	return cols, sqlError("list columns", domain.EntityColumn, boardID, rows.Err())
}

func (s *SQL) getColumn(ctx context.Context, id string) (domain.Column, error) {
	c, err := scanColumn(s.db.QueryRowContext(ctx, `SELECT `+columnCols+` FROM "columns" WHERE id = ?`, id))
	if err != nil {
		return domain.Column{}, sqlError("get column", domain.EntityColumn, id, err)
	}
	return c, nil
}

func (s *SQL) CreateColumn(ctx context.Context, col domain.Column, boardID string) (domain.Column, error) {
	if err := col.Validate(); err != nil {
		return domain.Column{}, err
	}
	if _, err := s.GetBoard(ctx, boardID); err != nil {
		return domain.Column{}, err
	}
	col.ID = uuid.NewString()
	col.BoardID = boardID
	if col.Color == "" {
		col.Color = domain.DefaultColumnColor
	}
	col.CreatedAt = s.now()
	_, err := s.db.ExecContext(ctx, `INSERT INTO "columns" (`+columnCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		col.ID, col.BoardID, col.Title, col.Status, col.Color, col.Order, formatTime(col.CreatedAt))
	if err != nil {
		return domain.Column{}, sqlError("create column", domain.EntityColumn, col.ID, err)
	}
	return col, nil
}

func (s *SQL) UpdateColumn(ctx context.Context, id string, patch domain.ColumnPatch) (domain.Column, error) {
	if err := patch.Validate(); err != nil {
		return domain.Column{}, err
	}
	set := newAssignments()
	set.add("title", patch.Title)
	set.add("status", patch.Status)
	set.add("color", patch.Color)
	if patch.Order != nil {
		set.addValue("column_order", *patch.Order)
	}
	if err := s.update(ctx, `"columns"`, id, set); err != nil {
		return domain.Column{}, sqlError("update column", domain.EntityColumn, id, err)
	}
	return s.getColumn(ctx, id)
}

func (s *SQL) DeleteColumn(ctx context.Context, id string) error {
	return s.delete(ctx, `"columns"`, domain.EntityColumn, id)
}

const taskCols = `id, board_id, title, description, status, priority, due_date, assigned_to, comments, attachments, created_at, updated_at`

func scanTask(r scanner) (domain.Task, error) {
	var t domain.Task
	var priority, due sql.NullString
	var assigned, created, updated string
	if err := r.Scan(&t.ID, &t.BoardID, &t.Title, &t.Description, &t.Status, &priority, &due,
		&assigned, &t.Comments, &t.Attachments, &created, &updated); err != nil {
		return domain.Task{}, err
	}
	t.Priority = domain.Priority(priority.String)
	if due.Valid && due.String != "" {
		d := parseTime(due.String)
		t.DueDate = &d
	}
	if assigned != "" && assigned != "[]" {
		if err := sonic.UnmarshalString(assigned, &t.AssignedTo); err != nil {
			return domain.Task{}, fmt.Errorf("decode assigned_to of %s: %w", t.ID, err)
		}
	}
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return t, nil
}

func nullPriority(p domain.Priority) sql.NullString {
	return sql.NullString{String: string(p), Valid: p != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func encodeAssignees(ids []string) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	return sonic.MarshalString(ids)
}

func (s *SQL) ListTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE board_id = ? ORDER BY created_at, rowid`, boardID)
	if err != nil {
		return nil, sqlError("list tasks", domain.EntityTask, boardID, err)
	}
	defer rows.Close()
	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, sqlError("list tasks", domain.EntityTask, boardID, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, sqlError("list tasks", domain.EntityTask, boardID, rows.Err())
}

func (s *SQL) getTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		return domain.Task{}, sqlError("get task", domain.EntityTask, id, err)
	}
	return t, nil
}

func (s *SQL) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if err := t.Validate(); err != nil {
		return domain.Task{}, err
	}
	if _, err := s.GetBoard(ctx, t.BoardID); err != nil {
		return domain.Task{}, err
	}
	assigned, err := encodeAssignees(t.AssignedTo)
	if err != nil {
		return domain.Task{}, err
	}
	t.ID = uuid.NewString()
	t.Subtasks = nil
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	_, err = s.db.ExecContext(ctx, `INSERT INTO tasks (`+taskCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.BoardID, t.Title, t.Description, t.Status, nullPriority(t.Priority), nullTime(t.DueDate),
		assigned, t.Comments, t.Attachments, formatTime(now), formatTime(now))
	if err != nil {
		return domain.Task{}, sqlError("create task", domain.EntityTask, t.ID, err)
	}
	return t, nil
}

func (s *SQL) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if err := patch.Validate(); err != nil {
		return domain.Task{}, err
	}
	set := newAssignments()
	set.add("title", patch.Title)
	set.add("description", patch.Description)
	set.add("status", patch.Status)
	if patch.Priority != nil {
		set.addValue("priority", nullPriority(*patch.Priority))
	}
	if patch.DueDate != nil {
		set.addValue("due_date", nullTime(patch.DueDate))
	}
	if patch.AssignedTo != nil {
		assigned, err := encodeAssignees(*patch.AssignedTo)
		if err != nil {
			return domain.Task{}, err
		}
		set.addValue("assigned_to", assigned)
	}
	set.addValue("updated_at", formatTime(s.now()))
	if err := s.update(ctx, "tasks", id, set); err != nil {
		return domain.Task{}, sqlError("update task", domain.EntityTask, id, err)
	}
	return s.getTask(ctx, id)
}

func (s *SQL) DeleteTask(ctx context.Context, id string) error {
	return s.delete(ctx, "tasks", domain.EntityTask, id)
}

const subtaskCols = `id, task_id, title, completed`

func scanSubtask(r scanner) (domain.Subtask, error) {
	var st domain.Subtask
	if err := r.Scan(&st.ID, &st.TaskID, &st.Title, &st.Completed); err != nil {
		return domain.Subtask{}, err
	}
	return st, nil
}

func (s *SQL) ListSubtasks(ctx context.Context, taskID string) ([]domain.Subtask, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+subtaskCols+` FROM subtasks WHERE task_id = ? ORDER BY created_at, rowid`, taskID)
	if err != nil {
		return nil, sqlError("list subtasks", domain.EntitySubtask, taskID, err)
	}
	defer rows.Close()
	subs := []domain.Subtask{}
	for rows.Next() {
		st, err := scanSubtask(rows)
		if err != nil {
			return nil, sqlError("list subtasks", domain.EntitySubtask, taskID, err)
		}
		subs = append(subs, st)
	}
	return subs, sqlError("list subtasks", domain.EntitySubtask, taskID, rows.Err())
}

func (s *SQL) CreateSubtask(ctx context.Context, st domain.Subtask, taskID string) (domain.Subtask, error) {
	if err := st.Validate(); err != nil {
		return domain.Subtask{}, err
	}
	if _, err := s.getTask(ctx, taskID); err != nil {
		return domain.Subtask{}, err
	}
	st.ID = uuid.NewString()
	st.TaskID = taskID
	_, err := s.db.ExecContext(ctx, `INSERT INTO subtasks (id, task_id, title, completed, created_at) VALUES (?, ?, ?, ?, ?)`,
		st.ID, st.TaskID, st.Title, st.Completed, formatTime(s.now()))
	if err != nil {
		return domain.Subtask{}, sqlError("create subtask", domain.EntitySubtask, st.ID, err)
	}
	return st, nil
}

func (s *SQL) UpdateSubtask(ctx context.Context, id string, patch domain.SubtaskPatch) (domain.Subtask, error) {
	if err := patch.Validate(); err != nil {
		return domain.Subtask{}, err
	}
	set := newAssignments()
	set.add("title", patch.Title)
	if patch.Completed != nil {
		set.addValue("completed", *patch.Completed)
	}
	if err := s.update(ctx, "subtasks", id, set); err != nil {
		return domain.Subtask{}, sqlError("update subtask", domain.EntitySubtask, id, err)
	}
	st, err := scanSubtask(s.db.QueryRowContext(ctx, `SELECT `+subtaskCols+` FROM subtasks WHERE id = ?`, id))
	if err != nil {
		return domain.Subtask{}, sqlError("get subtask", domain.EntitySubtask, id, err)
	}
	return st, nil
}

func (s *SQL) DeleteSubtask(ctx context.Context, id string) error {
	return s.delete(ctx, "subtasks", domain.EntitySubtask, id)
}

// UpsertProfile creates or replaces the profile row of a user.
func (s *SQL) UpsertProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	if strings.TrimSpace(p.ID) == "" {
		return domain.Profile{}, &domain.ValidationError{Field: "id", Reason: "is required"}
	}
	p.UpdatedAt = s.now()
	_, err := s.db.ExecContext(ctx, `INSERT INTO profiles (id, full_name, avatar_url, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET full_name = excluded.full_name, avatar_url = excluded.avatar_url, updated_at = excluded.updated_at`,
		p.ID, p.FullName, p.AvatarURL, formatTime(p.UpdatedAt))
	if err != nil {
		return domain.Profile{}, sqlError("upsert profile", "profile", p.ID, err)
	}
	return p, nil
}

func (s *SQL) Profile(ctx context.Context, id string) (domain.Profile, error) {
	var p domain.Profile
	var updated string
	err := s.db.QueryRowContext(ctx, `SELECT id, full_name, avatar_url, updated_at FROM profiles WHERE id = ?`, id).
		Scan(&p.ID, &p.FullName, &p.AvatarURL, &updated)
	if err != nil {
		return domain.Profile{}, sqlError("get profile", "profile", id, err)
	}
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

// assignments collects the SET clause of a partial update.
type assignments struct {
	cols []string
	args []any
}

func newAssignments() *assignments { return &assignments{} }

func (a *assignments) add(col string, v *string) {
	if v != nil {
		a.addValue(col, *v)
	}
}

func (a *assignments) addValue(col string, v any) {
	a.cols = append(a.cols, col+" = ?")
	a.args = append(a.args, v)
}

func (s *SQL) update(ctx context.Context, table, id string, set *assignments) error {
	if len(set.cols) == 0 {
		var one int
		return s.db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE `+table+` SET `+strings.Join(set.cols, ", ")+` WHERE id = ?`, append(set.args, id)...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQL) delete(ctx context.Context, table, kind, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return sqlError("delete "+kind, kind, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &domain.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}
