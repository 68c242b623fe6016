package board

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Adarsh9315/task-palette-organize/domain"
)

// fakeRemote is an in-memory Remote whose calls can be held open or failed.
type fakeRemote struct {
	mu       sync.Mutex
	boards   map[string]domain.Board
	columns  map[string]domain.Column
	tasks    map[string]domain.Task
	order    []string
	subtasks map[string]domain.Subtask
	nextID   int
	calls    []string
	fail     map[string]error
	once     map[string]error
	gates    map[string]chan struct{}
	delay    func() time.Duration
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		boards:   make(map[string]domain.Board),
		columns:  make(map[string]domain.Column),
		tasks:    make(map[string]domain.Task),
		subtasks: make(map[string]domain.Subtask),
		fail:     make(map[string]error),
		once:     make(map[string]error),
		gates:    make(map[string]chan struct{}),
	}
}

// seedBoard stores board b1 with todo/in-progress/done columns and tasks t1,
// t2 in todo and t3 in done.
func seedBoard(f *fakeRemote) {
	f.boards["b1"] = domain.Board{ID: "b1", OwnerID: "u1", Title: "Roadmap", Theme: domain.DefaultTheme}
	for i, c := range []domain.Column{
		{ID: "c1", Title: "TODO", Status: "todo"},
		{ID: "c2", Title: "DOING", Status: "in-progress"},
		{ID: "c3", Title: "DONE", Status: "done"},
	} {
		c.BoardID = "b1"
		c.Order = i
		c.Color = domain.DefaultColumnColor
		f.columns[c.ID] = c
	}
	for _, t := range []domain.Task{
		{ID: "t1", Title: "Write docs", Status: "todo"},
		{ID: "t2", Title: "Fix login", Status: "todo"},
		{ID: "t3", Title: "Ship beta", Status: "done"},
	} {
		t.BoardID = "b1"
		f.tasks[t.ID] = t
		f.order = append(f.order, t.ID)
	}
	f.subtasks["s1"] = domain.Subtask{ID: "s1", TaskID: "t1", Title: "outline"}
}

func (f *fakeRemote) failOn(call string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[call] = err
}

// failOnceOn fails only the next call matching call.
func (f *fakeRemote) failOnceOn(call string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.once[call] = err
}

// hold blocks every call named op until the returned func is called.
func (f *fakeRemote) hold(op string) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[op] = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.gates, op)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeRemote) waitCalls(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.callLog()) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d remote calls, got %v", n, f.callLog())
}

func (f *fakeRemote) enter(ctx context.Context, op, id string) error {
	f.mu.Lock()
	call := op
	if id != "" {
		call = op + " " + id
	}
	f.calls = append(f.calls, call)
	gate := f.gates[op]
	delay := f.delay
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if delay != nil {
		select {
		case <-time.After(delay()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.once[call]; ok {
		delete(f.once, call)
		return err
	}
	if err, ok := f.fail[call]; ok {
		return err
	}
	if err, ok := f.fail[op]; ok {
		return err
	}
	return nil
}

func (f *fakeRemote) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeRemote) ListBoards(ctx context.Context, ownerID string) ([]domain.Board, error) {
	if err := f.enter(ctx, "ListBoards", ownerID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Board
	for _, b := range f.boards {
		if b.OwnerID == ownerID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRemote) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	if err := f.enter(ctx, "GetBoard", id); err != nil {
		return domain.Board{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[id]
	if !ok {
		return domain.Board{}, &domain.NotFoundError{Kind: "board", ID: id}
	}
	return b, nil
}

func (f *fakeRemote) CreateBoard(ctx context.Context, b domain.Board) (domain.Board, error) {
	if err := f.enter(ctx, "CreateBoard", ""); err != nil {
		return domain.Board{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b.ID = f.newID("b")
	f.boards[b.ID] = b
	return b, nil
}

func (f *fakeRemote) UpdateBoard(ctx context.Context, id string, patch domain.BoardPatch) (domain.Board, error) {
	if err := f.enter(ctx, "UpdateBoard", id); err != nil {
		return domain.Board{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[id]
	if !ok {
		return domain.Board{}, &domain.NotFoundError{Kind: "board", ID: id}
	}
	b = patch.Apply(b)
	f.boards[id] = b
	return b, nil
}

func (f *fakeRemote) DeleteBoard(ctx context.Context, id string) error {
	if err := f.enter(ctx, "DeleteBoard", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.boards, id)
	return nil
}

func (f *fakeRemote) ListColumns(ctx context.Context, boardID string) ([]domain.Column, error) {
	if err := f.enter(ctx, "ListColumns", boardID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Column
	for _, c := range f.columns {
		if c.BoardID == boardID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (f *fakeRemote) CreateColumn(ctx context.Context, col domain.Column, boardID string) (domain.Column, error) {
	if err := f.enter(ctx, "CreateColumn", ""); err != nil {
		return domain.Column{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	col.ID = f.newID("c")
	col.BoardID = boardID
	f.columns[col.ID] = col
	return col, nil
}

func (f *fakeRemote) UpdateColumn(ctx context.Context, id string, patch domain.ColumnPatch) (domain.Column, error) {
	if err := f.enter(ctx, "UpdateColumn", id); err != nil {
		return domain.Column{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.columns[id]
	if !ok {
		return domain.Column{}, &domain.NotFoundError{Kind: domain.EntityColumn, ID: id}
	}
	c = patch.Apply(c)
	f.columns[id] = c
	return c, nil
}

func (f *fakeRemote) DeleteColumn(ctx context.Context, id string) error {
	if err := f.enter(ctx, "DeleteColumn", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.columns[id]; !ok {
		return &domain.NotFoundError{Kind: domain.EntityColumn, ID: id}
	}
	delete(f.columns, id)
	return nil
}

func (f *fakeRemote) ListTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	if err := f.enter(ctx, "ListTasks", boardID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Task
	for _, id := range f.order {
		if t, ok := f.tasks[id]; ok && t.BoardID == boardID {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (f *fakeRemote) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if err := f.enter(ctx, "CreateTask", ""); err != nil {
		return domain.Task{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = f.newID("t")
	f.tasks[t.ID] = t
	f.order = append(f.order, t.ID)
	return t.Clone(), nil
}

func (f *fakeRemote) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if err := f.enter(ctx, "UpdateTask", id); err != nil {
		return domain.Task{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, &domain.NotFoundError{Kind: domain.EntityTask, ID: id}
	}
	t = patch.Apply(t)
	f.tasks[id] = t
	return t.Clone(), nil
}

func (f *fakeRemote) DeleteTask(ctx context.Context, id string) error {
	if err := f.enter(ctx, "DeleteTask", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return &domain.NotFoundError{Kind: domain.EntityTask, ID: id}
	}
	delete(f.tasks, id)
	for sid, s := range f.subtasks {
		if s.TaskID == id {
			delete(f.subtasks, sid)
		}
	}
	return nil
}

func (f *fakeRemote) ListSubtasks(ctx context.Context, taskID string) ([]domain.Subtask, error) {
	if err := f.enter(ctx, "ListSubtasks", taskID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Subtask
	for _, s := range f.subtasks {
		if s.TaskID == taskID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRemote) CreateSubtask(ctx context.Context, s domain.Subtask, taskID string) (domain.Subtask, error) {
	if err := f.enter(ctx, "CreateSubtask", ""); err != nil {
		return domain.Subtask{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[taskID]; !ok {
		return domain.Subtask{}, &domain.NotFoundError{Kind: domain.EntityTask, ID: taskID}
	}
	s.ID = f.newID("s")
	s.TaskID = taskID
	f.subtasks[s.ID] = s
	return s, nil
}

func (f *fakeRemote) UpdateSubtask(ctx context.Context, id string, patch domain.SubtaskPatch) (domain.Subtask, error) {
	if err := f.enter(ctx, "UpdateSubtask", id); err != nil {
		return domain.Subtask{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subtasks[id]
	if !ok {
		return domain.Subtask{}, &domain.NotFoundError{Kind: domain.EntitySubtask, ID: id}
	}
	s = patch.Apply(s)
	f.subtasks[id] = s
	return s, nil
}

func (f *fakeRemote) DeleteSubtask(ctx context.Context, id string) error {
	if err := f.enter(ctx, "DeleteSubtask", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subtasks, id)
	return nil
}

func (f *fakeRemote) task(id string) (domain.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	return t, ok
}

func (f *fakeRemote) column(id string) (domain.Column, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.columns[id]
	return c, ok
}
