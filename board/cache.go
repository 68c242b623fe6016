package board

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/Adarsh9315/task-palette-organize/domain"
)

// ErrNotLoaded is returned for writes against a cache that was never loaded.
var ErrNotLoaded = errors.New("board cache not loaded")

// row tracks one entity: the last server-confirmed value, the mutations still
// outstanding against it and the view derived from both.
type row[T any] struct {
	base    *T
	baseSeq uint64
	pending []*Mutation
	view    *T
	pos     int64
}

type table[T any] struct {
	rows  map[string]*row[T]
	next  int64
	apply func(cur *T, m *Mutation) *T
}

func newTable[T any](apply func(*T, *Mutation) *T) *table[T] {
	return &table[T]{rows: make(map[string]*row[T]), apply: apply}
}

func (t *table[T]) reset() {
	t.rows = make(map[string]*row[T])
	t.next = 0
}

func (t *table[T]) load(id string, v T) {
	t.rows[id] = &row[T]{base: &v, view: &v, pos: t.next}
	t.next++
}

func (t *table[T]) get(id string) (T, bool) {
	r := t.rows[id]
	if r == nil || r.view == nil {
		var zero T
		return zero, false
	}
	return *r.view, true
}

func (t *table[T]) push(id string, m *Mutation) {
	r := t.rows[id]
	if r == nil {
		r = &row[T]{pos: t.next}
		t.next++
		t.rows[id] = r
	}
	r.pending = append(r.pending, m)
	t.recompute(r)
}

func (t *table[T]) drop(id string, m *Mutation) {
	r := t.rows[id]
	if r == nil {
		return
	}
	r.pending = slices.DeleteFunc(r.pending, func(p *Mutation) bool { return p == m })
	t.settle(id, r)
}

func (t *table[T]) commit(id string, m *Mutation, result *T) {
	r := t.rows[id]
	if r == nil {
		return
	}
	r.pending = slices.DeleteFunc(r.pending, func(p *Mutation) bool { return p == m })
	if m.seq > r.baseSeq {
		r.base = result
		r.baseSeq = m.seq
	}
	t.settle(id, r)
}

func (t *table[T]) settle(id string, r *row[T]) {
	if r.base == nil && len(r.pending) == 0 {
		delete(t.rows, id)
		return
	}
	t.recompute(r)
}

func (t *table[T]) recompute(r *row[T]) {
	v := r.base
	for _, m := range r.pending {
		v = t.apply(v, m)
	}
	r.view = v
}

func (t *table[T]) rekey(from, to string) {
	if from == to {
		return
	}
	if r, ok := t.rows[from]; ok {
		delete(t.rows, from)
		t.rows[to] = r
	}
}

// visible returns the current views in list position order.
func (t *table[T]) visible() []T {
	rows := make([]*row[T], 0, len(t.rows))
	for _, r := range t.rows {
		if r.view != nil {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].pos < rows[j].pos })
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = *r.view
	}
	return out
}

func applyColumn(cur *domain.Column, m *Mutation) *domain.Column {
	switch m.Op {
	case OpCreate:
		c := m.Column
		return &c
	case OpUpdate:
		if cur == nil {
			return nil
		}
		c := m.ColumnPatch.Apply(*cur)
		return &c
	}
	return nil
}

func applyTask(cur *domain.Task, m *Mutation) *domain.Task {
	switch m.Op {
	case OpCreate:
		t := m.Task.Clone()
		return &t
	case OpUpdate:
		if cur == nil {
			return nil
		}
		t := m.TaskPatch.Apply(*cur)
		return &t
	}
	return nil
}

func applySubtask(cur *domain.Subtask, m *Mutation) *domain.Subtask {
	switch m.Op {
	case OpCreate:
		s := m.Subtask
		return &s
	case OpUpdate:
		if cur == nil {
			return nil
		}
		s := m.SubtaskPatch.Apply(*cur)
		return &s
	}
	return nil
}

// Cache is the in-memory state of one board. Readers get copies; only Load and
// the Queue write to it.
type Cache struct {
	mu       sync.RWMutex
	loaded   bool
	board    domain.Board
	columns  *table[domain.Column]
	tasks    *table[domain.Task]
	subtasks *table[domain.Subtask]
	// alias maps temporary ids of committed creations to server ids.
	alias map[string]string
}

func NewCache() *Cache {
	return &Cache{
		columns:  newTable(applyColumn),
		tasks:    newTable(applyTask),
		subtasks: newTable(applySubtask),
		alias:    make(map[string]string),
	}
}

// Load fetches the board with its columns, tasks and subtasks and replaces the
// cache contents wholesale. Nothing is replaced when any fetch fails.
func (c *Cache) Load(ctx context.Context, remote Remote, boardID string) error {
	b, err := remote.GetBoard(ctx, boardID)
	if err != nil {
		return fmt.Errorf("load board %s: %w", boardID, err)
	}
	cols, err := remote.ListColumns(ctx, boardID)
	if err != nil {
		return fmt.Errorf("load columns of %s: %w", boardID, err)
	}
	tasks, err := remote.ListTasks(ctx, boardID)
	if err != nil {
		return fmt.Errorf("load tasks of %s: %w", boardID, err)
	}
	var subs []domain.Subtask
	for _, t := range tasks {
		ss, err := remote.ListSubtasks(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("load subtasks of %s: %w", t.ID, err)
		}
		subs = append(subs, ss...)
	}
	c.replace(b, cols, tasks, subs)
	return nil
}

func (c *Cache) replace(b domain.Board, cols []domain.Column, tasks []domain.Task, subs []domain.Subtask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.board = b
	c.loaded = true
	c.alias = make(map[string]string)
	c.columns.reset()
	c.tasks.reset()
	c.subtasks.reset()
	sorted := slices.Clone(cols)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	for _, col := range sorted {
		c.columns.load(col.ID, col)
	}
	for _, t := range tasks {
		t = t.Clone()
		t.Subtasks = nil
		c.tasks.load(t.ID, t)
	}
	for _, s := range subs {
		c.subtasks.load(s.ID, s)
	}
}

// Loaded reports whether Load has succeeded at least once.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// setBoard replaces the board metadata after a board-level edit.
func (c *Cache) setBoard(b domain.Board) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded && c.board.ID == b.ID {
		c.board = b
	}
}

func (c *Cache) Board() (domain.Board, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.board, c.loaded
}

// Columns returns the visible columns sorted by order index.
func (c *Cache) Columns() []domain.Column {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.columnsLocked()
}

func (c *Cache) columnsLocked() []domain.Column {
	cols := c.columns.visible()
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Order < cols[j].Order })
	return cols
}

// Tasks returns the visible tasks in list position order, each carrying its
// visible subtasks.
func (c *Cache) Tasks() []domain.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tasks := c.tasks.visible()
	byTask := c.subtasksByTaskLocked()
	out := make([]domain.Task, len(tasks))
	for i, t := range tasks {
		t = t.Clone()
		t.Subtasks = byTask[t.ID]
		out[i] = t
	}
	return out
}

func (c *Cache) Task(id string) (domain.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tasks.get(c.resolveLocked(id))
	if !ok {
		return domain.Task{}, false
	}
	t = t.Clone()
	t.Subtasks = c.subtasksByTaskLocked()[t.ID]
	return t, true
}

func (c *Cache) subtasksByTaskLocked() map[string][]domain.Subtask {
	byTask := make(map[string][]domain.Subtask)
	for _, s := range c.subtasks.visible() {
		parent := c.resolveLocked(s.TaskID)
		s.TaskID = parent
		byTask[parent] = append(byTask[parent], s)
	}
	return byTask
}

func (c *Cache) Column(id string) (domain.Column, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.columns.get(c.resolveLocked(id))
}

func (c *Cache) Subtask(id string) (domain.Subtask, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subtaskLocked(c.resolveLocked(id))
}

func (c *Cache) subtaskLocked(id string) (domain.Subtask, bool) {
	s, ok := c.subtasks.get(id)
	if !ok {
		return domain.Subtask{}, false
	}
	if _, ok := c.tasks.get(c.resolveLocked(s.TaskID)); !ok {
		return domain.Subtask{}, false
	}
	return s, true
}

// TaskCountByStatus counts the visible tasks with the given status key.
func (c *Cache) TaskCountByStatus(status string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.countByStatusLocked(status)
}

func (c *Cache) countByStatusLocked(status string) int {
	n := 0
	for _, t := range c.tasks.visible() {
		if t.Status == status {
			n++
		}
	}
	return n
}

// Resolve translates a temporary id into the server id once its creation
// committed.
func (c *Cache) Resolve(id string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolveLocked(id)
}

func (c *Cache) resolveLocked(id string) string {
	if s, ok := c.alias[id]; ok {
		return s
	}
	return id
}

func (c *Cache) columnByStatusLocked(status, except string) (domain.Column, bool) {
	for _, col := range c.columns.visible() {
		if col.Status == status && col.ID != except {
			return col, true
		}
	}
	return domain.Column{}, false
}

// applyOptimistic validates m against the current view and applies it.
// EntityID must already be resolved.
func (c *Cache) applyOptimistic(m *Mutation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return ErrNotLoaded
	}
	var err error
	switch m.Kind {
	case KindColumn:
		err = c.checkColumn(m)
		if err == nil {
			c.columns.push(m.EntityID, m)
		}
	case KindTask:
		err = c.checkTask(m)
		if err == nil {
			c.tasks.push(m.EntityID, m)
		}
	case KindSubtask:
		err = c.checkSubtask(m)
		if err == nil {
			c.subtasks.push(m.EntityID, m)
		}
	default:
		err = fmt.Errorf("unknown mutation kind %d", m.Kind)
	}
	return err
}

func (c *Cache) checkColumn(m *Mutation) error {
	boardID := c.board.ID
	switch m.Op {
	case OpCreate:
		m.Column.ID = m.EntityID
		m.Column.BoardID = boardID
		if m.Column.Color == "" {
			m.Column.Color = domain.DefaultColumnColor
		}
		if err := m.Column.Validate(); err != nil {
			return err
		}
		if _, dup := c.columnByStatusLocked(m.Column.Status, ""); dup {
			return &domain.ConflictError{BoardID: boardID, Status: m.Column.Status, Reason: "already used by another column"}
		}
	case OpUpdate:
		cur, ok := c.columns.get(m.EntityID)
		if !ok {
			return &domain.NotFoundError{Kind: domain.EntityColumn, ID: m.EntityID}
		}
		if m.ColumnPatch.Empty() {
			return &domain.ValidationError{Field: "patch", Reason: "has no fields"}
		}
		if err := m.ColumnPatch.Validate(); err != nil {
			return err
		}
		if s := m.ColumnPatch.Status; s != nil && *s != cur.Status {
			if _, dup := c.columnByStatusLocked(*s, cur.ID); dup {
				return &domain.ConflictError{BoardID: boardID, Status: *s, Reason: "already used by another column"}
			}
			if c.countByStatusLocked(cur.Status) > 0 {
				return &domain.ConflictError{BoardID: boardID, Status: cur.Status, Reason: "column still has tasks"}
			}
		}
	case OpDelete:
		cur, ok := c.columns.get(m.EntityID)
		if !ok {
			return &domain.NotFoundError{Kind: domain.EntityColumn, ID: m.EntityID}
		}
		if len(c.columns.visible()) <= 1 {
			return &domain.LastColumnError{BoardID: boardID, ColumnID: cur.ID}
		}
		if c.countByStatusLocked(cur.Status) > 0 {
			return &domain.ConflictError{BoardID: boardID, Status: cur.Status, Reason: "column still has tasks"}
		}
	}
	return nil
}

func (c *Cache) checkTask(m *Mutation) error {
	boardID := c.board.ID
	switch m.Op {
	case OpCreate:
		m.Task.ID = m.EntityID
		m.Task.BoardID = boardID
		m.Task.Subtasks = nil
		if err := m.Task.Validate(); err != nil {
			return err
		}
		if _, ok := c.columnByStatusLocked(m.Task.Status, ""); !ok {
			return &domain.ConflictError{BoardID: boardID, Status: m.Task.Status}
		}
	case OpUpdate:
		if _, ok := c.tasks.get(m.EntityID); !ok {
			return &domain.NotFoundError{Kind: domain.EntityTask, ID: m.EntityID}
		}
		if m.TaskPatch.Empty() {
			return &domain.ValidationError{Field: "patch", Reason: "has no fields"}
		}
		if err := m.TaskPatch.Validate(); err != nil {
			return err
		}
		if s := m.TaskPatch.Status; s != nil {
			if _, ok := c.columnByStatusLocked(*s, ""); !ok {
				return &domain.ConflictError{BoardID: boardID, Status: *s}
			}
		}
	case OpDelete:
		if _, ok := c.tasks.get(m.EntityID); !ok {
			return &domain.NotFoundError{Kind: domain.EntityTask, ID: m.EntityID}
		}
	}
	return nil
}

func (c *Cache) checkSubtask(m *Mutation) error {
	switch m.Op {
	case OpCreate:
		parent := c.resolveLocked(m.Subtask.TaskID)
		if _, ok := c.tasks.get(parent); !ok {
			return &domain.NotFoundError{Kind: domain.EntityTask, ID: m.Subtask.TaskID}
		}
		m.Subtask.ID = m.EntityID
		m.Subtask.TaskID = parent
		return m.Subtask.Validate()
	case OpUpdate:
		if _, ok := c.subtaskLocked(m.EntityID); !ok {
			return &domain.NotFoundError{Kind: domain.EntitySubtask, ID: m.EntityID}
		}
		if m.SubtaskPatch.Empty() {
			return &domain.ValidationError{Field: "patch", Reason: "has no fields"}
		}
		return m.SubtaskPatch.Validate()
	case OpDelete:
		if _, ok := c.subtaskLocked(m.EntityID); !ok {
			return &domain.NotFoundError{Kind: domain.EntitySubtask, ID: m.EntityID}
		}
	}
	return nil
}

// drop removes the effect of a mutation that never reached the remote store.
func (c *Cache) drop(m *Mutation) {
	c.reconcile(m, nil, errDropped)
}

var errDropped = errors.New("dropped")

// reconcile settles m against its row. On success the server result becomes
// the row's base unless a newer sequence already confirmed it; on failure the
// mutation's effect is removed and the view recomputed.
func (c *Cache) reconcile(m *Mutation, result any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.resolveLocked(m.EntityID)
	switch m.Kind {
	case KindColumn:
		settleRow(c, c.columns, m, id, result, err, func(v domain.Column) string { return v.ID })
	case KindTask:
		settleRow(c, c.tasks, m, id, result, err, func(v domain.Task) string { return v.ID })
		if err == nil && m.Op == OpDelete {
			c.purgeSubtasksLocked(id)
		}
	case KindSubtask:
		settleRow(c, c.subtasks, m, id, result, err, func(v domain.Subtask) string { return v.ID })
	}
}

func settleRow[T any](c *Cache, t *table[T], m *Mutation, id string, result any, err error, idOf func(T) string) {
	if err != nil {
		t.drop(id, m)
		return
	}
	if m.Op == OpDelete {
		t.commit(id, m, nil)
		return
	}
	v, ok := result.(T)
	if !ok {
		t.drop(id, m)
		return
	}
	if m.Op == OpCreate {
		serverID := idOf(v)
		if serverID != "" && serverID != id {
			c.alias[m.EntityID] = serverID
			t.rekey(id, serverID)
			id = serverID
		}
	}
	t.commit(id, m, &v)
}

func (c *Cache) purgeSubtasksLocked(taskID string) {
	for id, r := range c.subtasks.rows {
		var s *domain.Subtask
		if r.view != nil {
			s = r.view
		} else if r.base != nil {
			s = r.base
		}
		if s != nil && c.resolveLocked(s.TaskID) == taskID {
			delete(c.subtasks.rows, id)
		}
	}
}
