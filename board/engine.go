package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Adarsh9315/task-palette-organize/domain"
)

const DefaultTimeout = 10 * time.Second

// ErrPendingMutations is returned by Load while writes are still outstanding.
var ErrPendingMutations = errors.New("board has outstanding mutations")

type Options struct {
	// Timeout bounds each remote call made for a mutation.
	Timeout  time.Duration
	Logger   *log.Logger
	Notifier Notifier
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = log.StandardLogger()
	}
	return o
}

// SubmitOption customizes a mutation built by the Engine.
type SubmitOption func(*Mutation)

// WithIdempotencyKey sets the key of the primary mutation. Compound operations
// derive the keys of their secondary mutations from it.
func WithIdempotencyKey(key string) SubmitOption {
	return func(m *Mutation) { m.IdempotencyKey = key }
}

// Snapshot is a consistent copy of a board's visible state.
type Snapshot struct {
	Board   domain.Board    `json:"board"`
	Columns []domain.Column `json:"columns"`
	Tasks   []domain.Task   `json:"tasks"`
	Pending int             `json:"pending"`
}

// Engine owns the cache, queue and resolver of one board. It is the only
// entry point for writes.
type Engine struct {
	// mu serializes writes so compound plans are computed and submitted
	// against the same view.
	mu       sync.Mutex
	remote   Remote
	cache    *Cache
	queue    *Queue
	resolver Resolver
	logger   *log.Logger
}

func NewEngine(remote Remote, opts Options) *Engine {
	opts = opts.withDefaults()
	cache := NewCache()
	return &Engine{
		remote: remote,
		cache:  cache,
		queue:  NewQueue(cache, remote, opts),
		logger: opts.Logger,
	}
}

// Load replaces the cached board with the remote state.
func (e *Engine) Load(ctx context.Context, boardID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n := e.queue.Pending(); n > 0 {
		return fmt.Errorf("load board %s: %w (%d)", boardID, ErrPendingMutations, n)
	}
	if err := e.cache.Load(ctx, e.remote, boardID); err != nil {
		return err
	}
	e.logger.WithFields(log.Fields{
		"board":   boardID,
		"columns": len(e.cache.Columns()),
	}).Debug("board loaded")
	return nil
}

func (e *Engine) BoardID() string {
	b, _ := e.cache.Board()
	return b.ID
}

func (e *Engine) Board() (domain.Board, bool) { return e.cache.Board() }
func (e *Engine) Columns() []domain.Column    { return e.cache.Columns() }
func (e *Engine) Tasks() []domain.Task        { return e.cache.Tasks() }

func (e *Engine) Task(id string) (domain.Task, bool)       { return e.cache.Task(id) }
func (e *Engine) Column(id string) (domain.Column, bool)   { return e.cache.Column(id) }
func (e *Engine) Subtask(id string) (domain.Subtask, bool) { return e.cache.Subtask(id) }

// Snapshot copies the whole visible board under one write barrier.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, _ := e.cache.Board()
	return Snapshot{
		Board:   b,
		Columns: e.cache.Columns(),
		Tasks:   e.cache.Tasks(),
		Pending: e.queue.Pending(),
	}
}

func (e *Engine) TaskCountByStatus(status string) int { return e.cache.TaskCountByStatus(status) }

// Pending is the number of mutations that have not settled yet.
func (e *Engine) Pending() int { return e.queue.Pending() }

// Flush waits for every outstanding mutation to settle.
func (e *Engine) Flush(ctx context.Context) error { return e.queue.Flush(ctx) }

func (e *Engine) Close() { e.queue.Close() }

func (e *Engine) submit(m *Mutation, opts []SubmitOption, deps ...*Mutation) (*Mutation, error) {
	for _, o := range opts {
		o(m)
	}
	if err := e.queue.Submit(m, deps...); err != nil {
		return nil, err
	}
	return m, nil
}

func (e *Engine) CreateTask(t domain.Task, opts ...SubmitOption) (*Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submit(&Mutation{Kind: KindTask, Op: OpCreate, Task: t}, opts)
}

func (e *Engine) UpdateTask(id string, patch domain.TaskPatch, opts ...SubmitOption) (*Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submit(&Mutation{Kind: KindTask, Op: OpUpdate, EntityID: id, TaskPatch: patch}, opts)
}

func (e *Engine) DeleteTask(id string, opts ...SubmitOption) (*Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submit(&Mutation{Kind: KindTask, Op: OpDelete, EntityID: id}, opts)
}

// MoveTask applies a drag-and-drop. It returns a nil mutation when the drop
// changes nothing that is persisted.
func (e *Engine) MoveTask(d Drop, opts ...SubmitOption) (*Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d.TaskID = e.cache.Resolve(d.TaskID)
	patch, err := e.resolver.ResolveDrop(e.BoardID(), e.cache.Columns(), e.cache.Tasks(), d)
	if err != nil || patch == nil {
		return nil, err
	}
	return e.submit(&Mutation{Kind: KindTask, Op: OpUpdate, EntityID: d.TaskID, TaskPatch: *patch}, opts)
}

// CreateColumn appends a column after the existing ones.
func (e *Engine) CreateColumn(c domain.Column, opts ...SubmitOption) (*Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c.Order = len(e.cache.Columns())
	return e.submit(&Mutation{Kind: KindColumn, Op: OpCreate, Column: c}, opts)
}

// UpdateColumn edits title, status key or color. Order changes go through
// MoveColumn so indices stay contiguous.
func (e *Engine) UpdateColumn(id string, patch domain.ColumnPatch, opts ...SubmitOption) (*Mutation, error) {
	if patch.Order != nil {
		return nil, &domain.ValidationError{Field: "order", Reason: "is changed by moving the column"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submit(&Mutation{Kind: KindColumn, Op: OpUpdate, EntityID: id, ColumnPatch: patch}, opts)
}

// DeleteColumn moves the column's tasks to fallbackID (or the first remaining
// column), deletes it and closes the gap in order indices. The returned
// mutations are in submission order; the column delete runs only after every
// migration committed.
func (e *Engine) DeleteColumn(columnID, fallbackID string, opts ...SubmitOption) ([]*Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	plan, err := e.resolver.PlanColumnDelete(e.BoardID(), e.cache.Columns(), e.cache.Tasks(),
		e.cache.Resolve(columnID), e.cache.Resolve(fallbackID))
	if err != nil {
		return nil, err
	}

	del := &Mutation{Kind: KindColumn, Op: OpDelete, EntityID: plan.Column.ID}
	for _, o := range opts {
		o(del)
	}
	derive := derivedKeys(del.IdempotencyKey)

	var out, migrations []*Mutation
	for _, mg := range plan.Migrations {
		m, err := e.submit(&Mutation{Kind: KindTask, Op: OpUpdate, EntityID: mg.TaskID, TaskPatch: mg.Patch, IdempotencyKey: derive()}, nil)
		if err != nil {
			return out, fmt.Errorf("migrate task %s: %w", mg.TaskID, err)
		}
		migrations = append(migrations, m)
		out = append(out, m)
	}
	if _, err := e.submit(del, nil, migrations...); err != nil {
		return out, err
	}
	out = append(out, del)
	for _, r := range plan.Reindex {
		order := r.Order
		m, err := e.submit(&Mutation{Kind: KindColumn, Op: OpUpdate, EntityID: r.ColumnID, ColumnPatch: domain.ColumnPatch{Order: &order}, IdempotencyKey: derive()}, nil, del)
		if err != nil {
			return out, fmt.Errorf("reindex column %s: %w", r.ColumnID, err)
		}
		out = append(out, m)
	}
	e.logger.WithFields(log.Fields{
		"board":      e.BoardID(),
		"column":     plan.Column.ID,
		"fallback":   plan.Fallback.ID,
		"migrations": len(plan.Migrations),
	}).Info("column delete planned")
	return out, nil
}

// MoveColumn drags the column at index from to index to.
func (e *Engine) MoveColumn(from, to int, opts ...SubmitOption) ([]*Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	plan, err := e.resolver.PlanColumnMove(e.cache.Columns(), from, to)
	if err != nil {
		return nil, err
	}
	base := ""
	if len(opts) > 0 {
		probe := &Mutation{}
		for _, o := range opts {
			o(probe)
		}
		base = probe.IdempotencyKey
	}
	derive := derivedKeys(base)
	var out []*Mutation
	for _, r := range plan {
		order := r.Order
		m, err := e.submit(&Mutation{Kind: KindColumn, Op: OpUpdate, EntityID: r.ColumnID, ColumnPatch: domain.ColumnPatch{Order: &order}, IdempotencyKey: derive()}, nil)
		if err != nil {
			return out, fmt.Errorf("reorder column %s: %w", r.ColumnID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (e *Engine) CreateSubtask(taskID, title string, opts ...SubmitOption) (*Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submit(&Mutation{Kind: KindSubtask, Op: OpCreate, Subtask: domain.Subtask{TaskID: taskID, Title: title}}, opts)
}

func (e *Engine) UpdateSubtask(id string, patch domain.SubtaskPatch, opts ...SubmitOption) (*Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submit(&Mutation{Kind: KindSubtask, Op: OpUpdate, EntityID: id, SubtaskPatch: patch}, opts)
}

// ToggleSubtask flips the completed flag of a subtask as currently displayed.
func (e *Engine) ToggleSubtask(id string, opts ...SubmitOption) (*Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.cache.Subtask(id)
	if !ok {
		return nil, &domain.NotFoundError{Kind: domain.EntitySubtask, ID: id}
	}
	done := !s.Completed
	return e.submit(&Mutation{Kind: KindSubtask, Op: OpUpdate, EntityID: id, SubtaskPatch: domain.SubtaskPatch{Completed: &done}}, opts)
}

func (e *Engine) DeleteSubtask(id string, opts ...SubmitOption) (*Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submit(&Mutation{Kind: KindSubtask, Op: OpDelete, EntityID: id}, opts)
}

// derivedKeys yields "<base>/1", "<base>/2"... or empty keys (the queue then
// assigns random ones) when base is empty.
func derivedKeys(base string) func() string {
	n := 0
	return func() string {
		if base == "" {
			return ""
		}
		n++
		return fmt.Sprintf("%s/%d", base, n)
	}
}
