package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Adarsh9315/task-palette-organize/domain"
)

// TempIDPrefix marks ids assigned locally to creations the store has not
// confirmed yet.
const TempIDPrefix = "tmp-"

var (
	ErrClosed           = errors.New("mutation queue closed")
	errAlreadySubmitted = errors.New("mutation already submitted")
)

// PrerequisiteError rolls back a mutation whose prerequisite did not commit.
type PrerequisiteError struct {
	Seq  uint64
	Kind Kind
	Op   Op
	Err  error
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("prerequisite %s %s (seq %d) failed: %v", e.Kind, e.Op, e.Seq, e.Err)
}

func (e *PrerequisiteError) Unwrap() error { return e.Err }

// Settlement describes a mutation that reached a terminal state.
type Settlement struct {
	BoardID        string `json:"boardId"`
	Seq            uint64 `json:"seq"`
	IdempotencyKey string `json:"idempotencyKey"`
	Kind           Kind   `json:"entityType"`
	Op             Op     `json:"op"`
	EntityID       string `json:"entityId"`
	TempID         string `json:"tempId,omitempty"`
	State          State  `json:"state"`
	Superseded     bool   `json:"superseded,omitempty"`
	Error          string `json:"error,omitempty"`
	Err            error  `json:"-"`
}

// Notifier receives every settlement after the cache has been reconciled.
type Notifier interface {
	Notify(Settlement)
}

type NotifierFunc func(Settlement)

func (f NotifierFunc) Notify(s Settlement) { f(s) }

type laneKey struct {
	kind Kind
	id   string
}

// lane serializes the mutations of one entity. busy has been handed to a
// goroutine; next waits behind it and absorbs newer updates.
type lane struct {
	busy *Mutation
	next *Mutation
}

// Queue applies mutations to the cache optimistically and executes them
// against the remote store, one in-flight request per entity.
type Queue struct {
	cache   *Cache
	remote  Remote
	logger  *log.Logger
	timeout time.Duration
	notify  Notifier

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	seq    uint64
	lanes  map[laneKey]*lane
	open   int
	idle   chan struct{}
	closed bool
}

func NewQueue(cache *Cache, remote Remote, opts Options) *Queue {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		cache:   cache,
		remote:  remote,
		logger:  opts.Logger,
		timeout: opts.Timeout,
		notify:  opts.Notifier,
		ctx:     ctx,
		cancel:  cancel,
		lanes:   make(map[laneKey]*lane),
		idle:    idle,
	}
}

// Submit validates m, applies it to the cache and schedules its remote
// execution after deps settle. A subtask creation under an unconfirmed task
// depends on that task's creation implicitly. Validation failures are returned
// without touching the cache.
func (q *Queue) Submit(m *Mutation, deps ...*Mutation) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if m.done != nil {
		q.mu.Unlock()
		return errAlreadySubmitted
	}
	if m.Op == OpCreate {
		m.EntityID = TempIDPrefix + uuid.NewString()
	} else {
		m.EntityID = q.cache.Resolve(m.EntityID)
	}
	if m.IdempotencyKey == "" {
		m.IdempotencyKey = uuid.NewString()
	}
	if err := q.cache.applyOptimistic(m); err != nil {
		q.mu.Unlock()
		return err
	}

	q.seq++
	m.seq = q.seq
	m.state = Pending
	m.done = make(chan struct{})
	m.deps = append(m.deps, deps...)
	if m.Kind == KindSubtask && m.Op == OpCreate {
		if ln := q.lanes[laneKey{KindTask, m.Subtask.TaskID}]; ln != nil && ln.busy != nil && ln.busy.Op == OpCreate {
			m.deps = append(m.deps, ln.busy)
		}
	}
	q.begin()

	var superseded *Mutation
	key := laneKey{m.Kind, m.EntityID}
	ln := q.lanes[key]
	if ln == nil {
		ln = &lane{}
		q.lanes[key] = ln
	}
	if ln.next != nil {
		superseded = ln.next
		q.supersede(superseded, m)
		ln.next = nil
	}
	if ln.busy == nil {
		ln.busy = m
		go q.run(m)
	} else {
		ln.next = m
	}
	q.mu.Unlock()

	if superseded != nil {
		q.complete(superseded)
	}
	return nil
}

// supersede folds a still-pending mutation into m and retires it.
func (q *Queue) supersede(old, m *Mutation) {
	if old.Op == OpUpdate && m.Op == OpUpdate {
		switch m.Kind {
		case KindColumn:
			m.ColumnPatch = old.ColumnPatch.Merge(m.ColumnPatch)
		case KindTask:
			m.TaskPatch = old.TaskPatch.Merge(m.TaskPatch)
		case KindSubtask:
			m.SubtaskPatch = old.SubtaskPatch.Merge(m.SubtaskPatch)
		}
	}
	m.deps = append(m.deps, old.deps...)
	old.mu.Lock()
	old.supersededBy = m
	old.mu.Unlock()
	q.cache.drop(old)
	old.finish(RolledBack, nil)
}

func (q *Queue) run(m *Mutation) {
	for _, dep := range m.deps {
		cur := dep
		for {
			select {
			case <-cur.Done():
			case <-q.ctx.Done():
				q.settle(m, nil, q.ctx.Err())
				return
			}
			next := cur.effective()
			if next == cur {
				break
			}
			cur = next
		}
		if cur.State() != Committed {
			q.settle(m, nil, &PrerequisiteError{Seq: cur.seq, Kind: cur.Kind, Op: cur.Op, Err: cur.Err()})
			return
		}
	}

	id := q.cache.Resolve(m.EntityID)
	m.setState(InFlight)

	ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
	result, err := q.execute(ctx, m, id)
	cancel()
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		var nerr *domain.NetworkError
		if !errors.As(err, &nerr) {
			err = &domain.NetworkError{Op: m.Kind.String() + " " + m.Op.String(), Err: err}
		}
	}
	q.settle(m, result, err)
}

func (q *Queue) execute(ctx context.Context, m *Mutation, id string) (any, error) {
	switch m.Kind {
	case KindColumn:
		switch m.Op {
		case OpCreate:
			col := m.Column
			col.ID = ""
			return q.remote.CreateColumn(ctx, col, col.BoardID)
		case OpUpdate:
			return q.remote.UpdateColumn(ctx, id, m.ColumnPatch)
		case OpDelete:
			return nil, q.remote.DeleteColumn(ctx, id)
		}
	case KindTask:
		switch m.Op {
		case OpCreate:
			t := m.Task.Clone()
			t.ID = ""
			return q.remote.CreateTask(ctx, t)
		case OpUpdate:
			return q.remote.UpdateTask(ctx, id, m.TaskPatch)
		case OpDelete:
			return nil, q.remote.DeleteTask(ctx, id)
		}
	case KindSubtask:
		switch m.Op {
		case OpCreate:
			s := m.Subtask
			s.ID = ""
			s.TaskID = q.cache.Resolve(s.TaskID)
			return q.remote.CreateSubtask(ctx, s, s.TaskID)
		case OpUpdate:
			return q.remote.UpdateSubtask(ctx, id, m.SubtaskPatch)
		case OpDelete:
			return nil, q.remote.DeleteSubtask(ctx, id)
		}
	}
	return nil, fmt.Errorf("unsupported mutation %s %s", m.Kind, m.Op)
}

func (q *Queue) settle(m *Mutation, result any, err error) {
	q.mu.Lock()
	key := laneKey{m.Kind, q.cache.Resolve(m.EntityID)}
	q.cache.reconcile(m, result, err)

	state := Committed
	if err != nil {
		state = RolledBack
	}
	var orphan *Mutation
	if ln := q.lanes[key]; ln != nil && ln.busy == m {
		ln.busy = nil
		if m.Op == OpCreate {
			if err == nil {
				serverID := q.cache.Resolve(m.EntityID)
				m.mu.Lock()
				m.committedID = serverID
				m.mu.Unlock()
				if serverID != key.id {
					delete(q.lanes, key)
					key.id = serverID
					q.lanes[key] = ln
				}
			} else if ln.next != nil {
				orphan = ln.next
				ln.next = nil
				q.cache.drop(orphan)
			}
		}
		if ln.next != nil {
			ln.busy = ln.next
			ln.next = nil
			go q.run(ln.busy)
		} else {
			delete(q.lanes, key)
		}
	}
	m.finish(state, err)
	settled := []*Mutation{m}
	if orphan != nil {
		orphan.finish(RolledBack, &PrerequisiteError{Seq: m.seq, Kind: m.Kind, Op: m.Op, Err: err})
		settled = append(settled, orphan)
	}
	q.mu.Unlock()

	q.complete(settled...)
}

// complete reports settled mutations and then releases their waiters, so a
// returning Wait or Flush has observed every notification.
func (q *Queue) complete(ms ...*Mutation) {
	for _, m := range ms {
		q.report(m)
	}
	q.mu.Lock()
	for range ms {
		q.end()
	}
	q.mu.Unlock()
	for _, m := range ms {
		close(m.done)
	}
}

func (q *Queue) report(m *Mutation) {
	b, _ := q.cache.Board()
	boardID := b.ID
	s := Settlement{
		BoardID:        boardID,
		Seq:            m.seq,
		IdempotencyKey: m.IdempotencyKey,
		Kind:           m.Kind,
		Op:             m.Op,
		EntityID:       m.ServerID(),
		State:          m.State(),
		Superseded:     m.Superseded(),
		Err:            m.Err(),
	}
	if m.Op == OpCreate {
		s.TempID = m.EntityID
	}
	if s.Err != nil {
		s.Error = s.Err.Error()
	}

	entry := q.logger.WithFields(log.Fields{
		"board":  boardID,
		"seq":    s.Seq,
		"entity": s.Kind.String(),
		"op":     s.Op.String(),
		"id":     s.EntityID,
		"key":    s.IdempotencyKey,
	})
	switch {
	case s.Superseded:
		entry.Debug("mutation superseded")
	case s.Err != nil:
		entry.WithError(s.Err).Warn("mutation rolled back")
	default:
		entry.Debug("mutation committed")
	}

	if q.notify != nil {
		q.notify.Notify(s)
	}
}

func (q *Queue) begin() {
	if q.open == 0 {
		q.idle = make(chan struct{})
	}
	q.open++
}

func (q *Queue) end() {
	q.open--
	if q.open == 0 {
		close(q.idle)
	}
}

// Pending is the number of submitted mutations that have not settled.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.open
}

// Flush waits until every submitted mutation has settled.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further submissions, rolls back mutations that were never
// dispatched and cancels outstanding remote calls, which then roll back too.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	var dropped []*Mutation
	for _, ln := range q.lanes {
		if ln.next == nil {
			continue
		}
		m := ln.next
		ln.next = nil
		q.cache.drop(m)
		m.finish(RolledBack, ErrClosed)
		dropped = append(dropped, m)
	}
	q.cancel()
	q.mu.Unlock()

	q.complete(dropped...)
}
