package board

import (
	"context"
	"fmt"
	"sync"

	"github.com/Adarsh9315/task-palette-organize/domain"
)

// Kind identifies the entity table a mutation targets.
type Kind int

const (
	KindColumn Kind = iota + 1
	KindTask
	KindSubtask
)

func (k Kind) String() string {
	switch k {
	case KindColumn:
		return domain.EntityColumn
	case KindTask:
		return domain.EntityTask
	case KindSubtask:
		return domain.EntitySubtask
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	for _, v := range []Kind{KindColumn, KindTask, KindSubtask} {
		if v.String() == string(b) {
			*k = v
			return nil
		}
	}
	return fmt.Errorf("unknown entity kind %q", b)
}

// Op is the write operation of a mutation.
type Op int

const (
	OpCreate Op = iota + 1
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

func (o Op) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Op) UnmarshalText(b []byte) error {
	for _, v := range []Op{OpCreate, OpUpdate, OpDelete} {
		if v.String() == string(b) {
			*o = v
			return nil
		}
	}
	return fmt.Errorf("unknown op %q", b)
}

// State is the lifecycle position of a mutation:
// Pending -> InFlight -> Committed | RolledBack.
type State int

const (
	Pending State = iota
	InFlight
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InFlight:
		return "in-flight"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled-back"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for _, v := range []State{Pending, InFlight, Committed, RolledBack} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Mutation is one optimistic write submitted to the Queue. The payload field
// matching Kind and Op is the only one read. After submission the value doubles
// as the caller's handle to follow the write until it settles.
type Mutation struct {
	Kind           Kind
	Op             Op
	EntityID       string
	IdempotencyKey string

	Column       domain.Column
	ColumnPatch  domain.ColumnPatch
	Task         domain.Task
	TaskPatch    domain.TaskPatch
	Subtask      domain.Subtask
	SubtaskPatch domain.SubtaskPatch

	seq  uint64
	deps []*Mutation

	mu           sync.Mutex
	state        State
	err          error
	supersededBy *Mutation
	committedID  string
	done         chan struct{}
}

// Seq is the submission sequence number; zero before submission.
func (m *Mutation) Seq() uint64 { return m.seq }

// State reports the current lifecycle state.
func (m *Mutation) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err is the failure that rolled the mutation back, if any.
func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Superseded reports whether the mutation was dropped before dispatch because a
// newer mutation on the same entity replaced it.
func (m *Mutation) Superseded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.supersededBy != nil
}

// ServerID is the id assigned by the remote store once a creation commits,
// otherwise the id the mutation was submitted with.
func (m *Mutation) ServerID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committedID != "" {
		return m.committedID
	}
	return m.EntityID
}

// Done is closed once the mutation reaches a terminal state.
func (m *Mutation) Done() <-chan struct{} { return m.done }

// Wait blocks until the mutation settles and returns its failure, if any.
// Superseded mutations settle without error.
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mutation) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// finish records the terminal state. Done is closed separately once the
// settlement has been reported.
func (m *Mutation) finish(s State, err error) {
	m.mu.Lock()
	m.state = s
	m.err = err
	m.mu.Unlock()
}

// effective follows the supersession chain to the mutation that carries this
// one's intent.
func (m *Mutation) effective() *Mutation {
	cur := m
	for {
		cur.mu.Lock()
		next := cur.supersededBy
		cur.mu.Unlock()
		if next == nil {
			return cur
		}
		cur = next
	}
}

// WaitAll waits for every mutation and returns the first failure.
func WaitAll(ctx context.Context, ms ...*Mutation) error {
	var first error
	for _, m := range ms {
		if m == nil {
			continue
		}
		if err := m.Wait(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
