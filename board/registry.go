package board

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Adarsh9315/task-palette-organize/domain"
)

type registryEntry struct {
	ready  chan struct{}
	engine *Engine
	err    error
}

// Registry hands out one loaded Engine per board. Engines share the remote
// store and options.
type Registry struct {
	remote Remote
	opts   Options

	mu      sync.Mutex
	engines map[string]*registryEntry
}

func NewRegistry(remote Remote, opts Options) *Registry {
	return &Registry{
		remote:  remote,
		opts:    opts.withDefaults(),
		engines: make(map[string]*registryEntry),
	}
}

// Remote exposes the store for board-level operations that bypass engines.
func (r *Registry) Remote() Remote { return r.remote }

// Get returns the engine of boardID, loading it on first use. A failed load is
// not cached.
func (r *Registry) Get(ctx context.Context, boardID string) (*Engine, error) {
	r.mu.Lock()
	if e, ok := r.engines[boardID]; ok {
		r.mu.Unlock()
		select {
		case <-e.ready:
			if e.err != nil {
				return nil, e.err
			}
			return e.engine, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e := &registryEntry{ready: make(chan struct{})}
	r.engines[boardID] = e
	r.mu.Unlock()

	eng := NewEngine(r.remote, r.opts)
	if err := eng.Load(ctx, boardID); err != nil {
		eng.Close()
		r.mu.Lock()
		delete(r.engines, boardID)
		r.mu.Unlock()
		e.err = err
		close(e.ready)
		return nil, err
	}
	e.engine = eng
	close(e.ready)
	r.opts.Logger.WithField("board", boardID).Info("board engine started")
	return eng, nil
}

// Lookup returns an already loaded engine without loading.
func (r *Registry) Lookup(boardID string) (*Engine, bool) {
	r.mu.Lock()
	e, ok := r.engines[boardID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
		return e.engine, e.engine != nil
	default:
		return nil, false
	}
}

// Evict closes and forgets the engine of boardID, e.g. after the board was
// deleted.
func (r *Registry) Evict(boardID string) {
	r.mu.Lock()
	e, ok := r.engines[boardID]
	delete(r.engines, boardID)
	r.mu.Unlock()
	if !ok {
		return
	}
	<-e.ready
	if e.engine != nil {
		e.engine.Close()
	}
}

// Close flushes every engine until ctx expires and then closes them.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	entries := make([]*registryEntry, 0, len(r.engines))
	for id, e := range r.engines {
		entries = append(entries, e)
		delete(r.engines, id)
	}
	r.mu.Unlock()

	for _, e := range entries {
		<-e.ready
		if e.engine == nil {
			continue
		}
		if err := e.engine.Flush(ctx); err != nil {
			r.opts.Logger.WithError(err).WithField("board", e.engine.BoardID()).Warn("closing board with outstanding mutations")
		}
		e.engine.Close()
	}
}

// ListBoards returns the boards of an owner straight from the store.
func (r *Registry) ListBoards(ctx context.Context, ownerID string) ([]domain.Board, error) {
	return r.remote.ListBoards(ctx, ownerID)
}

// CreateBoard persists a board and, when withDefaultColumns is set, the
// default column set. A failing column creation leaves the board in place
// with the columns created so far.
func (r *Registry) CreateBoard(ctx context.Context, b domain.Board, withDefaultColumns bool) (domain.Board, []domain.Column, error) {
	created, err := r.remote.CreateBoard(ctx, b)
	if err != nil {
		return domain.Board{}, nil, err
	}
	var cols []domain.Column
	if withDefaultColumns {
		for _, c := range domain.DefaultColumns() {
			col, err := r.remote.CreateColumn(ctx, c, created.ID)
			if err != nil {
				return created, cols, fmt.Errorf("create default column %s: %w", c.Status, err)
			}
			cols = append(cols, col)
		}
	}
	r.opts.Logger.WithFields(log.Fields{
		"board":   created.ID,
		"owner":   created.OwnerID,
		"columns": len(cols),
	}).Info("board created")
	return created, cols, nil
}

// UpdateBoard edits board metadata and refreshes a loaded engine.
func (r *Registry) UpdateBoard(ctx context.Context, id string, patch domain.BoardPatch) (domain.Board, error) {
	updated, err := r.remote.UpdateBoard(ctx, id, patch)
	if err != nil {
		return domain.Board{}, err
	}
	if eng, ok := r.Lookup(id); ok {
		eng.cache.setBoard(updated)
	}
	return updated, nil
}

// DeleteBoard closes the board's engine and removes it with everything on it.
func (r *Registry) DeleteBoard(ctx context.Context, id string) error {
	r.Evict(id)
	if err := r.remote.DeleteBoard(ctx, id); err != nil {
		return err
	}
	r.opts.Logger.WithField("board", id).Info("board deleted")
	return nil
}
