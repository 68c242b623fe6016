package board

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/Adarsh9315/task-palette-organize/domain"
)

func newTestRegistry(t *testing.T) (*Registry, *fakeRemote) {
	t.Helper()
	remote := newFakeRemote()
	seedBoard(remote)
	logger, _ := test.NewNullLogger()
	r := NewRegistry(remote, Options{Logger: logger})
	t.Cleanup(func() { r.Close(context.Background()) })
	return r, remote
}

func TestRegistryLoadsOncePerBoard(t *testing.T) {
	r, remote := newTestRegistry(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	engines := make([]*Engine, 8)
	for i := range engines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := r.Get(ctx, "b1")
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			engines[i] = e
		}(i)
	}
	wg.Wait()
	for _, e := range engines[1:] {
		if e != engines[0] {
			t.Fatalf("expected one shared engine")
		}
	}
	loads := 0
	for _, c := range remote.callLog() {
		if c == "GetBoard b1" {
			loads++
		}
	}
	if loads != 1 {
		t.Fatalf("expected a single load, got %d", loads)
	}
}

func TestRegistryFailedLoadIsRetried(t *testing.T) {
	r, remote := newTestRegistry(t)
	remote.failOnceOn("GetBoard b1", &domain.NetworkError{Op: "get board", Err: errors.New("reset")})

	if _, err := r.Get(context.Background(), "b1"); err == nil {
		t.Fatalf("expected load failure")
	}
	if _, ok := r.Lookup("b1"); ok {
		t.Fatalf("failed load must not be cached")
	}
	if _, err := r.Get(context.Background(), "b1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestRegistryCreateBoardWithDefaultColumns(t *testing.T) {
	r, remote := newTestRegistry(t)
	ctx := context.Background()

	b, cols, err := r.CreateBoard(ctx, domain.Board{OwnerID: "u1", Title: "Sprint"}, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(cols) != 3 || cols[0].Status != "todo" || cols[2].Status != "done" {
		t.Fatalf("unexpected default columns %+v", cols)
	}
	e, err := r.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := e.Columns(); len(got) != 3 || got[1].Title != "DOING" {
		t.Fatalf("engine columns %+v", got)
	}

	bare, cols, err := r.CreateBoard(ctx, domain.Board{OwnerID: "u1", Title: "Empty"}, false)
	if err != nil || len(cols) != 0 {
		t.Fatalf("bare board: %v %+v", err, cols)
	}
	if got, _ := remote.ListColumns(ctx, bare.ID); len(got) != 0 {
		t.Fatalf("expected no columns, got %+v", got)
	}
}

func TestRegistryUpdateBoardRefreshesEngine(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	e, err := r.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := r.UpdateBoard(ctx, "b1", domain.BoardPatch{Title: strPtr("Roadmap 2")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if b, _ := e.Board(); b.Title != "Roadmap 2" {
		t.Fatalf("engine kept stale title %q", b.Title)
	}
}

func TestRegistryDeleteBoardEvictsEngine(t *testing.T) {
	r, remote := newTestRegistry(t)
	ctx := context.Background()
	e, err := r.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := r.DeleteBoard(ctx, "b1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := r.Lookup("b1"); ok {
		t.Fatalf("engine still registered")
	}
	if _, err := e.CreateTask(domain.Task{Title: "late", Status: "todo"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed engine, got %v", err)
	}
	var nf *domain.NotFoundError
	if _, err := r.Get(ctx, "b1"); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if boards, _ := remote.ListBoards(ctx, "u1"); len(boards) != 0 {
		t.Fatalf("board still stored: %+v", boards)
	}
}
