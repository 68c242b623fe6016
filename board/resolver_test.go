package board

import (
	"errors"
	"testing"

	"github.com/Adarsh9315/task-palette-organize/domain"
)

func fixtureColumns() []domain.Column {
	return []domain.Column{
		{ID: "c2", Status: "in-progress", Order: 1},
		{ID: "c1", Status: "todo", Order: 0},
		{ID: "c3", Status: "done", Order: 2},
	}
}

func fixtureTasks() []domain.Task {
	return []domain.Task{
		{ID: "t1", Status: "todo"},
		{ID: "t2", Status: "in-progress"},
		{ID: "t3", Status: "todo"},
	}
}

func TestResolveDrop(t *testing.T) {
	var r Resolver
	loc := func(status string, index int) *domain.DropLocation {
		return &domain.DropLocation{Status: status, Index: index}
	}
	tests := []struct {
		name   string
		drop   Drop
		status string
	}{
		{"no destination", Drop{TaskID: "t1", Source: *loc("todo", 0)}, ""},
		{"same place", Drop{TaskID: "t1", Source: *loc("todo", 0), Destination: loc("todo", 0)}, ""},
		{"reorder within column", Drop{TaskID: "t1", Source: *loc("todo", 0), Destination: loc("todo", 1)}, ""},
		{"cross column", Drop{TaskID: "t1", Source: *loc("todo", 0), Destination: loc("done", 3)}, "done"},
		{"stale source already moved", Drop{TaskID: "t2", Source: *loc("todo", 0), Destination: loc("in-progress", 0)}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch, err := r.ResolveDrop("b1", fixtureColumns(), fixtureTasks(), tt.drop)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.status == "" {
				if patch != nil {
					t.Fatalf("expected no mutation, got %+v", patch)
				}
				return
			}
			if patch == nil || patch.Status == nil || *patch.Status != tt.status {
				t.Fatalf("expected status patch %q, got %+v", tt.status, patch)
			}
			if patch.Title != nil || patch.Description != nil || patch.Priority != nil {
				t.Fatalf("drop must only change status")
			}
		})
	}
}

func TestResolveDropErrors(t *testing.T) {
	var r Resolver
	_, err := r.ResolveDrop("b1", fixtureColumns(), fixtureTasks(), Drop{
		TaskID:      "missing",
		Source:      domain.DropLocation{Status: "todo"},
		Destination: &domain.DropLocation{Status: "done"},
	})
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	_, err = r.ResolveDrop("b1", fixtureColumns(), fixtureTasks(), Drop{
		TaskID:      "t1",
		Source:      domain.DropLocation{Status: "todo"},
		Destination: &domain.DropLocation{Status: "blocked"},
	})
	var ce *domain.ConflictError
	if !errors.As(err, &ce) || ce.BoardID != "b1" {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestPlanColumnDelete(t *testing.T) {
	var r Resolver
	plan, err := r.PlanColumnDelete("b1", fixtureColumns(), fixtureTasks(), "c1", "")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Fallback.ID != "c2" {
		t.Fatalf("expected first remaining column as fallback, got %s", plan.Fallback.ID)
	}
	if len(plan.Migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(plan.Migrations))
	}
	for _, mg := range plan.Migrations {
		if *mg.Patch.Status != "in-progress" {
			t.Fatalf("migration to %q", *mg.Patch.Status)
		}
	}
	want := map[string]int{"c2": 0, "c3": 1}
	if len(plan.Reindex) != len(want) {
		t.Fatalf("unexpected reindex %+v", plan.Reindex)
	}
	for _, ro := range plan.Reindex {
		if want[ro.ColumnID] != ro.Order {
			t.Fatalf("unexpected reindex %+v", plan.Reindex)
		}
	}

	plan, err = r.PlanColumnDelete("b1", fixtureColumns(), fixtureTasks(), "c3", "c1")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Migrations) != 0 || len(plan.Reindex) != 0 {
		t.Fatalf("deleting the last column by order needs no work, got %+v", plan)
	}
}

func TestPlanColumnDeleteErrors(t *testing.T) {
	var r Resolver
	only := []domain.Column{{ID: "c1", Status: "todo"}}
	_, err := r.PlanColumnDelete("b1", only, nil, "c1", "")
	var lc *domain.LastColumnError
	if !errors.As(err, &lc) || lc.ColumnID != "c1" {
		t.Fatalf("expected LastColumnError, got %v", err)
	}

	var nf *domain.NotFoundError
	if _, err := r.PlanColumnDelete("b1", fixtureColumns(), nil, "nope", ""); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if _, err := r.PlanColumnDelete("b1", fixtureColumns(), nil, "c1", "nope"); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for fallback, got %v", err)
	}
	var ve *domain.ValidationError
	if _, err := r.PlanColumnDelete("b1", fixtureColumns(), nil, "c1", "c1"); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestPlanColumnMove(t *testing.T) {
	var r Resolver
	plan, err := r.PlanColumnMove(fixtureColumns(), 0, 2)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	want := map[string]int{"c1": 2, "c2": 0, "c3": 1}
	if len(plan) != 3 {
		t.Fatalf("unexpected plan %+v", plan)
	}
	for _, ro := range plan {
		if want[ro.ColumnID] != ro.Order {
			t.Fatalf("unexpected plan %+v", plan)
		}
	}
	plan, err = r.PlanColumnMove(fixtureColumns(), 1, 2)
	if err != nil || len(plan) != 2 {
		t.Fatalf("adjacent swap should touch two columns, got %+v, %v", plan, err)
	}
	var ve *domain.ValidationError
	if _, err := r.PlanColumnMove(fixtureColumns(), 0, 3); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
