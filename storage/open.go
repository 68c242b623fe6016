package storage

import (
	"context"
	"fmt"

	"github.com/Adarsh9315/task-palette-organize/board"
	"github.com/Adarsh9315/task-palette-organize/config"
)

// Backend is the remote store selected by the configuration.
type Backend struct {
	Remote board.Remote
	// SQL is set for the sqlite backend, which also stores profiles.
	SQL    *SQL
	Tables *Tables
}

// Open creates the configured store and provisions its schema or tables.
func Open(ctx context.Context, cfg config.Config) (*Backend, error) {
	switch cfg.StorageBackend {
	case config.BackendSQLite:
		s, err := OpenSQL(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Backend{Remote: s, SQL: s}, nil
	case config.BackendTables:
		t, err := NewTables(cfg.StorageConnectionString, TableNames{
			Boards:   cfg.BoardsTable,
			Columns:  cfg.ColumnsTable,
			Tasks:    cfg.TasksTable,
			Subtasks: cfg.SubtasksTable,
		})
		if err != nil {
			return nil, fmt.Errorf("tables client: %w", err)
		}
		if err := t.EnsureTables(ctx); err != nil {
			return nil, fmt.Errorf("ensure tables: %w", err)
		}
		return &Backend{Remote: t, Tables: t}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

// Ping reports whether the store is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	if b.SQL != nil {
		return b.SQL.Ping(ctx)
	}
	_, err := b.Tables.svc.GetProperties(ctx, nil)
	return err
}

func (b *Backend) Close() error {
	if b.SQL != nil {
		return b.SQL.Close()
	}
	return nil
}
