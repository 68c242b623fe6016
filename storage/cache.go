package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/Adarsh9315/task-palette-organize/board"
	"github.com/Adarsh9315/task-palette-organize/domain"
)

var (
	_ board.Remote = (*SQL)(nil)
	_ board.Remote = (*Tables)(nil)
	_ board.Remote = (*Cache)(nil)
)

// parentsKey maps task, column and subtask ids to the id their list is cached under.
const parentsKey = "parents"

// Cache wraps a remote store with Redis-backed caching for read operations.
// Writes go straight to the backing store and evict the affected lists.
type Cache struct {
	base  board.Remote
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base board.Remote, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

// Base returns the wrapped store.
func (c *Cache) Base() board.Remote { return c.base }

func boardsCacheKey(ownerID string) string  { return "boards:" + ownerID }
func boardCacheKey(id string) string        { return "board:" + id }
func columnsCacheKey(boardID string) string { return "columns:" + boardID }
func tasksCacheKey(boardID string) string   { return "tasks:" + boardID }
func subtasksCacheKey(taskID string) string { return "subtasks:" + taskID }

// cached serves key from Redis or falls back to fetch and stores the result.
func cached[T any](ctx context.Context, c *Cache, key string, fetch func() (T, error)) (T, error) {
	if v, ok := load[T](ctx, c, key); ok {
		return v, nil
	}
	v, err := fetch()
	if err != nil {
		return v, err
	}
	c.store(ctx, key, v)
	return v, nil
}

func load[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T
	if c.redis == nil {
		return v, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return v, false
	}
	if err := sonic.Unmarshal(data, &v); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return v, false
	}
	return v, true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil || len(keys) == 0 {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

// remember records the parent of each child id so deletes can evict lists.
func (c *Cache) remember(ctx context.Context, parent string, children ...string) {
	if c.redis == nil || c.ttl == 0 || len(children) == 0 {
		return
	}
	values := make([]any, 0, len(children)*2)
	for _, id := range children {
		values = append(values, id, parent)
	}
	_ = c.redis.HSet(ctx, parentsKey, values...).Err()
}

func (c *Cache) parent(ctx context.Context, id string) string {
	if c.redis == nil {
		return ""
	}
	p, err := c.redis.HGet(ctx, parentsKey, id).Result()
	if err != nil {
		return ""
	}
	return p
}

func (c *Cache) forget(ctx context.Context, ids ...string) {
	if c.redis == nil || len(ids) == 0 {
		return
	}
	_ = c.redis.HDel(ctx, parentsKey, ids...).Err()
}

func (c *Cache) ListBoards(ctx context.Context, ownerID string) ([]domain.Board, error) {
	return cached(ctx, c, boardsCacheKey(ownerID), func() ([]domain.Board, error) {
		return c.base.ListBoards(ctx, ownerID)
	})
}

func (c *Cache) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	return cached(ctx, c, boardCacheKey(id), func() (domain.Board, error) {
		return c.base.GetBoard(ctx, id)
	})
}

func (c *Cache) CreateBoard(ctx context.Context, b domain.Board) (domain.Board, error) {
	created, err := c.base.CreateBoard(ctx, b)
	if err != nil {
		return created, err
	}
	c.evict(ctx, boardsCacheKey(created.OwnerID))
	return created, nil
}

func (c *Cache) UpdateBoard(ctx context.Context, id string, patch domain.BoardPatch) (domain.Board, error) {
	updated, err := c.base.UpdateBoard(ctx, id, patch)
	if err != nil {
		return updated, err
	}
	c.evict(ctx, boardCacheKey(id), boardsCacheKey(updated.OwnerID))
	return updated, nil
}

func (c *Cache) DeleteBoard(ctx context.Context, id string) error {
	b, err := c.GetBoard(ctx, id)
	if err != nil {
		return err
	}
	if err := c.base.DeleteBoard(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, boardCacheKey(id), boardsCacheKey(b.OwnerID), columnsCacheKey(id), tasksCacheKey(id))
	return nil
}

func (c *Cache) ListColumns(ctx context.Context, boardID string) ([]domain.Column, error) {
	if cols, ok := load[[]domain.Column](ctx, c, columnsCacheKey(boardID)); ok {
		return cols, nil
	}
	cols, err := c.base.ListColumns(ctx, boardID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, columnsCacheKey(boardID), cols)
	ids := make([]string, 0, len(cols))
	for _, col := range cols {
		ids = append(ids, col.ID)
	}
	c.remember(ctx, boardID, ids...)
	return cols, nil
}

func (c *Cache) CreateColumn(ctx context.Context, col domain.Column, boardID string) (domain.Column, error) {
	created, err := c.base.CreateColumn(ctx, col, boardID)
	if err != nil {
		return created, err
	}
	c.evict(ctx, columnsCacheKey(boardID))
	c.remember(ctx, boardID, created.ID)
	return created, nil
}

func (c *Cache) UpdateColumn(ctx context.Context, id string, patch domain.ColumnPatch) (domain.Column, error) {
	updated, err := c.base.UpdateColumn(ctx, id, patch)
	if err != nil {
		return updated, err
	}
	c.evict(ctx, columnsCacheKey(updated.BoardID))
	return updated, nil
}

func (c *Cache) DeleteColumn(ctx context.Context, id string) error {
	boardID := c.parent(ctx, id)
	if err := c.base.DeleteColumn(ctx, id); err != nil {
		return err
	}
	if boardID != "" {
		c.evict(ctx, columnsCacheKey(boardID))
	}
	c.forget(ctx, id)
	return nil
}

func (c *Cache) ListTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	if tasks, ok := load[[]domain.Task](ctx, c, tasksCacheKey(boardID)); ok {
		return tasks, nil
	}
	tasks, err := c.base.ListTasks(ctx, boardID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, tasksCacheKey(boardID), tasks)
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	c.remember(ctx, boardID, ids...)
	return tasks, nil
}

func (c *Cache) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	created, err := c.base.CreateTask(ctx, t)
	if err != nil {
		return created, err
	}
	c.evict(ctx, tasksCacheKey(created.BoardID))
	c.remember(ctx, created.BoardID, created.ID)
	return created, nil
}

func (c *Cache) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	updated, err := c.base.UpdateTask(ctx, id, patch)
	if err != nil {
		return updated, err
	}
	c.evict(ctx, tasksCacheKey(updated.BoardID))
	return updated, nil
}

func (c *Cache) DeleteTask(ctx context.Context, id string) error {
	boardID := c.parent(ctx, id)
	if err := c.base.DeleteTask(ctx, id); err != nil {
		return err
	}
	keys := []string{subtasksCacheKey(id)}
	if boardID != "" {
		keys = append(keys, tasksCacheKey(boardID))
	}
	c.evict(ctx, keys...)
	c.forget(ctx, id)
	return nil
}

func (c *Cache) ListSubtasks(ctx context.Context, taskID string) ([]domain.Subtask, error) {
	if subs, ok := load[[]domain.Subtask](ctx, c, subtasksCacheKey(taskID)); ok {
		return subs, nil
	}
	subs, err := c.base.ListSubtasks(ctx, taskID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, subtasksCacheKey(taskID), subs)
	ids := make([]string, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.ID)
	}
	c.remember(ctx, taskID, ids...)
	return subs, nil
}

func (c *Cache) CreateSubtask(ctx context.Context, s domain.Subtask, taskID string) (domain.Subtask, error) {
	created, err := c.base.CreateSubtask(ctx, s, taskID)
	if err != nil {
		return created, err
	}
	c.evict(ctx, subtasksCacheKey(taskID))
	c.remember(ctx, taskID, created.ID)
	return created, nil
}

func (c *Cache) UpdateSubtask(ctx context.Context, id string, patch domain.SubtaskPatch) (domain.Subtask, error) {
	updated, err := c.base.UpdateSubtask(ctx, id, patch)
	if err != nil {
		return updated, err
	}
	c.evict(ctx, subtasksCacheKey(updated.TaskID))
	return updated, nil
}

func (c *Cache) DeleteSubtask(ctx context.Context, id string) error {
	taskID := c.parent(ctx, id)
	if err := c.base.DeleteSubtask(ctx, id); err != nil {
		return err
	}
	if taskID != "" {
		c.evict(ctx, subtasksCacheKey(taskID))
	}
	c.forget(ctx, id)
	return nil
}
