package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Adarsh9315/task-palette-organize/board"
	"github.com/Adarsh9315/task-palette-organize/domain"
)

// maxWait bounds how long a ?wait=true batch blocks for its mutations.
const maxWait = 30 * time.Second

type mutationResult struct {
	Seq      uint64 `json:"seq"`
	EntityID string `json:"entityId,omitempty"`
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
}

type commandResult struct {
	IdempotencyKey string           `json:"idempotencyKey"`
	Type           string           `json:"type"`
	Duplicate      bool             `json:"duplicate,omitempty"`
	Status         int              `json:"status"`
	Error          string           `json:"error,omitempty"`
	Mutations      []mutationResult `json:"mutations,omitempty"`

	handles []*board.Mutation
}

type postCommandsResponse struct {
	Results []commandResult `json:"results"`
}

var commandEntity = map[string]string{
	domain.TaskCreated:    domain.EntityTask,
	domain.TaskUpdated:    domain.EntityTask,
	domain.TaskDeleted:    domain.EntityTask,
	domain.TaskMoved:      domain.EntityTask,
	domain.ColumnCreated:  domain.EntityColumn,
	domain.ColumnUpdated:  domain.EntityColumn,
	domain.ColumnDeleted:  domain.EntityColumn,
	domain.ColumnMoved:    domain.EntityColumn,
	domain.SubtaskCreated: domain.EntitySubtask,
	domain.SubtaskUpdated: domain.EntitySubtask,
	domain.SubtaskDeleted: domain.EntitySubtask,
}

func postCommands(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, err := userID(c, d)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		cmds := make([]domain.Command, 0, 4)
		if err := decodeBody(c, &cmds); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		ctx := c.Request().Context()
		boardID := c.Param("id")
		eng, err := ownedEngine(ctx, d, uid, boardID)
		if err != nil {
			return fail(c, d, err)
		}

		keys := make([]string, len(cmds))
		for i := range cmds {
			if cmds[i].IdempotencyKey == "" {
				cmds[i].IdempotencyKey = uuid.NewString()
			}
			cmds[i].Timestamp = nextTimestamp()
			keys[i] = cmds[i].IdempotencyKey
		}
		fresh := make([]bool, len(cmds))
		for i := range fresh {
			fresh[i] = true
		}
		if d.Deduper != nil {
			added, derr := d.Deduper.AddMany(ctx, boardID, keys)
			if derr != nil {
				for i, ok := range added {
					if ok {
						_ = d.Deduper.Remove(ctx, boardID, keys[i])
					}
				}
				d.Logger.WithError(derr).WithField("board", boardID).Error("dedupe failed")
				return c.String(http.StatusServiceUnavailable, "dedupe unavailable")
			}
			fresh = added
		}

		results := make([]commandResult, len(cmds))
		for i, cmd := range cmds {
			res := commandResult{IdempotencyKey: cmd.IdempotencyKey, Type: cmd.Type, Status: http.StatusAccepted}
			if !fresh[i] {
				res.Duplicate = true
				res.Status = http.StatusOK
				results[i] = res
				continue
			}
			handles, err := applyCommand(eng, cmd)
			if err != nil {
				res.Status = statusFor(err)
				res.Error = err.Error()
				if d.Deduper != nil {
					if rerr := d.Deduper.Remove(ctx, boardID, cmd.IdempotencyKey); rerr != nil {
						d.Logger.Errorf("dedupe rollback failed, err: %v, key: %s, board: %s", rerr, cmd.IdempotencyKey, boardID)
					}
				}
			}
			res.handles = handles
			results[i] = res
		}

		if wait, _ := strconv.ParseBool(c.QueryParam("wait")); wait {
			wctx, cancel := context.WithTimeout(ctx, maxWait)
			for _, r := range results {
				_ = board.WaitAll(wctx, r.handles...)
			}
			cancel()
		}
		for i := range results {
			results[i].Mutations = describe(results[i].handles)
		}

		d.Logger.WithFields(log.Fields{
			"board":    boardID,
			"user":     uid,
			"commands": len(cmds),
		}).Debug("commands accepted")
		return c.JSON(http.StatusAccepted, postCommandsResponse{Results: results})
	}
}

func describe(ms []*board.Mutation) []mutationResult {
	if len(ms) == 0 {
		return nil
	}
	out := make([]mutationResult, 0, len(ms))
	for _, m := range ms {
		r := mutationResult{Seq: m.Seq(), EntityID: m.ServerID(), State: m.State().String()}
		if err := m.Err(); err != nil {
			r.Error = err.Error()
		}
		out = append(out, r)
	}
	return out
}

func decodeData(cmd domain.Command, v any) error {
	if len(cmd.Data) == 0 {
		return &domain.ValidationError{Field: "data", Reason: "is required for " + cmd.Type}
	}
	if err := sonic.Unmarshal(cmd.Data, v); err != nil {
		return &domain.ValidationError{Field: "data", Reason: err.Error()}
	}
	return nil
}

func requireEntityID(cmd domain.Command) error {
	if cmd.EntityID == "" {
		return &domain.ValidationError{Field: "entityId", Reason: "is required for " + cmd.Type}
	}
	return nil
}

// applyCommand translates one client command into engine writes.
func applyCommand(eng *board.Engine, cmd domain.Command) ([]*board.Mutation, error) {
	entity, ok := commandEntity[cmd.Type]
	if !ok {
		return nil, &domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown command %q", cmd.Type)}
	}
	if cmd.EntityType != "" && cmd.EntityType != entity {
		return nil, &domain.ValidationError{Field: "entityType", Reason: fmt.Sprintf("%s does not apply to %s", cmd.Type, cmd.EntityType)}
	}
	key := board.WithIdempotencyKey(cmd.IdempotencyKey)
	one := func(m *board.Mutation, err error) ([]*board.Mutation, error) {
		if err != nil || m == nil {
			return nil, err
		}
		return []*board.Mutation{m}, nil
	}

	switch cmd.Type {
	case domain.TaskCreated:
		var t domain.Task
		if err := decodeData(cmd, &t); err != nil {
			return nil, err
		}
		return one(eng.CreateTask(t, key))
	case domain.TaskUpdated:
		var p domain.TaskPatch
		if err := requireEntityID(cmd); err != nil {
			return nil, err
		}
		if err := decodeData(cmd, &p); err != nil {
			return nil, err
		}
		return one(eng.UpdateTask(cmd.EntityID, p, key))
	case domain.TaskDeleted:
		if err := requireEntityID(cmd); err != nil {
			return nil, err
		}
		return one(eng.DeleteTask(cmd.EntityID, key))
	case domain.TaskMoved:
		var data domain.TaskMovedData
		if err := requireEntityID(cmd); err != nil {
			return nil, err
		}
		if err := decodeData(cmd, &data); err != nil {
			return nil, err
		}
		return one(eng.MoveTask(board.Drop{TaskID: cmd.EntityID, Source: data.Source, Destination: data.Destination}, key))
	case domain.ColumnCreated:
		var col domain.Column
		if err := decodeData(cmd, &col); err != nil {
			return nil, err
		}
		return one(eng.CreateColumn(col, key))
	case domain.ColumnUpdated:
		var p domain.ColumnPatch
		if err := requireEntityID(cmd); err != nil {
			return nil, err
		}
		if err := decodeData(cmd, &p); err != nil {
			return nil, err
		}
		return one(eng.UpdateColumn(cmd.EntityID, p, key))
	case domain.ColumnDeleted:
		var data domain.ColumnDeletedData
		if err := requireEntityID(cmd); err != nil {
			return nil, err
		}
		if len(cmd.Data) > 0 {
			if err := decodeData(cmd, &data); err != nil {
				return nil, err
			}
		}
		return eng.DeleteColumn(cmd.EntityID, data.FallbackColumnID, key)
	case domain.ColumnMoved:
		var data domain.ColumnMovedData
		if err := decodeData(cmd, &data); err != nil {
			return nil, err
		}
		return eng.MoveColumn(data.From, data.To, key)
	case domain.SubtaskCreated:
		var data domain.SubtaskCreatedData
		if err := decodeData(cmd, &data); err != nil {
			return nil, err
		}
		return one(eng.CreateSubtask(data.TaskID, data.Title, key))
	case domain.SubtaskUpdated:
		var p domain.SubtaskPatch
		if err := requireEntityID(cmd); err != nil {
			return nil, err
		}
		if err := decodeData(cmd, &p); err != nil {
			return nil, err
		}
		return one(eng.UpdateSubtask(cmd.EntityID, p, key))
	default: // domain.SubtaskDeleted
		if err := requireEntityID(cmd); err != nil {
			return nil, err
		}
		return one(eng.DeleteSubtask(cmd.EntityID, key))
	}
}
