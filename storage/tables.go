package storage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/Adarsh9315/task-palette-organize/domain"
)

// boardPartition holds every board row; boards are looked up by row key.
const boardPartition = "board"

// TableNames selects the Azure tables backing each entity kind.
type TableNames struct {
	Boards   string
	Columns  string
	Tasks    string
	Subtasks string
}

// Tables is the remote store backed by Azure Table storage.
//
// Layout: boards live in one partition keyed by id, columns and tasks are
// partitioned by board id and subtasks by task id.
type Tables struct {
	svc      *aztables.ServiceClient
	names    TableNames
	boards   *aztables.Client
	columns  *aztables.Client
	tasks    *aztables.Client
	subtasks *aztables.Client
	now      func() time.Time
}

// NewTables creates a Tables store from the given connection string.
func NewTables(connStr string, names TableNames) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Tables{
		svc:      svc,
		names:    names,
		boards:   svc.NewClient(names.Boards),
		columns:  svc.NewClient(names.Columns),
		tasks:    svc.NewClient(names.Tasks),
		subtasks: svc.NewClient(names.Subtasks),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// EnsureTables creates the backing tables, ignoring ones that already exist.
func (s *Tables) EnsureTables(ctx context.Context) error {
	for _, name := range []string{s.names.Boards, s.names.Columns, s.names.Tasks, s.names.Subtasks} {
		if name == "" {
			continue
		}
		_, err := s.svc.CreateTable(ctx, name, nil)
		if err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
		}
	}
	return nil
}

type boardEntity struct {
	aztables.Entity
	OwnerID     string `json:"OwnerID"`
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Theme       string `json:"Theme"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

func (e boardEntity) toDomain() domain.Board {
	return domain.Board{
		ID:          e.RowKey,
		OwnerID:     e.OwnerID,
		Title:       e.Title,
		Description: e.Description,
		Theme:       e.Theme,
		CreatedAt:   parseTime(e.CreatedAt),
		UpdatedAt:   parseTime(e.UpdatedAt),
	}
}

type columnEntity struct {
	aztables.Entity
	Title     string `json:"Title"`
	Status    string `json:"Status"`
	Color     string `json:"Color"`
	Order     int    `json:"ColumnOrder"`
	CreatedAt string `json:"CreatedAt"`
}

func (e columnEntity) toDomain() domain.Column {
	return domain.Column{
		ID:        e.RowKey,
		BoardID:   e.PartitionKey,
		Title:     e.Title,
		Status:    e.Status,
		Color:     e.Color,
		Order:     e.Order,
		CreatedAt: parseTime(e.CreatedAt),
	}
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Status      string `json:"Status"`
	Priority    string `json:"Priority"`
	DueDate     string `json:"DueDate"`
	AssignedTo  string `json:"AssignedTo"`
	Comments    int    `json:"Comments"`
	Attachments int    `json:"Attachments"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

func (e taskEntity) toDomain() (domain.Task, error) {
	t := domain.Task{
		ID:          e.RowKey,
		BoardID:     e.PartitionKey,
		Title:       e.Title,
		Description: e.Description,
		Status:      e.Status,
		Priority:    domain.Priority(e.Priority),
		Comments:    e.Comments,
		Attachments: e.Attachments,
		CreatedAt:   parseTime(e.CreatedAt),
		UpdatedAt:   parseTime(e.UpdatedAt),
	}
	if e.DueDate != "" {
		d := parseTime(e.DueDate)
		t.DueDate = &d
	}
	if e.AssignedTo != "" && e.AssignedTo != "[]" {
		if err := sonic.UnmarshalString(e.AssignedTo, &t.AssignedTo); err != nil {
			return domain.Task{}, err
		}
	}
	return t, nil
}

type subtaskEntity struct {
	aztables.Entity
	Title     string `json:"Title"`
	Completed bool   `json:"Completed"`
	CreatedAt string `json:"CreatedAt"`
}

func (e subtaskEntity) toDomain() domain.Subtask {
	return domain.Subtask{ID: e.RowKey, TaskID: e.PartitionKey, Title: e.Title, Completed: e.Completed}
}

func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// list pages through every entity matching filter and decodes it with fn.
func list(ctx context.Context, client *aztables.Client, filter string, fn func([]byte) error) error {
	pager := client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, e := range resp.Entities {
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return nil
}

var errMissing = errors.New("entity not found")

// find returns the raw entity with the given row key in any partition.
func find(ctx context.Context, client *aztables.Client, rowKey string) ([]byte, error) {
	var found []byte
	err := list(ctx, client, "RowKey eq "+quote(rowKey), func(e []byte) error {
		if found == nil {
			found = e
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errMissing
	}
	return found, nil
}

func add(ctx context.Context, client *aztables.Client, ent any) error {
	payload, err := sonic.Marshal(ent)
	if err == nil {
		_, err = client.AddEntity(ctx, payload, nil)
	}
	return err
}

func merge(ctx context.Context, client *aztables.Client, ent map[string]any) error {
	payload, err := sonic.Marshal(ent)
	if err == nil {
		et := azcore.ETagAny
		_, err = client.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	}
	return err
}

func remove(ctx context.Context, client *aztables.Client, pk, rk string) error {
	et := azcore.ETagAny
	_, err := client.DeleteEntity(ctx, pk, rk, &aztables.DeleteEntityOptions{IfMatch: &et})
	return err
}

func keys(pk, rk string) map[string]any {
	return map[string]any{"PartitionKey": pk, "RowKey": rk}
}

func (s *Tables) ListBoards(ctx context.Context, ownerID string) ([]domain.Board, error) {
	boards := []domain.Board{}
	filter := "PartitionKey eq " + quote(boardPartition) + " and OwnerID eq " + quote(ownerID)
	err := list(ctx, s.boards, filter, func(raw []byte) error {
		var ent boardEntity
		if err := sonic.Unmarshal(raw, &ent); err != nil {
			return err
		}
		boards = append(boards, ent.toDomain())
		return nil
	})
	if err != nil {
		return nil, tableError("list boards", "board", ownerID, err)
	}
	sortByCreated(boards, func(b domain.Board) time.Time { return b.CreatedAt })
	return boards, nil
}

func (s *Tables) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	resp, err := s.boards.GetEntity(ctx, boardPartition, id, nil)
	if err != nil {
		return domain.Board{}, tableError("get board", "board", id, err)
	}
	var ent boardEntity
	if err := sonic.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Board{}, err
	}
	return ent.toDomain(), nil
}

func (s *Tables) CreateBoard(ctx context.Context, b domain.Board) (domain.Board, error) {
	if err := b.Validate(); err != nil {
		return domain.Board{}, err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Theme == "" {
		b.Theme = domain.DefaultTheme
	}
	now := s.now()
	b.CreatedAt, b.UpdatedAt = now, now
	ent := boardEntity{
		Entity:      aztables.Entity{PartitionKey: boardPartition, RowKey: b.ID},
		OwnerID:     b.OwnerID,
		Title:       b.Title,
		Description: b.Description,
		Theme:       b.Theme,
		CreatedAt:   formatTime(now),
		UpdatedAt:   formatTime(now),
	}
	if err := add(ctx, s.boards, ent); err != nil {
		return domain.Board{}, tableError("create board", "board", b.ID, err)
	}
	return b, nil
}

func (s *Tables) UpdateBoard(ctx context.Context, id string, patch domain.BoardPatch) (domain.Board, error) {
	if err := patch.Validate(); err != nil {
		return domain.Board{}, err
	}
	cur, err := s.GetBoard(ctx, id)
	if err != nil {
		return domain.Board{}, err
	}
	next := patch.Apply(cur)
	next.UpdatedAt = s.now()
	ent := keys(boardPartition, id)
	ent["Title"] = next.Title
	ent["Description"] = next.Description
	ent["Theme"] = next.Theme
	ent["UpdatedAt"] = formatTime(next.UpdatedAt)
	if err := merge(ctx, s.boards, ent); err != nil {
		return domain.Board{}, tableError("update board", "board", id, err)
	}
	return next, nil
}

// DeleteBoard removes the board after its subtasks, tasks and columns.
func (s *Tables) DeleteBoard(ctx context.Context, id string) error {
	if _, err := s.GetBoard(ctx, id); err != nil {
		return err
	}
	tasks, err := s.ListTasks(ctx, id)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := s.DeleteTask(ctx, t.ID); err != nil && !isNotFound(err) {
			return err
		}
	}
	cols, err := s.ListColumns(ctx, id)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if err := remove(ctx, s.columns, id, c.ID); err != nil {
			return tableError("delete column", domain.EntityColumn, c.ID, err)
		}
	}
	return tableError("delete board", "board", id, remove(ctx, s.boards, boardPartition, id))
}

func (s *Tables) ListColumns(ctx context.Context, boardID string) ([]domain.Column, error) {
	cols := []domain.Column{}
	err := list(ctx, s.columns, "PartitionKey eq "+quote(boardID), func(raw []byte) error {
		var ent columnEntity
		if err := sonic.Unmarshal(raw, &ent); err != nil {
			return err
		}
		cols = append(cols, ent.toDomain())
		return nil
	})
	if err != nil {
		return nil, tableError("list columns", domain.EntityColumn, boardID, err)
	}
	sortColumns(cols)
	return cols, nil
}

func (s *Tables) findColumn(ctx context.Context, id string) (domain.Column, error) {
	raw, err := find(ctx, s.columns, id)
	if err != nil {
		return domain.Column{}, tableError("get column", domain.EntityColumn, id, err)
	}
	var ent columnEntity
	if err := sonic.Unmarshal(raw, &ent); err != nil {
		return domain.Column{}, err
	}
	return ent.toDomain(), nil
}

func (s *Tables) CreateColumn(ctx context.Context, col domain.Column, boardID string) (domain.Column, error) {
	if err := col.Validate(); err != nil {
		return domain.Column{}, err
	}
	cols, err := s.ListColumns(ctx, boardID)
	if err != nil {
		return domain.Column{}, err
	}
	if len(cols) == 0 {
		if _, err := s.GetBoard(ctx, boardID); err != nil {
			return domain.Column{}, err
		}
	}
	for _, c := range cols {
		if c.Status == col.Status {
			return domain.Column{}, &domain.ConflictError{BoardID: boardID, Status: col.Status, Reason: "status already used by another column"}
		}
	}
	col.ID = uuid.NewString()
	col.BoardID = boardID
	if col.Color == "" {
		col.Color = domain.DefaultColumnColor
	}
	col.CreatedAt = s.now()
	ent := columnEntity{
		Entity:    aztables.Entity{PartitionKey: boardID, RowKey: col.ID},
		Title:     col.Title,
		Status:    col.Status,
		Color:     col.Color,
		Order:     col.Order,
		CreatedAt: formatTime(col.CreatedAt),
	}
	if err := add(ctx, s.columns, ent); err != nil {
		return domain.Column{}, tableError("create column", domain.EntityColumn, col.ID, err)
	}
	return col, nil
}

func (s *Tables) UpdateColumn(ctx context.Context, id string, patch domain.ColumnPatch) (domain.Column, error) {
	if err := patch.Validate(); err != nil {
		return domain.Column{}, err
	}
	cur, err := s.findColumn(ctx, id)
	if err != nil {
		return domain.Column{}, err
	}
	next := patch.Apply(cur)
	ent := keys(cur.BoardID, id)
	ent["Title"] = next.Title
	ent["Status"] = next.Status
	ent["Color"] = next.Color
	ent["ColumnOrder"] = next.Order
	if err := merge(ctx, s.columns, ent); err != nil {
		return domain.Column{}, tableError("update column", domain.EntityColumn, id, err)
	}
	return next, nil
}

func (s *Tables) DeleteColumn(ctx context.Context, id string) error {
	cur, err := s.findColumn(ctx, id)
	if err != nil {
		return err
	}
	return tableError("delete column", domain.EntityColumn, id, remove(ctx, s.columns, cur.BoardID, id))
}

func (s *Tables) ListTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	tasks := []domain.Task{}
	err := list(ctx, s.tasks, "PartitionKey eq "+quote(boardID), func(raw []byte) error {
		var ent taskEntity
		if err := sonic.Unmarshal(raw, &ent); err != nil {
			return err
		}
		t, err := ent.toDomain()
		if err != nil {
			return err
		}
		tasks = append(tasks, t)
		return nil
	})
	if err != nil {
		return nil, tableError("list tasks", domain.EntityTask, boardID, err)
	}
	sortByCreated(tasks, func(t domain.Task) time.Time { return t.CreatedAt })
	return tasks, nil
}

func (s *Tables) findTask(ctx context.Context, id string) (domain.Task, error) {
	raw, err := find(ctx, s.tasks, id)
	if err != nil {
		return domain.Task{}, tableError("get task", domain.EntityTask, id, err)
	}
	var ent taskEntity
	if err := sonic.Unmarshal(raw, &ent); err != nil {
		return domain.Task{}, err
	}
	return ent.toDomain()
}

func (s *Tables) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if err := t.Validate(); err != nil {
		return domain.Task{}, err
	}
	if _, err := s.GetBoard(ctx, t.BoardID); err != nil {
		return domain.Task{}, err
	}
	assigned, err := encodeAssignees(t.AssignedTo)
	if err != nil {
		return domain.Task{}, err
	}
	t.ID = uuid.NewString()
	t.Subtasks = nil
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	ent := taskEntity{
		Entity:      aztables.Entity{PartitionKey: t.BoardID, RowKey: t.ID},
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    string(t.Priority),
		AssignedTo:  assigned,
		Comments:    t.Comments,
		Attachments: t.Attachments,
		CreatedAt:   formatTime(now),
		UpdatedAt:   formatTime(now),
	}
	if t.DueDate != nil {
		ent.DueDate = formatTime(*t.DueDate)
	}
	if err := add(ctx, s.tasks, ent); err != nil {
		return domain.Task{}, tableError("create task", domain.EntityTask, t.ID, err)
	}
	return t, nil
}

func (s *Tables) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if err := patch.Validate(); err != nil {
		return domain.Task{}, err
	}
	cur, err := s.findTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	next := patch.Apply(cur)
	next.UpdatedAt = s.now()
	assigned, err := encodeAssignees(next.AssignedTo)
	if err != nil {
		return domain.Task{}, err
	}
	ent := keys(cur.BoardID, id)
	ent["Title"] = next.Title
	ent["Description"] = next.Description
	ent["Status"] = next.Status
	ent["Priority"] = string(next.Priority)
	ent["AssignedTo"] = assigned
	ent["UpdatedAt"] = formatTime(next.UpdatedAt)
	if next.DueDate != nil {
		ent["DueDate"] = formatTime(*next.DueDate)
	}
	if err := merge(ctx, s.tasks, ent); err != nil {
		return domain.Task{}, tableError("update task", domain.EntityTask, id, err)
	}
	return next, nil
}

// DeleteTask removes the task and its subtasks.
func (s *Tables) DeleteTask(ctx context.Context, id string) error {
	cur, err := s.findTask(ctx, id)
	if err != nil {
		return err
	}
	subs, err := s.ListSubtasks(ctx, id)
	if err != nil {
		return err
	}
	for _, st := range subs {
		if err := remove(ctx, s.subtasks, id, st.ID); err != nil {
			return tableError("delete subtask", domain.EntitySubtask, st.ID, err)
		}
	}
	return tableError("delete task", domain.EntityTask, id, remove(ctx, s.tasks, cur.BoardID, id))
}

func (s *Tables) ListSubtasks(ctx context.Context, taskID string) ([]domain.Subtask, error) {
	type item struct {
		sub     domain.Subtask
		created time.Time
	}
	var items []item
	err := list(ctx, s.subtasks, "PartitionKey eq "+quote(taskID), func(raw []byte) error {
		var ent subtaskEntity
		if err := sonic.Unmarshal(raw, &ent); err != nil {
			return err
		}
		items = append(items, item{ent.toDomain(), parseTime(ent.CreatedAt)})
		return nil
	})
	if err != nil {
		return nil, tableError("list subtasks", domain.EntitySubtask, taskID, err)
	}
	sortByCreated(items, func(i item) time.Time { return i.created })
	subs := make([]domain.Subtask, 0, len(items))
	for _, i := range items {
		subs = append(subs, i.sub)
	}
	return subs, nil
}

func (s *Tables) CreateSubtask(ctx context.Context, st domain.Subtask, taskID string) (domain.Subtask, error) {
	if err := st.Validate(); err != nil {
		return domain.Subtask{}, err
	}
	if _, err := s.findTask(ctx, taskID); err != nil {
		return domain.Subtask{}, err
	}
	st.ID = uuid.NewString()
	st.TaskID = taskID
	ent := subtaskEntity{
		Entity:    aztables.Entity{PartitionKey: taskID, RowKey: st.ID},
		Title:     st.Title,
		Completed: st.Completed,
		CreatedAt: formatTime(s.now()),
	}
	if err := add(ctx, s.subtasks, ent); err != nil {
		return domain.Subtask{}, tableError("create subtask", domain.EntitySubtask, st.ID, err)
	}
	return st, nil
}

func (s *Tables) findSubtask(ctx context.Context, id string) (domain.Subtask, error) {
	raw, err := find(ctx, s.subtasks, id)
	if err != nil {
		return domain.Subtask{}, tableError("get subtask", domain.EntitySubtask, id, err)
	}
	var ent subtaskEntity
	if err := sonic.Unmarshal(raw, &ent); err != nil {
		return domain.Subtask{}, err
	}
	return ent.toDomain(), nil
}

func (s *Tables) UpdateSubtask(ctx context.Context, id string, patch domain.SubtaskPatch) (domain.Subtask, error) {
	if err := patch.Validate(); err != nil {
		return domain.Subtask{}, err
	}
	cur, err := s.findSubtask(ctx, id)
	if err != nil {
		return domain.Subtask{}, err
	}
	next := patch.Apply(cur)
	ent := keys(cur.TaskID, id)
	ent["Title"] = next.Title
	ent["Completed"] = next.Completed
	if err := merge(ctx, s.subtasks, ent); err != nil {
		return domain.Subtask{}, tableError("update subtask", domain.EntitySubtask, id, err)
	}
	return next, nil
}

func (s *Tables) DeleteSubtask(ctx context.Context, id string) error {
	cur, err := s.findSubtask(ctx, id)
	if err != nil {
		return err
	}
	return tableError("delete subtask", domain.EntitySubtask, id, remove(ctx, s.subtasks, cur.TaskID, id))
}

func sortColumns(cols []domain.Column) {
	slices.SortStableFunc(cols, func(a, b domain.Column) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

func sortByCreated[T any](items []T, created func(T) time.Time) {
	slices.SortStableFunc(items, func(a, b T) int { return created(a).Compare(created(b)) })
}
