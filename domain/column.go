package domain

import "time"

// DefaultColumnColor is used when a column is created without a color tag.
const DefaultColumnColor = "bg-gray-500"

// Column is a bucket of tasks identified by its status key.
type Column struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Color     string    `json:"color"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// ColumnPatch carries partial updates for a column.
type ColumnPatch struct {
	Title  *string `json:"title,omitempty"`
	Status *string `json:"status,omitempty"`
	Color  *string `json:"color,omitempty"`
	Order  *int    `json:"order,omitempty"`
}

// DefaultColumns is the column set a new board starts with when requested.
func DefaultColumns() []Column {
	return []Column{
		{Title: "TODO", Status: "todo", Color: "bg-[#00A3FF]", Order: 0},
		{Title: "DOING", Status: "in-progress", Color: "bg-primary", Order: 1},
		{Title: "DONE", Status: "done", Color: "bg-[#00CA92]", Order: 2},
	}
}

func (c *Column) Validate() error {
	if isBlank(c.Title) {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	if isBlank(c.Status) {
		return &ValidationError{Field: "status", Reason: "is required"}
	}
	if c.Order < 0 {
		return &ValidationError{Field: "order", Reason: "must not be negative"}
	}
	return nil
}

func (p ColumnPatch) Validate() error {
	if p.Title != nil && isBlank(*p.Title) {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if p.Status != nil && isBlank(*p.Status) {
		return &ValidationError{Field: "status", Reason: "must not be empty"}
	}
	if p.Order != nil && *p.Order < 0 {
		return &ValidationError{Field: "order", Reason: "must not be negative"}
	}
	return nil
}

func (p ColumnPatch) Empty() bool {
	return p.Title == nil && p.Status == nil && p.Color == nil && p.Order == nil
}

// Merge folds next on top of p; fields set in next win.
func (p ColumnPatch) Merge(next ColumnPatch) ColumnPatch {
	if next.Title != nil {
		p.Title = next.Title
	}
	if next.Status != nil {
		p.Status = next.Status
	}
	if next.Color != nil {
		p.Color = next.Color
	}
	if next.Order != nil {
		p.Order = next.Order
	}
	return p
}

func (p ColumnPatch) Apply(c Column) Column {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	if p.Order != nil {
		c.Order = *p.Order
	}
	return c
}
