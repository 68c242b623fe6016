package domain

import "time"

// DefaultTheme is applied to boards created without a theme tag.
const DefaultTheme = "default"

// Board is a named collection of columns and tasks owned by one user.
type Board struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Theme       string    `json:"theme"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// BoardPatch carries partial updates for a board.
type BoardPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Theme       *string `json:"theme,omitempty"`
}

// Validate checks the fields required to persist a board.
func (b *Board) Validate() error {
	if isBlank(b.Title) {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	return nil
}

// Validate checks the fields present in the patch.
func (p BoardPatch) Validate() error {
	if p.Title != nil && isBlank(*p.Title) {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	return nil
}

// Empty reports whether the patch changes nothing.
func (p BoardPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Theme == nil
}

// Apply returns a copy of b with the patch merged in.
func (p BoardPatch) Apply(b Board) Board {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.Theme != nil {
		b.Theme = *p.Theme
	}
	return b
}
