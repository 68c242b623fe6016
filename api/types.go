package api

import (
	"context"

	"github.com/Adarsh9315/task-palette-organize/board"
	"github.com/Adarsh9315/task-palette-organize/domain"
)

// Boards is the board service behind the handlers. *board.Registry
// implements it.
type Boards interface {
	Get(ctx context.Context, boardID string) (*board.Engine, error)
	ListBoards(ctx context.Context, ownerID string) ([]domain.Board, error)
	CreateBoard(ctx context.Context, b domain.Board, withDefaultColumns bool) (domain.Board, []domain.Column, error)
	UpdateBoard(ctx context.Context, id string, patch domain.BoardPatch) (domain.Board, error)
	DeleteBoard(ctx context.Context, id string) error
}

// Profiles persists user profiles. Stores without profile support leave the
// profile routes unregistered.
type Profiles interface {
	UpsertProfile(ctx context.Context, p domain.Profile) (domain.Profile, error)
	Profile(ctx context.Context, id string) (domain.Profile, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate commands.
type Deduper interface {
	// AddMany records the keys and reports which of them were newly added.
	AddMany(ctx context.Context, boardID string, keys []string) ([]bool, error)
	// Remove deletes a previously added key so the command may be retried.
	Remove(ctx context.Context, boardID, key string) error
}

// Subscriber streams the settlements of one board until ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, boardID string) (<-chan board.Settlement, error)
}
