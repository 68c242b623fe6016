package domain

import "time"

// Profile is the public identity of a board owner.
type Profile struct {
	ID        string    `json:"id"`
	FullName  string    `json:"fullName"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
