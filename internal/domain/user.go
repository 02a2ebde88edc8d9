// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const (
	MaxUserIDLen   = 36
	MaxFullNameLen = 64
)

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

// UserID is the stable per-user identifier issued by the auth collaborator.
// Opaque to the signaling layer.
type UserID string

func (id UserID) Validate() error {
	if len(id) == 0 {
		return ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return ErrUserIDTooLong
	}
	return nil
}

type User struct {
	ID         UserID `json:"id"`
	FullName   string `json:"fullName"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// CallerMeta is the display payload attached to a call-offer so the callee
// can render the ringing screen before any profile lookup.
type CallerMeta struct {
	ID         UserID `json:"id"`
	FullName   string `json:"fullName"`
	ProfilePic string `json:"profilePic,omitempty"`
}

func (u *User) CallerMeta() CallerMeta {
	return CallerMeta{ID: u.ID, FullName: u.FullName, ProfilePic: u.ProfilePic}
}
