// Package domain contains entities without logic beyond validation, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxIdentityLen = 64
	MaxRoomNameLen = 64
)

var (
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
	ErrRoomEmpty       = errors.New("room name empty")
	ErrRoomTooLong     = errors.New("room name too long")
)

// Identity names a participant inside a room. It is unique per room.
type Identity string

// NewIdentity trims and validates a display name used as identity.
func NewIdentity(name string) (Identity, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return "", ErrIdentityEmpty
	}
	if len(name) > MaxIdentityLen {
		return "", ErrIdentityTooLong
	}
	return Identity(name), nil
}

// RoomName is the party id a grant is scoped to.
type RoomName string

func NewRoomName(name string) (RoomName, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return "", ErrRoomEmpty
	}
	if len(name) > MaxRoomNameLen {
		return "", ErrRoomTooLong
	}
	return RoomName(name), nil
}
