package domain

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrNotInRoom        = errors.New("connection has not joined a room")
	ErrEmptyRoomID      = errors.New("room id must not be empty")
	ErrConnectionClosed = errors.New("connection closed")
)
