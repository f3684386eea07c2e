package room

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrStudentNotFound = errors.New("student not found in room")
)
