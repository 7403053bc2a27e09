package room

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrUserNotInRoom      = errors.New("user not in room")
	ErrDuplicateRoomID    = errors.New("room id already exists")
	ErrInvalidTheme       = errors.New("invalid theme")
	ErrRoomCodesExhausted = errors.New("no free room code after retries")
)
