package relay

// Error is a recoverable request error. It is reported to the offending
// caller only, never broadcast, and the rejected operation mutates nothing.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

var (
	errInvalidRequest = &Error{Code: "INVALID_DATA", Message: "Missing wuid or roomId"}
	errPlayerNotFound = &Error{Code: "PLAYER_NOT_FOUND", Message: "Player not registered"}
	errRoomNotFound   = &Error{Code: "ROOM_NOT_FOUND", Message: "Room not found"}
	errUnauthorized   = &Error{Code: "UNAUTHORIZED", Message: "Player not registered"}
)
