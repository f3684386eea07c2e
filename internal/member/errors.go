package member

import "errors"

// ErrWrongPassword is returned when a teacher join carries a password that
// does not match the room's. No room state is touched in that case.
var ErrWrongPassword = errors.New("wrong room password")
