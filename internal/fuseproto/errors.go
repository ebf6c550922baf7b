package fuseproto

import "fmt"

// ErrShortBuffer is returned when a request body is shorter than the fixed
// struct it is supposed to carry -- a malformed or truncated kernel request.
type ErrShortBuffer struct {
	Struct string
	Want   int
	Got    int
}

func (e *ErrShortBuffer) Error() string {
	return fmt.Sprintf("fuseproto: %s needs %d bytes, got %d", e.Struct, e.Want, e.Got)
}

func errShortBuffer(structName string, want, got int) error {
	return &ErrShortBuffer{Struct: structName, Want: want, Got: got}
}
