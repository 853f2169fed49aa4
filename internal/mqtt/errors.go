package mqtt

import "fmt"

// Op names the step of a publish that failed.
type Op string

const (
	OpResolve    Op = "resolve"
	OpConnect    Op = "connect"
	OpPublish    Op = "publish"
	OpDisconnect Op = "disconnect"
)

// Error is returned by Client when a step of a publish fails.
type Error struct {
	Op  Op
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mqtt %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
