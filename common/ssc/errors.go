package ssc

import (
	"errors"
	"fmt"
)

// ErrRejected is matched by every rejection of the acceptance path.
var ErrRejected = errors.New("ssc: message rejected")

// RejectedError explains why a message was not accepted.
type RejectedError struct {
	Tag    MsgTag
	Reason string
}

// Rejectf builds a RejectedError.
func Rejectf(tag MsgTag, format string, args ...interface{}) error {
	return &RejectedError{Tag: tag, Reason: fmt.Sprintf(format, args...)}
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("ssc: %s rejected: %s", e.Tag, e.Reason)
}

// Is makes errors.Is(err, ErrRejected) hold.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// TransportError is returned by a transport that failed to deliver an
// announcement. It is the only failure the broadcast path swallows.
type TransportError struct {
	Tag MsgTag
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ssc: sending %s announcement: %v", e.Tag, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
