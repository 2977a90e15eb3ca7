package services

import (
	"errors"
	"fmt"
)

// ValidationError is a local file inspection failure. It never reaches the
// backend.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NetworkError means the request to the backend did not complete.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ApplicationError means the backend answered but signalled failure, either
// with success:false, a non-OK status or a missing required field.
type ApplicationError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *ApplicationError) Error() string {
	return e.Message
}

// ErrPrecondition is returned by Trigger when the pipeline's inputs are not
// ready.
var ErrPrecondition = errors.New("pipeline precondition not met")

// NoticeMessage is the text shown to the user for err.
func NoticeMessage(err error) string {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return "网络错误: " + netErr.Err.Error()
	}
	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr.Message
	}
	return err.Error()
}
