package workflow

import (
	"errors"
	"fmt"
)

// Code classifies a workflow failure.
type Code string

const (
	CodeDB       Code = "DB_ERROR"
	CodeRun      Code = "RUN_ERROR"
	CodeLog      Code = "LOG_ERROR"
	CodeArtifact Code = "ARTIFACT_ERROR"
	CodeLLM      Code = "LLM_ERROR"
	CodeNoAPIKey Code = "NO_API_KEY"
)

// Error aborts a run. Tool failures never become an Error; they are
// reported to the model instead.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Code
	}
	return ""
}

func newError(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}
