package executor

import "errors"

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrEmptyCode           = errors.New("code cannot be empty")
	ErrTimeout             = errors.New("execution timed out")
	ErrExecutionFailed     = errors.New("execution failed")
)
