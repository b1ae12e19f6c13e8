package cycle

import "errors"

var (
	ErrCycleNotFound     = errors.New("cycle not found")
	ErrCycleActive       = errors.New("cannot delete the active cycle; deactivate it first")
	ErrCycleNameRequired = errors.New("cycle name is required")
	ErrNoActiveCycle     = errors.New("no screening cycle is active")
)
