package sched

import "errors"

var (
	ErrInvalidDefinition = errors.New("invalid job definition")
	ErrUnknownJob        = errors.New("unknown job")
)
