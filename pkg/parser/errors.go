package parser

import "errors"

var (
	// ErrContextCanceled is returned when the context is canceled mid-stream.
	ErrContextCanceled = errors.New("parser: context canceled")

	// ErrLineTooLong is returned when a single line exceeds Config.MaxLineSize.
	ErrLineTooLong = errors.New("parser: line exceeds maximum size")
)
