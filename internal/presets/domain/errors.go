package domain

import "errors"

var (
	// ErrReadOnly is returned when mutating a preset that is not writable.
	ErrReadOnly = errors.New("preset is read-only")
	// ErrDuplicateSection is returned when a section name is already taken within a preset.
	ErrDuplicateSection = errors.New("parameter section already exists")
	// ErrIndexOutOfRange is returned for a section index outside [0, len).
	ErrIndexOutOfRange = errors.New("parameter section index out of range")
)
