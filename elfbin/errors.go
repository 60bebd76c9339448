package elfbin

import "github.com/pkg/errors"

var (
	ErrBadMagic        = errors.New("bad magic number")
	ErrMalformedHeader = errors.New("malformed header")
	ErrOutOfBounds     = errors.New("out of bounds")
	ErrInvalidName     = errors.New("invalid section name")
	ErrSectionNotFound = errors.New("section not found")
)
