// Package apperr holds sentinel errors shared across commands and surfaces.
package apperr

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrNoInput      = errors.New("no input: pass a file path or pipe data on stdin")
	ErrInvalidText  = errors.New("input is not valid UTF-8 text")
	ErrNoCatalog    = errors.New("record catalog is not enabled")
	ErrInvalidQuery = errors.New("invalid query")
)
