package vfs

import "errors"

// File errors shared by implementations.
var (
	ErrClosedFile   = errors.New("vfs: file is closed")
	ErrFileNotFound = errors.New("vfs: file not found")
	ErrFileExists   = errors.New("vfs: file already exists")
	ErrWriteDenied  = errors.New("vfs: writes denied")
	ErrInvalidSeek  = errors.New("vfs: invalid seek")
	ErrInvalidSize  = errors.New("vfs: invalid file size")
)
