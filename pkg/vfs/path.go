package vfs

import (
	"errors"
	"strings"
)

// Common path-related errors.
var (
	ErrEmptyPath    = errors.New("vfs: empty path")
	ErrInvalidPath  = errors.New("vfs: invalid path")
	ErrPathTooLong  = errors.New("vfs: path too long")
	ErrNameTooLong  = errors.New("vfs: file name too long")
	ErrNotSupported = errors.New("vfs: directories not supported")
)

// MaxPathLength is the maximum allowed path length.
const MaxPathLength = 4096

// NameMax is the longest file name a flat filesystem accepts.
const NameMax = 14

// Clean normalizes the path by removing unnecessary elements. The result
// always starts with a slash.
func Clean(p string) string {
	if p == "" {
		return "/"
	}

	p = strings.ReplaceAll(p, "\\", "/")

	var result []string
	for _, comp := range strings.Split(p, "/") {
		switch comp {
		case "", ".":
			continue
		case "..":
			// Not past root
			if len(result) > 0 {
				result = result[:len(result)-1]
			}
		default:
			result = append(result, comp)
		}
	}

	if len(result) == 0 {
		return "/"
	}
	return "/" + strings.Join(result, "/")
}

// Base returns the last element of the path.
func Base(p string) string {
	p = Clean(p)
	return p[strings.LastIndex(p, "/")+1:]
}

// ValidatePath checks if the path is valid for use in the VFS.
func ValidatePath(p string) error {
	if p == "" {
		return ErrEmptyPath
	}

	if len(p) > MaxPathLength {
		return ErrPathTooLong
	}

	if strings.Contains(p, "\x00") {
		return ErrInvalidPath
	}

	return nil
}

// FlatName validates p as a name in a single-directory filesystem and
// returns its cleaned form.
func FlatName(p string) (string, error) {
	if err := ValidatePath(p); err != nil {
		return "", err
	}

	clean := Clean(p)
	if clean == "/" {
		return "", ErrInvalidPath
	}
	if strings.Count(clean, "/") > 1 {
		return "", ErrNotSupported
	}
	if len(clean)-1 > NameMax {
		return "", ErrNameTooLong
	}
	return clean, nil
}
