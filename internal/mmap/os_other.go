//go:build !unix && !windows

package mmap

import (
	"errors"
	"os"
)

// ErrUnsupported is returned by Open on platforms without memory mapping.
var ErrUnsupported = errors.New("mmap: unsupported platform")

func osMap(*os.File, int) ([]byte, func([]byte) error, error) {
	return nil, nil, ErrUnsupported
}

func osAdvise([]byte, AccessPattern) error {
	return nil
}
