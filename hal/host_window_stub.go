//go:build !cgo

package hal

import "errors"

var errNoWindow = errors.New("hal: the window runner needs cgo, run with -headless or set CGO_ENABLED=1")

// RunWindow is unavailable without cgo.
func RunWindow(func(HAL) func() error) error { return errNoWindow }
