// Package errkind defines the error kinds shared by the capture, segmentation
// and recognition packages, and classifies wrapped errors for logging and metrics.
package errkind

import (
	"context"
	"errors"
)

var (
	// ErrDevice marks audio device open/read failures.
	ErrDevice = errors.New("device error")
	// ErrNetwork marks recognition stream failures and disconnects.
	ErrNetwork = errors.New("network error")
	// ErrMalformedFrame marks frames whose size or format does not match what
	// the classifier expects.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrConfiguration marks invalid construction parameters.
	ErrConfiguration = errors.New("configuration error")
)

// Kind returns a short label for err suitable for metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrDevice):
		return "device"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrMalformedFrame):
		return "malformed_frame"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "other"
	}
}
