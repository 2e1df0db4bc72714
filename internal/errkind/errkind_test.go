package errkind

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "none"},
		{"device", fmt.Errorf("open microphone: %w", ErrDevice), "device"},
		{"network", fmt.Errorf("read: %w", ErrNetwork), "network"},
		{"malformed", fmt.Errorf("frame 3: %w", ErrMalformedFrame), "malformed_frame"},
		{"configuration", fmt.Errorf("ratio: %w", ErrConfiguration), "configuration"},
		{"canceled", fmt.Errorf("cycle: %w", context.Canceled), "canceled"},
		{"canceled network", fmt.Errorf("publish: %w: %w", ErrNetwork, context.Canceled), "canceled"},
		{"deadline", fmt.Errorf("dial: %w", context.DeadlineExceeded), "canceled"},
		{"other", errors.New("boom"), "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}
