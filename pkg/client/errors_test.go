package client

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		contains []string
	}{
		{
			name:     "without wrapped error",
			err:      &APIError{StatusCode: 502, Class: ErrorClassUpstream, Message: "Bad Gateway"},
			contains: []string{"upstream", "502", "Bad Gateway"},
		},
		{
			name:     "with wrapped error",
			err:      &APIError{Class: ErrorClassNetwork, Message: "get agents", Err: errors.New("connection refused")},
			contains: []string{"network", "get agents", "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("Error() = %q, missing %q", msg, want)
				}
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("timeout")
	err := &APIError{Class: ErrorClassNetwork, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is failed to reach wrapped error")
	}

	var apiErr *APIError
	wrapped := fmt.Errorf("get agents: %w", err)
	if !errors.As(wrapped, &apiErr) {
		t.Error("errors.As failed to find APIError through wrapping")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "auth rejection", err: ErrAuthRejected, want: false},
		{name: "wrapped auth rejection", err: fmt.Errorf("authenticate: %w", ErrAuthRejected), want: false},
		{name: "auth class api error", err: &APIError{Class: ErrorClassAuth}, want: false},
		{name: "network error", err: &APIError{Class: ErrorClassNetwork}, want: true},
		{name: "upstream error", err: &APIError{Class: ErrorClassUpstream, StatusCode: 500}, want: true},
		{name: "decode error", err: &APIError{Class: ErrorClassDecode}, want: true},
		{name: "plain error", err: errors.New("dial tcp: timeout"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %t, want %t", tt.err, got, tt.want)
			}
		})
	}
}
