package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ErrInvalidState", ErrInvalidState, "invalid state"},
		{"ErrRuntimeFailure", ErrRuntimeFailure, "runtime failure"},
		{"ErrInvalidArgument", ErrInvalidArgument, "invalid argument"},
		{"ErrTimeout", ErrTimeout, "runtime failure: operation timed out"},
		{"ErrUnsupported", ErrUnsupported, "runtime failure: unsupported capability"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Fatal("error should not be nil")
			}
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTimeoutIsRuntimeFailure(t *testing.T) {
	if !errors.Is(ErrTimeout, ErrRuntimeFailure) {
		t.Error("ErrTimeout should wrap ErrRuntimeFailure")
	}
	if !errors.Is(ErrUnsupported, ErrRuntimeFailure) {
		t.Error("ErrUnsupported should wrap ErrRuntimeFailure")
	}
	if errors.Is(ErrTimeout, ErrUnsupported) {
		t.Error("ErrTimeout and ErrUnsupported must stay distinct")
	}
}

func TestStateError(t *testing.T) {
	err := NewStateError("SetEnvironment", "running")

	want := "SetEnvironment: not allowed while running"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrInvalidState) {
		t.Error("StateError should wrap ErrInvalidState")
	}
	if !IsInvalidState(err) {
		t.Error("IsInvalidState should report true for StateError")
	}
}

func TestOptionError(t *testing.T) {
	err := NewOptionError("create_widget", "unknown descriptor option")

	want := `option "create_widget": unknown descriptor option`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrInvalidArgument) {
		t.Error("OptionError should wrap ErrInvalidArgument")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil) != nil {
		t.Error("Wrap(nil) should return nil")
	}

	cause := errors.New("handler exploded")
	wrapped := Wrap(cause)
	if !errors.Is(wrapped, ErrRuntimeFailure) {
		t.Error("wrapped error should match ErrRuntimeFailure")
	}
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error should preserve the original cause")
	}

	// Already-classified errors are not double wrapped.
	rewrapped := Wrap(fmt.Errorf("await: %w", ErrTimeout))
	if !IsTimeout(rewrapped) {
		t.Error("rewrapping should preserve timeout classification")
	}
}

func TestPredicates(t *testing.T) {
	if !IsTimeout(fmt.Errorf("wait: %w", ErrTimeout)) {
		t.Error("IsTimeout should match wrapped ErrTimeout")
	}
	if IsTimeout(ErrRuntimeFailure) {
		t.Error("IsTimeout should not match a plain runtime failure")
	}
	if !IsUnsupported(fmt.Errorf("fork: %w", ErrUnsupported)) {
		t.Error("IsUnsupported should match wrapped ErrUnsupported")
	}
}
