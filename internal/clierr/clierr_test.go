package clierr

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestUserError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *UserError
		want string
	}{
		{
			name: "with underlying error",
			err:  &UserError{Message: "insert failed", Err: fmt.Errorf("connection refused")},
			want: "insert failed: connection refused",
		},
		{
			name: "without underlying error",
			err:  &UserError{Message: "invalid config"},
			want: "invalid config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserError_Unwrap(t *testing.T) {
	underlying := fmt.Errorf("underlying")
	wrapped := &UserError{Message: "x", Err: underlying}
	if wrapped.Unwrap() != underlying {
		t.Error("Unwrap() should return the underlying error")
	}
	bare := &UserError{Message: "x"}
	if bare.Unwrap() != nil {
		t.Error("Unwrap() should return nil when there is no underlying error")
	}
}

func TestExitContract(t *testing.T) {
	if ExitOK != 0 {
		t.Errorf("ExitOK = %d, want 0", ExitOK)
	}
	if ExitConfig != 1 {
		t.Errorf("ExitConfig = %d, want 1", ExitConfig)
	}

	// Every constructor must still collapse to ExitConfig (the CLI contract
	// recognizes only two exit codes; Reason is for --json diagnostics only).
	errs := []*UserError{
		NewConfigError("m", "c", "f", nil),
		NewSetupError("m", "c", "f", nil),
		NewNetworkError("m", "c", "f", nil),
		NewInputError("m", "c", "f"),
		NewPermissionError("m", "c", "f", nil),
		NewInternalError("m", "c", "f", nil),
	}
	for _, e := range errs {
		if e.Exit() != ExitConfig {
			t.Errorf("Exit() = %d, want ExitConfig for reason %s", e.Exit(), e.Reason)
		}
	}
}

func TestErrorChain(t *testing.T) {
	sentinel := fmt.Errorf("sentinel")
	wrapped := fmt.Errorf("wrapped: %w", sentinel)
	userErr := NewNetworkError("network error", "cause", "fix", wrapped)

	if !errors.Is(userErr, sentinel) {
		t.Error("errors.Is should find sentinel error in chain")
	}

	var target *UserError
	if !errors.As(userErr, &target) {
		t.Fatal("errors.As should extract UserError")
	}
	if target.Reason != ReasonNetwork {
		t.Errorf("Reason = %q, want %q", target.Reason, ReasonNetwork)
	}
}

func TestUserError_Format(t *testing.T) {
	err := &UserError{
		Message: "insert failed after 3 attempts",
		Cause:   "clickhouse connection refused",
		Fix:     "check analytic store connectivity",
	}
	got := err.Format(true)
	for _, substr := range []string{
		"Error: insert failed after 3 attempts",
		"Cause: clickhouse connection refused",
		"Fix:   check analytic store connectivity",
	} {
		if !strings.Contains(got, substr) {
			t.Errorf("Format() missing %q, got: %s", substr, got)
		}
	}
}

func TestUserError_Format_NoColorEnv(t *testing.T) {
	old := os.Getenv("NO_COLOR")
	defer func() {
		if old != "" {
			os.Setenv("NO_COLOR", old)
		} else {
			os.Unsetenv("NO_COLOR")
		}
	}()
	os.Setenv("NO_COLOR", "1")

	err := &UserError{Message: "x"}
	out := err.Format(false)
	if strings.Contains(out, "\x1b[") {
		t.Error("Format() output contains ANSI codes despite NO_COLOR being set")
	}
}

func TestUserError_ToJSON(t *testing.T) {
	err := NewConfigError("missing destinations", "config has zero destinations", "add at least one destination", nil)
	got := err.ToJSON()
	if got.Error != "missing destinations" || got.Reason != ReasonConfig || got.ExitCode != ExitConfig {
		t.Errorf("ToJSON() = %+v, unexpected", got)
	}
}

func TestFatalError_NilIsNoop(t *testing.T) {
	FatalError(nil, false)
}
