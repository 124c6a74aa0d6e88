// Package clierr provides structured error handling for the reflector,
// ingester, batchloader and gridfix CLIs.
//
// All four binaries honor a two-code exit contract: 0 on graceful shutdown
// or single-shot completion, 1 on configuration error or unrecoverable setup
// failure. UserError carries a finer-grained Reason for --json diagnostic
// output, but Exit() always collapses to 0 or 1.
package clierr

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Exit codes per SPEC_FULL.md §6: the CLI contract recognizes only these two.
const (
	ExitOK     = 0
	ExitConfig = 1
)

// Reason categorizes a UserError for --json diagnostic output. It never
// changes the process exit code, which stays ExitOK/ExitConfig.
type Reason string

const (
	ReasonConfig    Reason = "config"
	ReasonSetup     Reason = "setup"
	ReasonNetwork   Reason = "network"
	ReasonInput     Reason = "input"
	ReasonPermission Reason = "permission"
	ReasonInternal  Reason = "internal"
)

// UserError represents an error with structured context for operators.
//
//   - Message: what went wrong
//   - Cause: why it happened
//   - Fix: how to resolve it
type UserError struct {
	Message string
	Cause   string
	Fix     string
	Reason  Reason
	Err     error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// Exit returns the process exit code for this error: always ExitConfig,
// since any error reaching the CLI boundary is, by SPEC_FULL.md §6's two-code
// contract, treated as a configuration/unrecoverable-setup failure.
func (e *UserError) Exit() int {
	return ExitConfig
}

func NewConfigError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, Reason: ReasonConfig, Err: err}
}

func NewSetupError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, Reason: ReasonSetup, Err: err}
}

func NewNetworkError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, Reason: ReasonNetwork, Err: err}
}

func NewInputError(msg, cause, fix string) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, Reason: ReasonInput}
}

func NewPermissionError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, Reason: ReasonPermission, Err: err}
}

func NewInternalError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, Reason: ReasonInternal, Err: err}
}

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format returns a formatted error message for terminal display, honoring
// NO_COLOR and the CLI's own --no-color flag.
func (e *UserError) Format(noColor bool) string {
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()

	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")

	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}
	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}
	return out.String()
}

// ErrorJSON is the --json diagnostic representation of a UserError.
type ErrorJSON struct {
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	Reason   Reason `json:"reason"`
	ExitCode int    `json:"exit_code"`
}

func (e *UserError) ToJSON() ErrorJSON {
	return ErrorJSON{
		Error:    e.Message,
		Cause:    e.Cause,
		Fix:      e.Fix,
		Reason:   e.Reason,
		ExitCode: e.Exit(),
	}
}

// FatalError prints err and exits with the appropriate code. Never returns.
//
// This is reserved for startup/configuration failures, never called from
// inside a running worker loop (SPEC_FULL.md §7 propagation rule).
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}

	if ue, ok := err.(*UserError); ok {
		if jsonOutput {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			_ = enc.Encode(ue.ToJSON())
		} else {
			fmt.Fprint(os.Stderr, ue.Format(false))
		}
		os.Exit(ue.Exit())
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitConfig)
}
