// Package vm - error handling with stack traces
package vm

import (
	"fmt"
	"strings"
)

// StackFrame represents a single frame in the call stack.
// It captures information about where execution is occurring.
type StackFrame struct {
	Name       string // function/method name, or "script" for top level
	SourceLine int    // source line active when this frame was captured
	IP         int    // instruction pointer within the frame's blob
}

// RuntimeError represents a runtime error with stack trace information.
// This provides detailed context about where an error occurred (spec 4.7,
// step 4: "the VM prints the exception's message and stacktrace
// properties and returns RuntimeError to the host").
type RuntimeError struct {
	Message    string       // error message
	StackTrace []StackFrame // call stack at time of error, outermost first
}

// Error implements the error interface. It formats the error message with
// a stack trace, innermost frame first.
func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	if len(e.StackTrace) > 0 {
		b.WriteString("\n\nStack trace:")
		for i := len(e.StackTrace) - 1; i >= 0; i-- {
			frame := e.StackTrace[i]
			b.WriteString(fmt.Sprintf("\n  at %s", frame.Name))
			if frame.SourceLine > 0 {
				b.WriteString(fmt.Sprintf(" [line %d]", frame.SourceLine))
			}
			b.WriteString(fmt.Sprintf(" [IP: %d]", frame.IP))
		}
	}

	return b.String()
}

// newRuntimeError creates a new RuntimeError with the given message.
func newRuntimeError(message string, stack []StackFrame) *RuntimeError {
	return &RuntimeError{
		Message:    message,
		StackTrace: stack,
	}
}
