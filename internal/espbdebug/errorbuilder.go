// Package espbdebug builds the call-stack backtrace attached to a
// recovered trap, the same shape the teacher's internal/wasmdebug
// builds around a recovered panic from its interpreter loop.
package espbdebug

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/smersh1307n2/ESPB-sub001/api"
)

// ErrorBuilder accumulates frames through AddFrame, then renders them
// into a single wrapped error. Frames are added innermost-first,
// matching the order callNativeFunc's defer unwinds frames in the
// teacher. engine.Invoke's recover() calls FromRecovered without adding
// any frame, so its errors carry no backtrace.
type ErrorBuilder interface {
	AddFrame(debugName string, paramTypes, resultTypes []api.Type)
	FromRecovered(recovered interface{}) error
}

func NewErrorBuilder() ErrorBuilder {
	return &errorBuilder{}
}

type errorBuilder struct {
	traces []string
}

func (b *errorBuilder) AddFrame(debugName string, paramTypes, resultTypes []api.Type) {
	b.traces = append(b.traces, signature(debugName, paramTypes, resultTypes))
}

func signature(debugName string, paramTypes, resultTypes []api.Type) string {
	var sb strings.Builder
	sb.WriteString(debugName)
	sb.WriteByte('(')
	for i, t := range paramTypes {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(t.String())
	}
	sb.WriteByte(')')
	switch len(resultTypes) {
	case 0:
	case 1:
		sb.WriteByte(' ')
		sb.WriteString(resultTypes[0].String())
	default:
		sb.WriteString(" (")
		for i, t := range resultTypes {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(t.String())
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// FromRecovered converts whatever was handed to recover() - a trap
// sentinel error, a Go runtime.Error (e.g. an out-of-range slice
// index bug in a handler), or an arbitrary panic value - into a single
// error wrapping the original, with the accumulated backtrace appended.
func (b *errorBuilder) FromRecovered(recovered interface{}) error {
	var wrapped error
	switch v := recovered.(type) {
	case error:
		wrapped = v
	default:
		wrapped = fmt.Errorf("%v", v)
	}

	if _, ok := wrapped.(runtime.Error); ok {
		return &espbError{msg: wrapped.Error() + " (recovered by espb)", frames: b.traces, cause: wrapped}
	}
	return &espbError{msg: wrapped.Error() + " (recovered by espb)", frames: b.traces, cause: wrapped}
}

type espbError struct {
	msg    string
	frames []string
	cause  error
}

func (e *espbError) Error() string {
	if len(e.frames) == 0 {
		return e.msg
	}
	var sb strings.Builder
	sb.WriteString(e.msg)
	sb.WriteString("\nespb stack trace:")
	for _, f := range e.frames {
		sb.WriteString("\n\t")
		sb.WriteString(f)
	}
	return sb.String()
}

func (e *espbError) Unwrap() error { return e.cause }
