package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// New returns an error with the supplied message and a captured stack.
func New(message string) error {
	return &withStack{
		err:   errors.New(message),
		stack: callers(),
	}
}

// Errorf formats according to a format specifier and returns it as an
// error with a captured stack.
func Errorf(format string, args ...interface{}) error {
	return &withStack{
		err:   fmt.Errorf(format, args...),
		stack: callers(),
	}
}

// Wrap annotates err with a message and a stack captured at the call site.
// Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &withStack{
		err:   fmt.Errorf("%s: %w", message, err),
		stack: callers(),
	}
}

// Wrapf is Wrap with a format specifier.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &withStack{
		err:   fmt.Errorf(fmt.Sprintf(format, args...)+": %w", err),
		stack: callers(),
	}
}

// WithStack annotates err with a stack captured at the call site.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &withStack{
		err:   err,
		stack: callers(),
	}
}

// NewWithReport returns a new error and reports it to the configured reporters.
func NewWithReport(message string) error {
	err := New(message)
	report(err)
	return err
}

// ErrorfAndReport formats a new error and reports it to the configured reporters.
func ErrorfAndReport(format string, args ...interface{}) error {
	err := Errorf(format, args...)
	report(err)
	return err
}

// WrapAndReport wraps err and reports it to the configured reporters.
// Returns nil if err is nil.
func WrapAndReport(err error, message string) error {
	wrapped := Wrap(err, message)
	report(wrapped)
	return wrapped
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

type withStack struct {
	err   error
	stack *stack
}

func (w *withStack) Error() string { return w.err.Error() }

func (w *withStack) Unwrap() error { return w.err }

func (w *withStack) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s\n%s", w.err.Error(), strings.Join(w.stack.fullStack(), "\n"))
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, w.err.Error())
	case 'q':
		fmt.Fprintf(s, "%q", w.err.Error())
	}
}

type stack []uintptr

func callers() *stack {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	var st stack = pcs[0:n]
	return &st
}

func (s *stack) fullStack() []string {
	frames := runtime.CallersFrames(*s)
	var lines []string
	for {
		frame, more := frames.Next()
		lines = append(lines, frame.Function+"\n\t"+frame.File+":"+strconv.Itoa(frame.Line))
		if !more {
			break
		}
	}
	return lines
}
