package tts

import (
	"errors"
	"fmt"
)

// Errors reported to the caller of the controller.
var (
	// ErrNoText is returned when a read request has nothing to say.
	ErrNoText = errors.New("no text to read")

	// ErrNoTTS is returned when the engine is missing or unavailable.
	ErrNoTTS = errors.New("text-to-speech engine is not available")

	// ErrFocusedInput is returned when the user is typing in a focused input.
	ErrFocusedInput = errors.New("an input with unsent text has focus")

	// ErrDuplicateRead is returned for an identical request repeated too soon.
	ErrDuplicateRead = errors.New("duplicate read request suppressed")

	// ErrNothingToPause is returned by Pause when nothing is being spoken.
	ErrNothingToPause = errors.New("nothing to pause")

	// ErrNothingToResume is returned by Resume when nothing is paused.
	ErrNothingToResume = errors.New("nothing to resume")

	// ErrEngineTerminal reports a session ended by repeated engine failure.
	ErrEngineTerminal = errors.New("speech engine failed")

	// ErrInvalidConfig reports a configuration that fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorCode identifies the kind of a ReadError.
type ErrorCode string

const (
	ErrCodeNoText          ErrorCode = "no-text"
	ErrCodeNoTTS           ErrorCode = "no-tts"
	ErrCodeFocusedInput    ErrorCode = "focused-input"
	ErrCodeDuplicateRead   ErrorCode = "duplicate-read"
	ErrCodeNothingToPause  ErrorCode = "nothing-to-pause"
	ErrCodeNothingToResume ErrorCode = "nothing-to-resume"
	ErrCodeEngineTerminal  ErrorCode = "engine-error-terminal"
)

var sentinels = map[ErrorCode]error{
	ErrCodeNoText:          ErrNoText,
	ErrCodeNoTTS:           ErrNoTTS,
	ErrCodeFocusedInput:    ErrFocusedInput,
	ErrCodeDuplicateRead:   ErrDuplicateRead,
	ErrCodeNothingToPause:  ErrNothingToPause,
	ErrCodeNothingToResume: ErrNothingToResume,
	ErrCodeEngineTerminal:  ErrEngineTerminal,
}

// ReadError is a condition that crosses the controller boundary.
type ReadError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// NewReadError creates an error for code with the sentinel's message.
func NewReadError(code ErrorCode, cause error) *ReadError {
	msg := string(code)
	if s, ok := sentinels[code]; ok {
		msg = s.Error()
	}
	return &ReadError{Code: code, Message: msg, Cause: cause}
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes both the sentinel for Code and the cause.
func (e *ReadError) Unwrap() []error {
	var errs []error
	if s, ok := sentinels[e.Code]; ok {
		errs = append(errs, s)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// WithContext adds context to the error.
func (e *ReadError) WithContext(key string, value interface{}) *ReadError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// EngineError wraps the engine's description of a failure.
type EngineError struct {
	Info  ErrorInfo
	Chunk int
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("chunk %d: %s", e.Chunk, e.Info)
}

// IsTerminal reports whether err ended a session.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrEngineTerminal)
}

// ErrorCodeOf returns the code of the first ReadError in err's chain.
func ErrorCodeOf(err error) ErrorCode {
	var re *ReadError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
