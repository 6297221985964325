package core

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyResponded     = errors.New("interaction already responded")
	ErrNotDeferred          = errors.New("interaction response can only be deferred before any reply")
	ErrResponseWindowClosed = errors.New("interaction response window closed")
	ErrDuplicateCommand     = errors.New("duplicate command name in scope")
	ErrComponentConflict    = errors.New("conflicting persistent component patterns")
	ErrUnknownInteraction   = errors.New("unknown interaction type")
)

// GenericErrorCode is shown when a handler fails without a friendlier explanation.
const GenericErrorCode = "hDFPRERTpb"

// FriendlyError is an expected failure whose message is safe to show to the user.
// Handlers return it instead of replying themselves; the dispatcher delivers it
// and does not treat it as a crash.
type FriendlyError struct {
	Message string
	Code    string
	// Verbatim messages already carry their own support link and are sent as is.
	Verbatim bool
	Err      error
}

// NewFriendlyError builds a FriendlyError with an optional cause kept for logs.
func NewFriendlyError(message, code string, cause ...error) *FriendlyError {
	fe := &FriendlyError{Message: message, Code: code}
	if len(cause) > 0 {
		fe.Err = cause[0]
	}
	return fe
}

func (e *FriendlyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Code, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *FriendlyError) Unwrap() error { return e.Err }

// Content is the text shown to the user.
func (e *FriendlyError) Content() string {
	if e.Verbatim {
		return e.Message
	}
	return FriendlyErrorContent(e.Message, e.Code)
}

// FriendlyErrorContent renders the support-server template shown for expected
// failures. Every error code doubles as a support server invite code.
func FriendlyErrorContent(message, code string) string {
	return fmt.Sprintf("%s\nIf you believe this is an error, join the support server for more help. [Support Server](<https://discord.gg/%s>)\n\nError Code: `%s`",
		message, code, code)
}

// GenericErrorContent renders the reply for unexpected handler failures. The
// underlying error is never included.
func GenericErrorContent(code string) string {
	return fmt.Sprintf("Uh oh. An unexpected error occurred. Please join our [Support Server](<https://discord.gg/%s>) and report this error.\n\nError Code: `%s`",
		code, code)
}
