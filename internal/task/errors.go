package task

import (
	"errors"
	"fmt"
)

// Kind classifies a lifecycle failure. The set is closed; callers switch on
// Kind and never on error text.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAlreadyAccepted means another caller won the accept race.
	KindAlreadyAccepted
	KindOwnTask
	KindNotAuthorized
	KindNotFound
	// KindTerminal means the task is completed or cancelled.
	KindTerminal
	KindInvalidTransition
	KindInvalidState
	KindUnauthenticated
	KindInvalidInput
	// KindTransient means the store was unreachable or busy. Safe to retry.
	KindTransient
)

var kindCodes = map[Kind]string{
	KindUnknown:           "UNKNOWN",
	KindAlreadyAccepted:   "TASK_ALREADY_ACCEPTED",
	KindOwnTask:           "CANNOT_ACCEPT_OWN_TASK",
	KindNotAuthorized:     "NOT_AUTHORIZED",
	KindNotFound:          "TASK_NOT_FOUND",
	KindTerminal:          "TASK_TERMINAL",
	KindInvalidTransition: "INVALID_TRANSITION",
	KindInvalidState:      "INVALID_STATE",
	KindUnauthenticated:   "USER_NOT_AUTHENTICATED",
	KindInvalidInput:      "INVALID_INPUT",
	KindTransient:         "TRANSIENT",
}

var kindMessages = map[Kind]string{
	KindUnknown:           "Something unexpected happened. Refresh and try again.",
	KindAlreadyAccepted:   "Someone else already accepted this task. Browse other open tasks.",
	KindOwnTask:           "You can't accept a task you posted.",
	KindNotAuthorized:     "You're not allowed to change this task.",
	KindNotFound:          "This task no longer exists.",
	KindTerminal:          "This task is already finished or cancelled.",
	KindInvalidTransition: "That status update isn't the next step for this task.",
	KindInvalidState:      "This task can't be cancelled once it has been picked up.",
	KindUnauthenticated:   "Sign in with a full account to do this.",
	KindInvalidInput:      "Some task details are missing or invalid.",
	KindTransient:         "We couldn't reach the server. Check the task and try again.",
}

// Code returns the stable wire code for k.
func (k Kind) Code() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return kindCodes[KindUnknown]
}

// Message returns the user-facing message for k.
func (k Kind) Message() string {
	if m, ok := kindMessages[k]; ok {
		return m
	}
	return kindMessages[KindUnknown]
}

func (k Kind) String() string { return k.Code() }

// Retryable reports whether an operation failing with k may be retried as-is.
func (k Kind) Retryable() bool { return k == KindTransient }

// Error is the classified error returned by every lifecycle operation.
type Error struct {
	Kind   Kind
	TaskID string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Code()
	if e.TaskID != "" {
		msg += " task=" + e.TaskID
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, so errors.Is(err, task.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.TaskID == "" && t.Detail == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrAlreadyAccepted   = &Error{Kind: KindAlreadyAccepted}
	ErrOwnTask           = &Error{Kind: KindOwnTask}
	ErrNotAuthorized     = &Error{Kind: KindNotAuthorized}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrTerminal          = &Error{Kind: KindTerminal}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrUnauthenticated   = &Error{Kind: KindUnauthenticated}
)

// Errorf builds a classified error for taskID.
func Errorf(kind Kind, taskID, format string, args ...any) *Error {
	return &Error{Kind: kind, TaskID: taskID, Detail: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind.
func Wrap(kind Kind, taskID string, err error) *Error {
	return &Error{Kind: kind, TaskID: taskID, Err: err}
}

// KindOf extracts the Kind of err. Unclassified errors are KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
