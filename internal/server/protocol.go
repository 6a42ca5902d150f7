package server

import (
	"encoding/json"
	"errors"

	"connectivity-listener/internal/subscription"
	"connectivity-listener/internal/watcher"
)

// Error codes carried in ErrorMessage.
const (
	CodeNotImplemented = "NOT_IMPLEMENTED"
	CodeBadRequest     = "BAD_REQUEST"
	CodeInternal       = "INTERNAL"
)

// ErrorBody describes a failure. Code is a watcher.FailureKind for stream
// failures.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ErrorMessage is sent on a stream, or returned by the command channel,
// instead of a result.
type ErrorMessage struct {
	Error ErrorBody `json:"error"`
}

// MethodCall is the command channel request body.
type MethodCall struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// MethodResult is the command channel success body.
type MethodResult struct {
	Result any `json:"result"`
}

func failureMessage(f *watcher.Failure) ErrorMessage {
	return ErrorMessage{Error: ErrorBody{Code: string(f.Kind), Message: f.Message, Details: f.Details}}
}

func methodError(err error) ErrorMessage {
	code := CodeInternal
	if errors.Is(err, subscription.ErrNotImplemented) {
		code = CodeNotImplemented
	}
	return ErrorMessage{Error: ErrorBody{Code: code, Message: err.Error()}}
}
