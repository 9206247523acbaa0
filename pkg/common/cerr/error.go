// Copyright 2025 CascadeDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cerr

import (
	"context"
	"fmt"
)

// Error codes. Grouped the way the engine groups them everywhere else:
// 201xx internal, 203xx invalid input, 204xx unexpected state, 205xx rpc.
const (
	Ok uint16 = 0

	ErrInternal         uint16 = 20101
	ErrQueryInterrupted uint16 = 20104

	ErrInvalidInput uint16 = 20301

	ErrInvalidState uint16 = 20400

	ErrBackendClosed        uint16 = 20501
	ErrStreamClosed         uint16 = 20502
	ErrBackendCannotConnect uint16 = 20503
	ErrRemoteRun            uint16 = 20504
	ErrProtocol             uint16 = 20505
)

// Error is a coded error. Every error crossing a package boundary in
// this repo is one of these, so callers can match on the code instead
// of the message text.
type Error struct {
	code    uint16
	message string
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) Code() uint16 {
	return e.code
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.code == e.code
}

func newError(_ context.Context, code uint16, format string, args ...any) *Error {
	if len(args) > 0 {
		format = fmt.Sprintf(format, args...)
	}
	return &Error{code: code, message: format}
}

// IsCerrCode reports whether err is a *Error carrying the given code.
func IsCerrCode(err error, code uint16) bool {
	if err == nil {
		return code == Ok
	}
	e, ok := err.(*Error)
	return ok && e.code == code
}

func NewInternal(ctx context.Context, format string, args ...any) *Error {
	return newError(ctx, ErrInternal, "internal error: "+format, args...)
}

func NewQueryInterrupted(ctx context.Context) *Error {
	return newError(ctx, ErrQueryInterrupted, "query has been canceled")
}

func NewInvalidInput(ctx context.Context, format string, args ...any) *Error {
	return newError(ctx, ErrInvalidInput, "invalid input: "+format, args...)
}

func NewInvalidState(ctx context.Context, format string, args ...any) *Error {
	return newError(ctx, ErrInvalidState, "invalid state: "+format, args...)
}

func NewBackendClosed(ctx context.Context) *Error {
	return newError(ctx, ErrBackendClosed, "the backend connection has been closed")
}

func NewStreamClosed(ctx context.Context) *Error {
	return newError(ctx, ErrStreamClosed, "the stream has been closed")
}

func NewBackendCannotConnect(ctx context.Context, remote string) *Error {
	return newError(ctx, ErrBackendCannotConnect, "can not connect to remote %s", remote)
}

// NewRemoteRun wraps an error reported by a remote peer inside an
// otherwise well-formed response.
func NewRemoteRun(ctx context.Context, msg string) *Error {
	return newError(ctx, ErrRemoteRun, "remote run failed: %s", msg)
}

func NewProtocol(ctx context.Context, format string, args ...any) *Error {
	return newError(ctx, ErrProtocol, "protocol violation: "+format, args...)
}
