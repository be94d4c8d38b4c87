// Copyright 2024 Matrix Origin
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

package moerr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync/atomic"
)

const (
	// 0 - 99 is OK. They do not contain info, and are special handled
	// using a static instance, no alloc.
	Ok              uint16 = 0
	OkStopCurrRecur uint16 = 1
	OkMax           uint16 = 99

	// Group 1: internal errors
	ErrStart        uint16 = 20100
	ErrInternal     uint16 = 20101
	ErrNYI          uint16 = 20102
	ErrNotSupported uint16 = 20105

	// Group 3: invalid input
	ErrBadConfig    uint16 = 20300
	ErrInvalidInput uint16 = 20301
	ErrInvalidArg   uint16 = 20302

	// Group 4: unexpected state
	ErrInvalidState uint16 = 20400

	// Group 7: multi-join state
	ErrDuplicateKey                   uint16 = 20700
	ErrPrecommitAssertion             uint16 = 20701
	ErrPostcommitAssertion            uint16 = 20702
	ErrUnsupportedKeyTypeCombination  uint16 = 20703
	ErrNullKey                        uint16 = 20704
	ErrTickNotOpen                    uint16 = 20705
	ErrTickAlreadyOpen                uint16 = 20706
	ErrStatePoisoned                  uint16 = 20707
	ErrKeyTypeMismatch                uint16 = 20708

	// Group End: max value of error code
	ErrEnd uint16 = 65535
)

type moErrorMsgItem struct {
	errorMsgOrFormat string
}

var errorMsgRefer = map[uint16]moErrorMsgItem{
	// Group 1: internal errors
	ErrInternal:     {"internal error: %s"},
	ErrNYI:          {"%s is not yet implemented"},
	ErrNotSupported: {"not supported: %s"},

	// Group 3: invalid input
	ErrBadConfig:    {"invalid configuration: %s"},
	ErrInvalidInput: {"invalid input: %s"},
	ErrInvalidArg:   {"invalid argument %s, bad value %v"},

	// Group 4: unexpected state
	ErrInvalidState: {"invalid state %s"},

	// Group 7: multi-join state
	ErrDuplicateKey:                  {"duplicate key in table %d at slot %d, row key %d"},
	ErrPrecommitAssertion:            {"precommit assertion failed: %s"},
	ErrPostcommitAssertion:           {"postcommit assertion failed: %s"},
	ErrUnsupportedKeyTypeCombination: {"unsupported key type combination %s"},
	ErrNullKey:                       {"null key in table %d at row key %d"},
	ErrTickNotOpen:                   {"no tick is open"},
	ErrTickAlreadyOpen:               {"tick %d is already open"},
	ErrStatePoisoned:                 {"join state can no longer be trusted: %s"},
	ErrKeyTypeMismatch:               {"key column %d has type %s, expected %s"},

	// Group End: max value of error code
	ErrEnd: {"internal error: end of errcode code"},
}

func newError(ctx context.Context, code uint16, args ...any) *Error {
	item, has := errorMsgRefer[code]
	if !has {
		panic(NewInternalError(ctx, "not exist error code: %d", code))
	}
	err := &Error{code: code}
	if len(args) == 0 {
		err.message = item.errorMsgOrFormat
	} else {
		err.message = fmt.Sprintf(item.errorMsgOrFormat, args...)
	}
	return err
}

// Error is the coded error returned by every package of the engine.
type Error struct {
	code    uint16
	message string
	detail  string
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) Detail() string {
	return e.detail
}

func (e *Error) Display() string {
	if len(e.detail) == 0 {
		return e.message
	}
	return fmt.Sprintf("%s: %s", e.message, e.detail)
}

func (e *Error) ErrorCode() uint16 {
	return e.code
}

// WithDetail returns a copy of e carrying extra context for display.
func (e *Error) WithDetail(detail string) *Error {
	cp := *e
	cp.detail = detail
	return &cp
}

func (e *Error) Succeeded() bool {
	return e.code < OkMax
}

func IsMoErrCode(e error, rc uint16) bool {
	if e == nil {
		return rc == Ok
	}
	var me *Error
	if !errors.As(e, &me) {
		// This is not a moerr
		return false
	}
	return me.code == rc
}

func DowncastError(e error) *Error {
	var me *Error
	if errors.As(e, &me) {
		return me
	}
	return newError(Context(), ErrInternal, fmt.Sprintf("downcast error failed: %v", e))
}

// ConvertPanicError converts a runtime panic to internal error.
func ConvertPanicError(ctx context.Context, v interface{}) *Error {
	if e, ok := v.(*Error); ok {
		return e
	}
	return newError(ctx, ErrInternal, fmt.Sprintf("panic %v: %s", v, callers(3)))
}

// ConvertGoError converts a go error into mo error.
// Note here we must return error, because nil error
// is the same as nil *Error -- Go strangeness.
func ConvertGoError(ctx context.Context, err error) error {
	if err == nil {
		return err
	}

	// already a moerr, return it as is
	var me *Error
	if errors.As(err, &me) {
		return err
	}

	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return NewInvalidInput(ctx, "unexpected end of input")
	}

	return NewInternalError(ctx, "convert go error to mo error %v", err)
}

var errOkStopCurrRecur = Error{code: OkStopCurrRecur, message: "StopCurrRecur"}

// GetOkStopCurrRecur is returned by iteration callbacks that want to stop
// early without reporting a failure.
func GetOkStopCurrRecur() *Error {
	return &errOkStopCurrRecur
}

func NewInternalError(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInternal, xmsg)
}

func NewNYI(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrNYI, xmsg)
}

func NewNotSupported(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrNotSupported, xmsg)
}

func NewBadConfig(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrBadConfig, xmsg)
}

func NewInvalidInput(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInvalidInput, xmsg)
}

func NewInvalidArg(ctx context.Context, arg string, val any) *Error {
	return newError(ctx, ErrInvalidArg, arg, val)
}

func NewInvalidState(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInvalidState, xmsg)
}

func NewDuplicateKey(ctx context.Context, table int, slot int32, rowKey int64) *Error {
	return newError(ctx, ErrDuplicateKey, table, slot, rowKey)
}

func NewPrecommitAssertion(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrPrecommitAssertion, xmsg)
}

func NewPostcommitAssertion(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrPostcommitAssertion, xmsg)
}

func NewUnsupportedKeyTypeCombination(ctx context.Context, typs []string) *Error {
	return newError(ctx, ErrUnsupportedKeyTypeCombination, "("+strings.Join(typs, ", ")+")")
}

func NewNullKey(ctx context.Context, table int, rowKey int64) *Error {
	return newError(ctx, ErrNullKey, table, rowKey)
}

func NewTickNotOpen(ctx context.Context) *Error {
	return newError(ctx, ErrTickNotOpen)
}

func NewTickAlreadyOpen(ctx context.Context, tick uint64) *Error {
	return newError(ctx, ErrTickAlreadyOpen, tick)
}

func NewStatePoisoned(ctx context.Context, cause string) *Error {
	return newError(ctx, ErrStatePoisoned, cause)
}

func NewKeyTypeMismatch(ctx context.Context, col int, got, want string) *Error {
	return newError(ctx, ErrKeyTypeMismatch, col, got, want)
}

func callers(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&sb, "\n%s\n\t%s:%d", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return sb.String()
}

var contextFunc atomic.Value

func SetContextFunc(f func() context.Context) {
	contextFunc.Store(f)
}

// Context should be trivial simple function that return a context
func Context() context.Context {
	return contextFunc.Load().(func() context.Context)()
}

func init() {
	SetContextFunc(func() context.Context { return context.Background() })
}
