package apierrors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Code 表示统一错误分类。
type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeSchema     Code = "SCHEMA_ERROR"
	CodeConfig     Code = "CONFIG_ERROR"
	CodeTransport  Code = "TRANSPORT_ERROR"
	CodeRemote     Code = "REMOTE_ERROR"
	CodeCancelled  Code = "CANCELLED"
	CodeInternal   Code = "INTERNAL_ERROR"
)

var httpStatusMap = map[Code]int{
	CodeValidation: 400,
	CodeSchema:     422,
	CodeConfig:     500,
	CodeTransport:  503,
	CodeRemote:     502,
	CodeCancelled:  504,
}

var grpcStatusMap = map[Code]codes.Code{
	CodeValidation: codes.InvalidArgument,
	CodeSchema:     codes.InvalidArgument,
	CodeConfig:     codes.FailedPrecondition,
	CodeTransport:  codes.Unavailable,
	CodeRemote:     codes.Unknown,
	CodeCancelled:  codes.Canceled,
}

// Error 表示带统一错误码的错误，Detail/RemoteCode 仅在远端返回时填充。
type Error struct {
	Code       Code
	Message    string
	Detail     string
	RemoteCode string
	cause      error
}

// New 创建一个新的错误。
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf 以格式化消息创建错误。
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap 创建错误并保留底层 cause，供 errors.Is/As 使用。
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetail 设置服务端返回的详情，返回自身方便链式调用。
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithRemoteCode 记录远端错误码。
func (e *Error) WithRemoteCode(code string) *Error {
	e.RemoteCode = code
	return e
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap 返回底层 cause。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// FromError 尝试从通用 error 中解析统一错误。
func FromError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// HasCode 判断 err 链上是否存在指定错误码。
func HasCode(err error, code Code) bool {
	apiErr, ok := FromError(err)
	return ok && apiErr.Code == code
}

// HTTPStatus 返回对应的 HTTP 状态码，未知错误默认 500。
func HTTPStatus(code Code) int {
	if status, ok := httpStatusMap[code]; ok {
		return status
	}
	return 500
}

// GRPCStatus 返回对应的 gRPC code，未知错误默认 Internal。
func GRPCStatus(code Code) codes.Code {
	if status, ok := grpcStatusMap[code]; ok {
		return status
	}
	return codes.Internal
}

// Terminal 标记调用方必须修正输入、不可重试的错误。
func Terminal(code Code) bool {
	return code == CodeValidation || code == CodeSchema || code == CodeConfig
}
