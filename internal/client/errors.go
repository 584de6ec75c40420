package client

import (
	"context"
	"errors"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aegis-sign/custody/internal/infra/platformconn"
	"github.com/aegis-sign/custody/internal/wire/platformv1"
	"github.com/aegis-sign/custody/pkg/apierrors"
)

// errClientClosed 在 Close 之后的调用中返回。
var errClientClosed = errors.New("client closed")

// HTTPStatusError 表示 HTTP 传输收到非 2xx 响应。
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return "http status " + strconv.Itoa(e.StatusCode)
}

// classify 将传输层错误归入统一分类；已是 *apierrors.Error 的原样返回。
// callerDone 表示调用方的上下文（含 WithTimeout）已结束；否则超时与取消一律归为 Transport。
func classify(err error, callerDone bool) *apierrors.Error {
	if apiErr, ok := apierrors.FromError(err); ok {
		return apiErr
	}
	switch {
	case errors.Is(err, errClientClosed), errors.Is(err, platformconn.ErrClosed):
		return apierrors.Wrap(apierrors.CodeTransport, "client closed", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if callerDone {
			return apierrors.Wrap(apierrors.CodeCancelled, "call cancelled", err)
		}
		return apierrors.Wrap(apierrors.CodeTransport, "transport timed out", err).WithDetail(err.Error())
	}

	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		code := apierrors.CodeRemote
		msg := "remote rejected request"
		if httpErr.StatusCode >= 500 {
			code = apierrors.CodeTransport
			msg = "remote unavailable"
		}
		return apierrors.Wrap(code, msg, err).
			WithDetail(httpErr.Body).
			WithRemoteCode(strconv.Itoa(httpErr.StatusCode))
	}

	st, ok := status.FromError(err)
	if !ok {
		return apierrors.Wrap(apierrors.CodeTransport, "transport failure", err).WithDetail(err.Error())
	}
	switch st.Code() {
	case codes.Canceled, codes.DeadlineExceeded:
		if callerDone {
			return apierrors.Wrap(apierrors.CodeCancelled, "call cancelled", err).WithRemoteCode(st.Code().String())
		}
		return apierrors.Wrap(apierrors.CodeTransport, "transport timed out", err).
			WithDetail(st.Message()).
			WithRemoteCode(st.Code().String())
	case codes.Unavailable:
		return apierrors.Wrap(apierrors.CodeTransport, "remote unavailable", err).
			WithDetail(st.Message()).
			WithRemoteCode(st.Code().String())
	default:
		return apierrors.Wrap(apierrors.CodeRemote, "remote rejected request", err).
			WithDetail(st.Message()).
			WithRemoteCode(st.Code().String())
	}
}

// remoteBodyError 将响应体中的 error 字段转换为 Remote 错误。
func remoteBodyError(re *platformv1.RemoteError) *apierrors.Error {
	return apierrors.New(apierrors.CodeRemote, "remote rejected request").
		WithDetail(re.Message).
		WithRemoteCode(strconv.Itoa(int(re.Code)))
}
