package relayapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aegis-sign/custody/internal/credential"
	"github.com/aegis-sign/custody/internal/signing"
	"github.com/aegis-sign/custody/pkg/apierrors"
)

const (
	signingRequestsPath = "/v1/signing-requests"
	defaultMaxBodyBytes = 1 << 20
)

// HTTPHandler 实现 `/v1/signing-requests` HTTP/JSON 中继接口。
type HTTPHandler struct {
	backend      Backend
	logger       *slog.Logger
	maxBodyBytes int64
}

// HandlerOption 定义 HTTPHandler 的可选参数。
type HandlerOption func(*HTTPHandler)

// WithHandlerLogger 指定日志输出。
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *HTTPHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMaxBodyBytes 限制请求体大小。
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *HTTPHandler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// NewHTTPHandler 构造 HTTP handler。
func NewHTTPHandler(backend Backend, opts ...HandlerOption) *HTTPHandler {
	if backend == nil {
		panic("relay backend is required")
	}
	h := &HTTPHandler{backend: backend, logger: slog.Default(), maxBodyBytes: defaultMaxBodyBytes}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register 将 handler 注册到 mux。
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc(signingRequestsPath, h.handleCreate)
	mux.HandleFunc(signingRequestsPath+"/", h.handleDetails)
}

type recordBody struct {
	UUID   string `json:"uuid"`
	Status string `json:"status,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

type errorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	RemoteCode string `json:"remoteCode,omitempty"`
}

func (h *HTTPHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeAPIError(w, apierrors.New(apierrors.CodeValidation, "POST required"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	var fields map[string]any
	if err := decoder.Decode(&fields); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeAPIError(w, apierrors.New(apierrors.CodeValidation, "request body too large"))
			return
		}
		h.writeAPIError(w, apierrors.New(apierrors.CodeValidation, "invalid JSON body"))
		return
	}
	req, err := signing.AssembleFields(fields)
	if err != nil {
		h.writeUnknownError(w, err)
		return
	}
	rec, err := h.backend.Create(r.Context(), req, r.Header.Get(credential.HTTPHeader))
	if err != nil {
		h.writeUnknownError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toRecordBody(rec))
}

func (h *HTTPHandler) handleDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeAPIError(w, apierrors.New(apierrors.CodeValidation, "GET required"))
		return
	}
	uuid := strings.TrimPrefix(r.URL.Path, signingRequestsPath+"/")
	if uuid == "" || strings.Contains(uuid, "/") {
		h.writeAPIError(w, apierrors.New(apierrors.CodeValidation, "signing request uuid is required"))
		return
	}
	rec, err := h.backend.Details(r.Context(), uuid, r.Header.Get(credential.HTTPHeader))
	if err != nil {
		h.writeUnknownError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toRecordBody(rec))
}

func toRecordBody(rec *signing.Record) recordBody {
	if rec == nil {
		return recordBody{}
	}
	return recordBody{UUID: rec.UUID, Status: rec.Status, Notes: rec.Notes}
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *HTTPHandler) writeUnknownError(w http.ResponseWriter, err error) {
	if apiErr, ok := apierrors.FromError(err); ok {
		h.writeAPIError(w, apiErr)
		return
	}
	h.logger.Error("relay request failed", "error", err)
	h.writeAPIError(w, apierrors.New(apierrors.CodeInternal, "internal error"))
}

func (h *HTTPHandler) writeAPIError(w http.ResponseWriter, apiErr *apierrors.Error) {
	if apiErr == nil {
		apiErr = apierrors.New(apierrors.CodeInternal, "internal error")
	}
	h.writeJSON(w, apierrors.HTTPStatus(apiErr.Code), errorResponse{
		Code:       string(apiErr.Code),
		Message:    apiErr.Message,
		Detail:     apiErr.Detail,
		RemoteCode: apiErr.RemoteCode,
	})
}
