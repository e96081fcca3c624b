package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/tasks/api/transport"
	"github.com/fastygo/tasks/domain"
	"github.com/fastygo/tasks/pkg/httpcontext"
	appLogger "github.com/fastygo/tasks/pkg/logger"
)

// Options tunes error reporting shared by all handlers.
type Options struct {
	// StrictNotFound reports unknown task ids as 404. When false they are
	// reported as a generic 500, matching the historical API.
	StrictNotFound bool
}

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
	opts    Options
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger, opts Options) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: logger, opts: opts}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	stdCtx, cancel := context.WithCancel(context.Background())
	return appLogger.ContextWithRequestID(stdCtx, httpcontext.RequestID(ctx)), cancel
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal server error","code":"INTERNAL"}`)
	}
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

func (h baseHandler) respondNoContent(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(http.StatusNoContent)
	ctx.ResetBody()
}

func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, stdCtx context.Context, err error) {
	status, body := h.mapError(err)
	if status >= http.StatusInternalServerError {
		appLogger.WithRequestID(stdCtx, h.logger).Error("request failed",
			zap.String("method", string(ctx.Method())),
			zap.String("path", string(ctx.Path())),
			zap.Int("status", status),
			zap.Error(err))
	}
	h.respondJSON(ctx, status, body)
}

// mapError is the single place where domain errors become HTTP responses.
// Internal details never reach the client.
func (h baseHandler) mapError(err error) (int, transport.ErrorResponse) {
	switch domain.CodeOf(err) {
	case domain.ErrCodeInvalid:
		return http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), clientMessage(err))
	case domain.ErrCodeUnauthorized:
		return http.StatusUnauthorized, transport.NewError(string(domain.ErrCodeUnauthorized), clientMessage(err))
	case domain.ErrCodeForbidden:
		return http.StatusForbidden, transport.NewError(string(domain.ErrCodeForbidden), clientMessage(err))
	case domain.ErrCodeConflict:
		return http.StatusConflict, transport.NewError(string(domain.ErrCodeConflict), clientMessage(err))
	case domain.ErrCodeNotFound:
		if h.opts.StrictNotFound {
			return http.StatusNotFound, transport.NewError(string(domain.ErrCodeNotFound), clientMessage(err))
		}
		return http.StatusInternalServerError, internalError()
	default:
		return http.StatusInternalServerError, internalError()
	}
}

func internalError() transport.ErrorResponse {
	return transport.NewError(string(domain.ErrCodeInternal), "internal server error")
}

// clientMessage returns the message of the outermost domain error without
// the wrapped cause.
func clientMessage(err error) string {
	var dErr *domain.Error
	if errors.As(err, &dErr) && dErr.Message != "" {
		return dErr.Message
	}
	return err.Error()
}
