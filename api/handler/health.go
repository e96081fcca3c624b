package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/tasks/api/transport"
	"github.com/fastygo/tasks/internal/infrastructure/monitor"
	"github.com/fastygo/tasks/pkg/httpcontext"
)

type HealthHandler struct {
	baseHandler
	monitor *monitor.Monitor
}

func NewHealthHandler(mon *monitor.Monitor, adapter *httpcontext.Adapter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(adapter, logger, Options{}),
		monitor:     mon,
	}
}

// @Summary Health check
// @Tags health
// @Router /health [get]
func (h *HealthHandler) Check(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	status := h.monitor.Refresh(stdCtx)

	payload := transport.HealthResponse{
		Status:    transport.StatusHealthy,
		Database:  transport.StateConnected,
		CheckedAt: status.LastCheck,
	}
	if status.CacheEnabled {
		payload.Cache = transport.StateDisconnected
		if status.Cache {
			payload.Cache = transport.StateConnected
		}
	}

	if status.Healthy() {
		h.respondJSON(ctx, http.StatusOK, payload)
		return
	}

	payload.Status = transport.StatusUnhealthy
	payload.Database = transport.StateDisconnected
	payload.Error = "database unreachable"
	h.respondJSON(ctx, http.StatusServiceUnavailable, payload)
}
