package router

import (
	"encoding/json"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/tasks/api/handler"
	"github.com/fastygo/tasks/api/transport"
	"github.com/fastygo/tasks/internal/middleware"
	"github.com/fastygo/tasks/pkg/httpcontext"
)

type Handlers struct {
	Task   *apiHandler.TaskHandler
	Health *apiHandler.HealthHandler
}

type Options struct {
	// AuthSecret enables bearer authentication on /api routes when set.
	AuthSecret string
}

// New builds the routing tree and returns the fully wrapped request handler.
func New(handlers Handlers, opts Options, logger *zap.Logger) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := router.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.NotFound = func(ctx *fasthttp.RequestCtx) {
		writeError(ctx, fasthttp.StatusNotFound, "resource not found")
	}
	r.MethodNotAllowed = func(ctx *fasthttp.RequestCtx) {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
	}
	r.PanicHandler = func(ctx *fasthttp.RequestCtx, rcv interface{}) {
		logger.Error("panic recovered",
			zap.String("request_id", httpcontext.RequestID(ctx)),
			zap.String("path", string(ctx.Path())),
			zap.Any("panic", rcv))
		writeError(ctx, fasthttp.StatusInternalServerError, "internal server error")
	}

	protect := func(h fasthttp.RequestHandler) fasthttp.RequestHandler { return h }
	if opts.AuthSecret != "" {
		protect = middleware.JWTAuth(opts.AuthSecret, logger)
	}

	r.GET("/health", handlers.Health.Check)

	api := r.Group("/api")
	api.GET("/tasks", protect(handlers.Task.ListTasks))
	api.POST("/tasks", protect(handlers.Task.CreateTask))
	api.PUT("/tasks/{id:[0-9]+}", protect(handlers.Task.UpdateTask))
	api.DELETE("/tasks/{id:[0-9]+}", protect(handlers.Task.DeleteTask))

	return middleware.Chain(r.Handler, middleware.AccessLog(logger))
}

func writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	body, _ := json.Marshal(transport.ErrorResponse{Error: message})
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}
