package handler

import (
	"errors"
	"io"
	"log/slog"

	"github.com/labstack/echo/v4"

	"dashboard-gateway/internal/envelope"
	"dashboard-gateway/internal/route"
	"dashboard-gateway/internal/service"
)

// ProxyHandler turns route descriptors into Echo handlers backed by the gateway.
type ProxyHandler struct {
	gateway  *service.Gateway
	messages *envelope.Messages
	logger   *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(gw *service.Gateway, msgs *envelope.Messages, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		gateway:  gw,
		messages: msgs,
		logger:   logger.With("component", "proxy_handler"),
	}
}

// For returns the handler serving d.
func (h *ProxyHandler) For(d route.Descriptor) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		body, err := io.ReadAll(req.Body)
		if err != nil {
			// BodyLimit reports oversize bodies through the read error.
			var he *echo.HTTPError
			if errors.As(err, &he) {
				return he
			}
			h.logger.Error("reading request body",
				"route", d.Name,
				"err", err,
			)
			reply := h.messages.Fallback()
			return c.Blob(reply.Status, reply.ContentType, reply.Body)
		}

		in := service.Input{
			PathParams:    pathParams(c),
			Query:         req.URL.Query(),
			RawQuery:      req.URL.RawQuery,
			Authorization: req.Header.Get(echo.HeaderAuthorization),
			Body:          body,
			RequestID:     c.Response().Header().Get(echo.HeaderXRequestID),
		}

		reply := h.gateway.Dispatch(req.Context(), d, in)
		return c.Blob(reply.Status, reply.ContentType, reply.Body)
	}
}

func pathParams(c echo.Context) map[string]string {
	names := c.ParamNames()
	out := make(map[string]string, len(names))
	for _, name := range names {
		out[name] = c.Param(name)
	}
	return out
}
