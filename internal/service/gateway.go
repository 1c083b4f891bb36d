// Package service implements the forwarding pipeline shared by every route:
// validate, check auth, apply the route policy, forward and normalize.
package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"dashboard-gateway/internal/envelope"
	"dashboard-gateway/internal/metrics"
	"dashboard-gateway/internal/model"
	"dashboard-gateway/internal/route"
	"dashboard-gateway/internal/validate"
)

// secretQueryPattern matches credential-like query values in URLs embedded in error messages.
var secretQueryPattern = regexp.MustCompile(`(?i)((?:access_token|token|api_?key|password)=)[^&\s"]+`)

// bearerPattern matches a bearer credential.
var bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)[^\s"]+`)

// Backend sends one request to the backend API.
type Backend interface {
	Do(ctx context.Context, br *model.BackendRequest) (*model.BackendResponse, error)
}

// Input is the raw material of one inbound call.
type Input struct {
	PathParams    map[string]string
	Query         url.Values
	RawQuery      string
	Authorization string
	Body          []byte
	RequestID     string
}

// Gateway runs the forwarding pipeline for a route descriptor.
type Gateway struct {
	backend  Backend
	messages *envelope.Messages
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewGateway creates a Gateway. The metrics parameter is optional.
func NewGateway(b Backend, msgs *envelope.Messages, logger *slog.Logger, m *metrics.Metrics) *Gateway {
	return &Gateway{
		backend:  b,
		messages: msgs,
		logger:   logger.With("component", "gateway"),
		metrics:  m,
	}
}

// Dispatch validates in against d, forwards it and returns the reply to write.
func (g *Gateway) Dispatch(ctx context.Context, d route.Descriptor, in Input) model.Reply {
	in.PathParams = unescapePath(in.PathParams)

	obj, err := g.check(d, in)
	if err != nil {
		return g.reject(d, err)
	}

	br := &model.BackendRequest{
		Method:        d.Method,
		Path:          d.BackendPath(in.PathParams),
		Query:         in.Query,
		RawQuery:      in.RawQuery,
		Authorization: in.Authorization,
		RequestID:     in.RequestID,
	}
	if d.SendsBody() && len(bytes.TrimSpace(in.Body)) > 0 {
		br.Body = in.Body
	}

	if d.Policy == route.PolicySenderLookup {
		br.Body = g.withSender(ctx, in, obj, br.Body)
	}

	resp, err := g.backend.Do(ctx, br)

	switch d.Policy {
	case route.PolicyLogout:
		return g.logout(d, resp, err)
	case route.PolicySettingsDefault:
		if reply, ok := g.settingsDefault(d, resp, err); ok {
			return reply
		}
	}

	if err != nil {
		g.logger.Error("backend call failed",
			"route", d.Name,
			"path", br.Path,
			"request_id", in.RequestID,
			"err", sanitizeError(err),
		)
		return g.messages.Fallback()
	}

	if !resp.OK() {
		g.logger.Debug("backend returned error",
			"route", d.Name,
			"status", resp.StatusCode,
			"body_kind", resp.Body.Kind.String(),
			"request_id", in.RequestID,
		)
	}
	return envelope.Normalize(resp)
}

// check validates params in declared order, then the Authorization header.
// It returns the decoded body object when the route declares body params.
func (g *Gateway) check(d route.Descriptor, in Input) (map[string]any, error) {
	var obj map[string]any
	if d.HasBodyParams() {
		parsed := model.ParseBody(in.Body)
		if parsed.Kind == model.BodyEmpty {
			obj = map[string]any{}
		} else {
			o, ok := parsed.Object()
			if !ok {
				return nil, validate.InvalidBody()
			}
			obj = o
		}
	}

	for _, p := range d.Params {
		switch p.In {
		case route.InPath:
			if err := validate.Field(p.Name, in.PathParams[p.Name], p.UUID); err != nil {
				return nil, err
			}
		case route.InQuery:
			if err := validate.Field(p.Name, in.Query.Get(p.Name), p.UUID); err != nil {
				return nil, err
			}
		case route.InBody:
			s, ok := validate.BodyValue(obj[p.Name])
			if !ok {
				return nil, validate.Missing(p.Name)
			}
			if p.UUID && !validate.IsUUID(s) {
				return nil, validate.InvalidUUID(p.Name)
			}
		}
	}

	if d.AuthRequired && !validate.Present(in.Authorization) {
		return nil, validate.Unauthorized()
	}
	return obj, nil
}

func (g *Gateway) reject(d route.Descriptor, err error) model.Reply {
	var ve *validate.Error
	if !errors.As(err, &ve) {
		ve = &validate.Error{Status: http.StatusBadRequest, Message: err.Error()}
	}

	g.logger.Debug("request rejected",
		"route", d.Name,
		"status", ve.Status,
		"reason", ve.Message,
	)
	if g.metrics != nil {
		g.metrics.ValidationFailures.WithLabelValues(d.Name, strconv.Itoa(ve.Status)).Inc()
	}
	return envelope.Message(ve.Status, ve.Message)
}

// unescapePath undoes percent-encoding that the router may leave in place.
// BackendPath escapes the values again.
func unescapePath(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, raw := range params {
		if v, err := url.PathUnescape(raw); err == nil {
			out[k] = v
		} else {
			out[k] = raw
		}
	}
	return out
}

// sanitizeError redacts credentials from error messages that may contain
// backend URLs or an Authorization value.
func sanitizeError(err error) string {
	s := secretQueryPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
	return bearerPattern.ReplaceAllString(s, "${1}[REDACTED]")
}
