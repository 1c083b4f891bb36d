package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"dashboard-gateway/internal/envelope"
	"dashboard-gateway/internal/model"
	"dashboard-gateway/internal/route"
	"dashboard-gateway/internal/validate"
)

const logoutMessage = "Logout successful"

// senderField names the sender in both the settings record and the template body.
const senderField = "sender_name"

// Settings is the record returned when the settings center has none yet.
type Settings struct {
	ID                  *string `json:"id"`
	RateCommissionPoint string  `json:"rate_commission_point"`
	RateCommissionCash  string  `json:"rate_commission_cash"`
}

// logout always reports success. A 2xx with a body passes through.
func (g *Gateway) logout(d route.Descriptor, resp *model.BackendResponse, err error) model.Reply {
	if err == nil && resp.OK() {
		if resp.Body.Kind != model.BodyEmpty {
			return envelope.Normalize(resp)
		}
		return envelope.Message(http.StatusOK, logoutMessage)
	}

	attrs := []any{"route", d.Name}
	if err != nil {
		attrs = append(attrs, "err", sanitizeError(err))
	} else {
		attrs = append(attrs, "status", resp.StatusCode)
	}
	g.logger.Info("backend logout failed; reporting success", attrs...)
	g.countOverride(d)

	return envelope.Message(http.StatusOK, logoutMessage)
}

// settingsDefault turns "no record yet" (400/404) into an empty record.
func (g *Gateway) settingsDefault(d route.Descriptor, resp *model.BackendResponse, err error) (model.Reply, bool) {
	if err != nil {
		return model.Reply{}, false
	}
	if resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
		return model.Reply{}, false
	}

	g.logger.Debug("settings record missing; returning defaults",
		"route", d.Name,
		"status", resp.StatusCode,
	)
	g.countOverride(d)

	return envelope.JSON(http.StatusOK, Settings{}), true
}

// withSender fills sender_name from the settings center when the template
// body lacks it. Lookup failures leave the body unchanged.
func (g *Gateway) withSender(ctx context.Context, in Input, obj map[string]any, body []byte) []byte {
	if obj == nil {
		return body
	}
	if _, ok := validate.BodyValue(obj[senderField]); ok {
		return body
	}

	resp, err := g.backend.Do(ctx, &model.BackendRequest{
		Method:        http.MethodGet,
		Path:          route.SettingCenterPath,
		Authorization: in.Authorization,
		RequestID:     in.RequestID,
	})
	if err != nil {
		g.logger.Debug("sender lookup failed", "err", sanitizeError(err))
		return body
	}
	if !resp.OK() {
		g.logger.Debug("sender lookup failed", "status", resp.StatusCode)
		return body
	}

	sender := senderFrom(resp.Body)
	if sender == "" {
		return body
	}

	b, err := injectField(body, senderField, sender)
	if err != nil {
		g.logger.Debug("sender lookup: re-encode body", "err", err)
		return body
	}
	return b
}

// injectField sets key in the JSON object body and leaves the bytes of every
// other member untouched. A missing key is appended before the closing brace
// so member order survives. An existing key is replaced through a raw-message
// map, which keeps values exact but not their order.
func injectField(body []byte, key, value string) ([]byte, error) {
	kb, err := json.Marshal(key)
	if err != nil {
		return nil, err
	}
	vb, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		trimmed = []byte("{}")
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &members); err != nil {
		return nil, err
	}
	if members == nil {
		return nil, errors.New("body is not a JSON object")
	}
	if _, exists := members[key]; exists {
		members[key] = vb
		return json.Marshal(members)
	}

	inner := bytes.TrimSpace(trimmed[1 : len(trimmed)-1])
	out := make([]byte, 0, len(trimmed)+len(kb)+len(vb)+2)
	out = append(out, '{')
	if len(inner) > 0 {
		out = append(out, inner...)
		out = append(out, ',')
	}
	out = append(out, kb...)
	out = append(out, ':')
	out = append(out, vb...)
	out = append(out, '}')
	return out, nil
}

// senderFrom reads sender_name from a settings record, either top-level or
// wrapped in a "data" object.
func senderFrom(body model.ParsedBody) string {
	obj, ok := body.Object()
	if !ok {
		return ""
	}
	if data, ok := obj["data"].(map[string]any); ok {
		obj = data
	}
	s, _ := obj[senderField].(string)
	if !validate.Present(s) {
		return ""
	}
	return s
}

func (g *Gateway) countOverride(d route.Descriptor) {
	if g.metrics != nil {
		g.metrics.PolicyOverridesTotal.WithLabelValues(d.Name, d.Policy.String()).Inc()
	}
}
