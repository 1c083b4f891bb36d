package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"dashboard-gateway/internal/client"
	"dashboard-gateway/internal/config"
	"dashboard-gateway/internal/envelope"
	"dashboard-gateway/internal/metrics"
	"dashboard-gateway/internal/route"
	"dashboard-gateway/internal/service"
)

const testUUID = "550e8400-e29b-41d4-a716-446655440000"

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newTestEcho wires the full route table against a backend at baseURL.
func newTestEcho(t *testing.T, baseURL string) *echo.Echo {
	t.Helper()

	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			BaseURL:          baseURL,
			TimeoutSeconds:   5,
			IdleConnections:  10,
			ResponseMaxBytes: 1 << 20,
		},
	}
	msgs, err := envelope.NewMessages("en")
	if err != nil {
		t.Fatalf("NewMessages: %v", err)
	}
	m := metrics.New(route.Prefixes(route.Table())...)
	bc := client.NewBackendClient(cfg, testLogger, m, nil)
	gw := service.NewGateway(bc, msgs, testLogger, m)

	e := echo.New()
	RegisterRoutes(e, NewProxyHandler(gw, msgs, testLogger), NewHealthHandler(cfg, "test", bc))
	return e
}

// validRequest builds a request that passes every check d declares.
func validRequest(d route.Descriptor) *http.Request {
	values := map[string]string{}
	for _, p := range d.Params {
		if p.In == route.InPath {
			values[p.Name] = testUUID
		}
	}
	return buildRequest(d, values, "")
}

// buildRequest fills path params from values, every declared query and
// body param with a valid value, and skips the param named omit.
func buildRequest(d route.Descriptor, pathValues map[string]string, omit string) *http.Request {
	target := d.BackendPath(pathValues)

	q := url.Values{}
	body := map[string]any{}
	for _, p := range d.Params {
		if p.Name == omit {
			continue
		}
		v := "value"
		if p.UUID {
			v = testUUID
		}
		switch p.In {
		case route.InQuery:
			q.Set(p.Name, v)
		case route.InBody:
			body[p.Name] = v
		}
	}
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var req *http.Request
	if d.SendsBody() {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(d.Method, target, strings.NewReader(string(b)))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(d.Method, target, http.NoBody)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer tok")
	return req
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func messageOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env envelope.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
	}
	return env.Message
}

func TestProxy_SuccessPassthrough(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"foo":"bar"}`))
	}))
	defer backend.Close()

	e := newTestEcho(t, backend.URL)

	for _, d := range route.Table() {
		t.Run(d.Name, func(t *testing.T) {
			rec := serve(e, validRequest(d))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
			}
			if got := rec.Body.String(); got != `{"foo":"bar"}` {
				t.Errorf("body = %q, want verbatim backend body", got)
			}
		})
	}
}

func TestProxy_ForwardsMethodAndPath(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	e := newTestEcho(t, backend.URL)

	for _, d := range route.Table() {
		t.Run(d.Name, func(t *testing.T) {
			mu.Lock()
			seen = nil
			mu.Unlock()

			req := validRequest(d)
			serve(e, req)

			mu.Lock()
			defer mu.Unlock()
			if len(seen) == 0 {
				t.Fatal("backend not called")
			}
			want := d.Method + " " + req.URL.Path
			if got := seen[len(seen)-1]; got != want {
				t.Errorf("backend saw %q, want %q", got, want)
			}
		})
	}
}

func TestProxy_ErrorPropagation(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	}))
	defer backend.Close()

	e := newTestEcho(t, backend.URL)

	for _, d := range route.Table() {
		t.Run(d.Name, func(t *testing.T) {
			rec := serve(e, validRequest(d))

			switch d.Policy {
			case route.PolicyLogout:
				if rec.Code != http.StatusOK || messageOf(t, rec) != "Logout successful" {
					t.Errorf("got %d %s, want 200 Logout successful", rec.Code, rec.Body.String())
				}
			case route.PolicySettingsDefault:
				if rec.Code != http.StatusOK {
					t.Errorf("status = %d, want 200", rec.Code)
				}
				var s service.Settings
				if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil || s.ID != nil {
					t.Errorf("body = %s, want empty settings record", rec.Body.String())
				}
			default:
				if rec.Code != http.StatusNotFound {
					t.Errorf("status = %d, want 404", rec.Code)
				}
				if got := messageOf(t, rec); got != "not found" {
					t.Errorf("message = %q, want %q", got, "not found")
				}
			}
		})
	}
}

func TestProxy_MissingParams(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("backend called for %s %s", r.Method, r.URL.Path)
	}))
	defer backend.Close()

	e := newTestEcho(t, backend.URL)

	for _, d := range route.Table() {
		for i, p := range d.Params {
			t.Run(d.Name+"/"+p.Name, func(t *testing.T) {
				values := map[string]string{}
				for j, q := range d.Params {
					if q.In != route.InPath {
						continue
					}
					values[q.Name] = testUUID
					if j == i {
						values[q.Name] = "undefined"
					}
				}
				omit := ""
				if p.In != route.InPath {
					omit = p.Name
				}

				rec := serve(e, buildRequest(d, values, omit))

				if rec.Code != http.StatusBadRequest {
					t.Errorf("status = %d, want 400", rec.Code)
				}
				if got := messageOf(t, rec); got != "Missing "+p.Name {
					t.Errorf("message = %q, want %q", got, "Missing "+p.Name)
				}
			})
		}
	}
}

func TestProxy_InvalidUUID(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("backend called for %s %s", r.Method, r.URL.Path)
	}))
	defer backend.Close()

	e := newTestEcho(t, backend.URL)

	for _, d := range route.Table() {
		for _, p := range d.Params {
			if !p.UUID || p.In != route.InPath {
				continue
			}
			t.Run(d.Name+"/"+p.Name, func(t *testing.T) {
				values := map[string]string{}
				for _, q := range d.Params {
					if q.In == route.InPath {
						values[q.Name] = testUUID
					}
				}
				values[p.Name] = "not-a-uuid"

				rec := serve(e, buildRequest(d, values, ""))

				if rec.Code != http.StatusBadRequest {
					t.Errorf("status = %d, want 400", rec.Code)
				}
				want := "Invalid " + p.Name + " format. Expected UUID."
				if got := messageOf(t, rec); got != want {
					t.Errorf("message = %q, want %q", got, want)
				}
			})
		}
	}
}

func TestProxy_MissingAuthorization(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	e := newTestEcho(t, backend.URL)

	for _, d := range route.Table() {
		if !d.AuthRequired {
			continue
		}
		t.Run(d.Name, func(t *testing.T) {
			req := validRequest(d)
			req.Header.Del(echo.HeaderAuthorization)

			rec := serve(e, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if got := messageOf(t, rec); got != "Unauthorized" {
				t.Errorf("message = %q, want %q", got, "Unauthorized")
			}
		})
	}
}

func TestProxy_TransportFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	baseURL := backend.URL
	backend.Close()

	e := newTestEcho(t, baseURL)

	for _, d := range route.Table() {
		t.Run(d.Name, func(t *testing.T) {
			rec := serve(e, validRequest(d))

			if d.Policy == route.PolicyLogout {
				if rec.Code != http.StatusOK || messageOf(t, rec) != "Logout successful" {
					t.Errorf("got %d %s, want 200 Logout successful", rec.Code, rec.Body.String())
				}
				return
			}
			if rec.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", rec.Code)
			}
			if got := messageOf(t, rec); got != "An error occurred while connecting to the server" {
				t.Errorf("message = %q", got)
			}
		})
	}
}

func TestProxy_InvalidJSONBody(t *testing.T) {
	e := newTestEcho(t, "http://127.0.0.1:1")

	req := httptest.NewRequest(http.MethodPost, "/api/customers", strings.NewReader("{not json"))
	req.Header.Set(echo.HeaderAuthorization, "Bearer tok")
	rec := serve(e, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if got := messageOf(t, rec); got != "Invalid JSON body" {
		t.Errorf("message = %q", got)
	}
}

func TestProxy_ForwardsQueryString(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("page"); got != "3" {
			t.Errorf("page = %q, want 3", got)
		}
		if got := r.URL.Query().Get("search"); got != "a b" {
			t.Errorf("search = %q, want %q", got, "a b")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	e := newTestEcho(t, backend.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/customers?page=3&search=a+b", http.NoBody)
	req.Header.Set(echo.HeaderAuthorization, "Bearer tok")
	rec := serve(e, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestProxy_ForwardsQueryStringVerbatim(t *testing.T) {
	const raw = "z=1&a=2&tag=x&tag=y"
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != raw {
			t.Errorf("RawQuery = %q, want %q", r.URL.RawQuery, raw)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	e := newTestEcho(t, backend.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/customers?"+raw, http.NoBody)
	req.Header.Set(echo.HeaderAuthorization, "Bearer tok")
	rec := serve(e, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestProxy_EmptyPathSegment(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("backend called for %s %s", r.Method, r.URL.Path)
	}))
	defer backend.Close()

	e := newTestEcho(t, backend.URL)

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
		wantMsg    string
	}{
		// A trailing empty id never reaches a gateway route.
		{"trailing segment", http.MethodDelete, "/api/customers/", http.StatusNotFound, "Not Found"},
		{"middle segment", http.MethodGet, "/api/customers//points", http.StatusBadRequest, "Missing id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, http.NoBody)
			req.Header.Set(echo.HeaderAuthorization, "Bearer tok")
			rec := serve(e, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := messageOf(t, rec); got != tt.wantMsg {
				t.Errorf("message = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}
