// Package route describes every backend resource the gateway exposes.
//
// A Descriptor carries everything needed to validate and forward one
// operation. The inbound router, the metrics path labels and the tests all
// read the same Table.
package route

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Source says where a parameter is read from.
type Source int

const (
	InPath Source = iota
	InQuery
	InBody
)

func (s Source) String() string {
	switch s {
	case InPath:
		return "path"
	case InQuery:
		return "query"
	case InBody:
		return "body"
	default:
		return "unknown"
	}
}

// Policy selects the special-case behavior of a route.
type Policy int

const (
	PolicyNone Policy = iota
	// PolicyLogout reports success whatever the backend says.
	PolicyLogout
	// PolicySettingsDefault turns a backend 400/404 into an empty settings record.
	PolicySettingsDefault
	// PolicySenderLookup fills sender_name from the settings center before forwarding.
	PolicySenderLookup
)

func (p Policy) String() string {
	switch p {
	case PolicyLogout:
		return "logout"
	case PolicySettingsDefault:
		return "settings-default"
	case PolicySenderLookup:
		return "sender-lookup"
	default:
		return "none"
	}
}

// Param is a required request value.
type Param struct {
	Name string
	In   Source
	UUID bool
}

// Descriptor is the declarative form of one proxy handler.
type Descriptor struct {
	Name         string
	Method       string
	Path         string
	Params       []Param
	AuthRequired bool
	Policy       Policy
}

// New starts a descriptor for method and path. Path segments of the form
// :name become required path params. Routes require auth unless Public is
// called.
func New(name, method, path string) *Descriptor {
	d := &Descriptor{
		Name:         name,
		Method:       method,
		Path:         path,
		AuthRequired: true,
	}
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, ":") {
			d.Params = append(d.Params, Param{Name: seg[1:], In: InPath})
		}
	}
	return d
}

// Query adds required query-string params.
func (d *Descriptor) Query(names ...string) *Descriptor {
	for _, n := range names {
		d.Params = append(d.Params, Param{Name: n, In: InQuery})
	}
	return d
}

// Body adds required JSON body fields.
func (d *Descriptor) Body(names ...string) *Descriptor {
	for _, n := range names {
		d.Params = append(d.Params, Param{Name: n, In: InBody})
	}
	return d
}

// UUID marks already declared params as identifiers.
func (d *Descriptor) UUID(names ...string) *Descriptor {
	for _, n := range names {
		found := false
		for i := range d.Params {
			if d.Params[i].Name == n {
				d.Params[i].UUID = true
				found = true
			}
		}
		if !found {
			panic(fmt.Sprintf("route %s: UUID(%q) names an undeclared param", d.Name, n))
		}
	}
	return d
}

// Public forwards requests without an Authorization header instead of
// rejecting them.
func (d *Descriptor) Public() *Descriptor {
	d.AuthRequired = false
	return d
}

// WithPolicy sets the special-case policy.
func (d *Descriptor) WithPolicy(p Policy) *Descriptor {
	d.Policy = p
	return d
}

// HasBodyParams reports whether any required param lives in the body.
func (d Descriptor) HasBodyParams() bool {
	for _, p := range d.Params {
		if p.In == InBody {
			return true
		}
	}
	return false
}

// SendsBody reports whether the method carries a request body upstream.
func (d Descriptor) SendsBody() bool {
	return d.Method != http.MethodGet && d.Method != http.MethodDelete && d.Method != http.MethodHead
}

// BackendPath substitutes path params into the template. Values are
// path-escaped; missing values leave an empty segment.
func (d Descriptor) BackendPath(params map[string]string) string {
	segs := strings.Split(d.Path, "/")
	for i, seg := range segs {
		if strings.HasPrefix(seg, ":") {
			segs[i] = url.PathEscape(params[seg[1:]])
		}
	}
	return strings.Join(segs, "/")
}
